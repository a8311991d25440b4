package service

import (
	"context"
	"time"

	"pluto/internal/model"
	"pluto/internal/repository"

	"github.com/samber/lo"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, companyID string, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// GetAuditLogs returns the company's audit trail, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, companyID string, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.auditRepo.ListByCompany(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := lo.Map(logs, func(l model.AuditLog, _ int) AuditLogResponse {
		userID := l.UserID
		if userID == "" {
			userID = "system"
		}
		return AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		}
	})

	return res, total, nil
}
