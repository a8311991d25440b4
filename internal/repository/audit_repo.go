package repository

import (
	"context"

	"pluto/internal/model"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	ListByCompany(ctx context.Context, companyID string, page, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return translateError(GetDB(ctx, r.db).Create(entry).Error, "audit log")
}

func (r *auditRepository) ListByCompany(ctx context.Context, companyID string, page, limit int) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.AuditLog{}).Where("company_id = ?", companyID).Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "audit logs")
	}

	offset := (page - 1) * limit
	if err := db.Where("company_id = ?", companyID).
		Order("created_at desc").Offset(offset).Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, 0, translateError(err, "audit logs")
	}

	return logs, total, nil
}
