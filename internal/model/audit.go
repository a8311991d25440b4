package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateTax     = "CREATE_TAX"
	ActionUpdateTax     = "UPDATE_TAX"
	ActionDeleteTax     = "DELETE_TAX"
	ActionCreateTaxRule = "CREATE_TAX_RULE"
	ActionUpdateTaxRule = "UPDATE_TAX_RULE"
	ActionDeleteTaxRule = "DELETE_TAX_RULE"
)

// AuditLog tracks Who, What, and When for tax configuration changes
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID  string    `gorm:"type:varchar(250);not null;index" json:"company_id"`
	UserID     string    `gorm:"type:varchar(250);index" json:"user_id"` // identity issued by the authorization service
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string    `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
