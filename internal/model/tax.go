package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tax is a company scoped tax definition with a default rate in percent
type Tax struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   string          `gorm:"type:varchar(250);not null;index" json:"company_id"`
	Name        string          `gorm:"type:varchar(250);not null" json:"name"`
	DefaultRate decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"default_rate"` // e.g. 19 = 19%
	Rules       []TaxRule       `gorm:"foreignKey:TaxID;constraint:OnDelete:CASCADE" json:"rules,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
