package repository

import (
	"context"
	"time"

	"pluto/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaxRepository interface {
	Create(ctx context.Context, tax *model.Tax) error
	Update(ctx context.Context, tax *model.Tax) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, companyID string, id uuid.UUID) (*model.Tax, error)
	// FindByIDForUpdate locks the tax row until the surrounding transaction ends.
	// Every rule mutation takes this lock first, which serialises writers per tax.
	FindByIDForUpdate(ctx context.Context, companyID string, id uuid.UUID) (*model.Tax, error)
	List(ctx context.Context, companyID string, page, limit int) ([]model.Tax, int64, error)
}

type taxRepository struct {
	db *gorm.DB
}

func NewTaxRepository(db *gorm.DB) TaxRepository {
	return &taxRepository{db: db}
}

func (r *taxRepository) Create(ctx context.Context, tax *model.Tax) error {
	return translateError(GetDB(ctx, r.db).Omit("Rules").Create(tax).Error, "tax")
}

// Update writes name and default rate only; company and id never change.
func (r *taxRepository) Update(ctx context.Context, tax *model.Tax) error {
	tax.UpdatedAt = time.Now()
	result := GetDB(ctx, r.db).Model(&model.Tax{}).
		Where("id = ? AND company_id = ?", tax.ID, tax.CompanyID).
		Updates(map[string]interface{}{
			"name":         tax.Name,
			"default_rate": tax.DefaultRate,
			"updated_at":   tax.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, "tax")
	}
	if result.RowsAffected == 0 {
		return notFound("tax")
	}
	return nil
}

func (r *taxRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Tax{})
	if result.Error != nil {
		return translateError(result.Error, "tax")
	}
	if result.RowsAffected == 0 {
		return notFound("tax")
	}
	return nil
}

func (r *taxRepository) FindByID(ctx context.Context, companyID string, id uuid.UUID) (*model.Tax, error) {
	var tax model.Tax
	if err := GetDB(ctx, r.db).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&tax).Error; err != nil {
		return nil, translateError(err, "tax")
	}
	return &tax, nil
}

func (r *taxRepository) FindByIDForUpdate(ctx context.Context, companyID string, id uuid.UUID) (*model.Tax, error) {
	var tax model.Tax
	if err := forUpdate(GetDB(ctx, r.db)).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&tax).Error; err != nil {
		return nil, translateError(err, "tax")
	}
	return &tax, nil
}

func (r *taxRepository) List(ctx context.Context, companyID string, page, limit int) ([]model.Tax, int64, error) {
	var taxes []model.Tax
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Tax{}).Where("company_id = ?", companyID).Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "taxes")
	}

	offset := (page - 1) * limit
	if err := db.Where("company_id = ?", companyID).
		Order("created_at asc").Offset(offset).Limit(limit).
		Find(&taxes).Error; err != nil {
		return nil, 0, translateError(err, "taxes")
	}

	return taxes, total, nil
}
