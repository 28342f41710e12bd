package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
)

type Vendor struct {
	ID                     int          `gorm:"primary_key" json:"id"`
	Name                   string       `gorm:"size:100;not null" json:"name" binding:"required"`
	Email                  string       `gorm:"size:100" json:"email"`
	Phone                  string       `gorm:"size:20" json:"phone"`
	PaymentTerms           PaymentTerms `gorm:"type:enum('Net15', 'Net30', 'Net45', 'Net60', 'DueMonthEnd', 'DueNextMonthEnd', 'DueOnReceipt', 'Custom');not null;default:'DueOnReceipt'" json:"payment_terms"`
	PaymentTermsCustomDays int          `gorm:"default:0" json:"payment_terms_custom_days"`
	Notes                  string       `gorm:"type:text" json:"notes"`
	IsActive               *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt              time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVendor struct {
	Name                   string       `json:"name" binding:"required"`
	Email                  string       `json:"email"`
	Phone                  string       `json:"phone"`
	PaymentTerms           PaymentTerms `json:"payment_terms"`
	PaymentTermsCustomDays int          `json:"payment_terms_custom_days"`
	Notes                  string       `json:"notes"`
}

func (v *Vendor) GetId() int {
	return v.ID
}

func (input *NewVendor) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Vendor](ctx, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Vendor](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.Email != "" {
		if !utils.IsValidEmail(input.Email) {
			return utils.NewValidationError("email", "invalid email format")
		}
		if err := utils.ValidateUnique[Vendor](ctx, "email", input.Email, id); err != nil {
			return err
		}
	}
	if input.PaymentTerms != "" {
		if err := input.PaymentTerms.Validate(); err != nil {
			return utils.NewValidationError("payment_terms", err.Error())
		}
		if input.PaymentTerms == PaymentTermsCustom && input.PaymentTermsCustomDays <= 0 {
			return utils.NewValidationError("payment_terms_custom_days", "custom payment terms require a positive day count")
		}
	}
	return nil
}

func CreateVendor(ctx context.Context, input *NewVendor) (*Vendor, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	paymentTerms := input.PaymentTerms
	if paymentTerms == "" {
		paymentTerms = PaymentTermsDueOnReceipt
	}

	vendor := Vendor{
		Name:                   input.Name,
		Email:                  input.Email,
		Phone:                  input.Phone,
		PaymentTerms:           paymentTerms,
		PaymentTermsCustomDays: input.PaymentTermsCustomDays,
		Notes:                  input.Notes,
		IsActive:               utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&vendor).Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, vendor.ID, "vendors", &vendor, "Vendor "+vendor.Name+" created.")
	return &vendor, nil
}

func UpdateVendor(ctx context.Context, id int, input *NewVendor) (*Vendor, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	oldVendor, err := utils.FetchModel[Vendor](ctx, id)
	if err != nil {
		return nil, err
	}

	vendor, err := utils.FetchModel[Vendor](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(vendor).Updates(map[string]interface{}{
		"Name":                   input.Name,
		"Email":                  input.Email,
		"Phone":                  input.Phone,
		"PaymentTerms":           input.PaymentTerms,
		"PaymentTermsCustomDays": input.PaymentTermsCustomDays,
		"Notes":                  input.Notes,
	}).Error
	if err != nil {
		return nil, err
	}

	SaveHistoryUpdate(ctx, id, "vendors", oldVendor, vendor, "Vendor "+vendor.Name+" updated.")
	return vendor, nil
}

func ToggleActiveVendor(ctx context.Context, id int, isActive bool) (*Vendor, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	vendor, err := utils.FetchModel[Vendor](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(vendor).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}
	return vendor, nil
}

func DeleteVendor(ctx context.Context, id int) (*Vendor, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	vendor, err := utils.FetchModel[Vendor](ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Bill](ctx, "vendor_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("id", "vendor has bills and cannot be deleted")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(vendor).Error; err != nil {
		return nil, err
	}

	SaveHistoryDelete(ctx, id, "vendors", vendor, "Vendor "+vendor.Name+" deleted.")
	return vendor, nil
}

func GetVendor(ctx context.Context, id int) (*Vendor, error) {
	return utils.FetchModel[Vendor](ctx, id)
}

func GetVendors(ctx context.Context, name *string, isActive *bool) ([]*Vendor, error) {
	db := config.GetDB()
	var vendors []*Vendor

	dbCtx := db.WithContext(ctx)
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if isActive != nil {
		dbCtx = dbCtx.Where("is_active = ?", *isActive)
	}
	err := dbCtx.Order("name ASC").Find(&vendors).Error
	if err != nil {
		return nil, err
	}
	return vendors, nil
}
