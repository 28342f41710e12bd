package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type Customer struct {
	ID                     int          `gorm:"primary_key" json:"id"`
	Name                   string       `gorm:"size:100;not null" json:"name" binding:"required"`
	Email                  string       `gorm:"size:100" json:"email"`
	Phone                  string       `gorm:"size:20" json:"phone"`
	PaymentTerms           PaymentTerms `gorm:"type:enum('Net15', 'Net30', 'Net45', 'Net60', 'DueMonthEnd', 'DueNextMonthEnd', 'DueOnReceipt', 'Custom');not null;default:'DueOnReceipt'" json:"payment_terms"`
	PaymentTermsCustomDays int          `gorm:"default:0" json:"payment_terms_custom_days"`
	Notes                  string       `gorm:"type:text" json:"notes"`
	// CreditLimit of zero means unlimited.
	CreditLimit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_limit"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name                   string          `json:"name" binding:"required"`
	Email                  string          `json:"email"`
	Phone                  string          `json:"phone"`
	PaymentTerms           PaymentTerms    `json:"payment_terms"`
	PaymentTermsCustomDays int             `json:"payment_terms_custom_days"`
	Notes                  string          `json:"notes"`
	CreditLimit            decimal.Decimal `json:"credit_limit"`
}

func (c *Customer) GetId() int {
	return c.ID
}

func (input *NewCustomer) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, id); err != nil {
			return err
		}
	}
	// validate unique name
	if err := utils.ValidateUnique[Customer](ctx, "name", input.Name, id); err != nil {
		return err
	}
	// validate email
	if input.Email != "" {
		if !utils.IsValidEmail(input.Email) {
			return utils.NewValidationError("email", "invalid email format")
		}
		if err := utils.ValidateUnique[Customer](ctx, "email", input.Email, id); err != nil {
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
	if input.CreditLimit.IsNegative() {
		return utils.NewValidationError("credit_limit", "credit limit cannot be negative")
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
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

	customer := Customer{
		Name:                   input.Name,
		Email:                  input.Email,
		Phone:                  input.Phone,
		PaymentTerms:           paymentTerms,
		PaymentTermsCustomDays: input.PaymentTermsCustomDays,
		Notes:                  input.Notes,
		CreditLimit:            input.CreditLimit,
		IsActive:               utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, customer.ID, "customers", &customer, "Customer "+customer.Name+" created.")
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	oldCustomer, err := utils.FetchModel[Customer](ctx, id)
	if err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(customer).Updates(map[string]interface{}{
		"Name":                   input.Name,
		"Email":                  input.Email,
		"Phone":                  input.Phone,
		"PaymentTerms":           input.PaymentTerms,
		"PaymentTermsCustomDays": input.PaymentTermsCustomDays,
		"Notes":                  input.Notes,
		"CreditLimit":            input.CreditLimit,
	}).Error
	if err != nil {
		return nil, err
	}

	SaveHistoryUpdate(ctx, id, "customers", oldCustomer, customer, "Customer "+customer.Name+" updated.")
	return customer, nil
}

func ToggleActiveCustomer(ctx context.Context, id int, isActive bool) (*Customer, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(customer).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func DeleteCustomer(ctx context.Context, id int) (*Customer, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, id)
	if err != nil {
		return nil, err
	}

	// Don't delete if used in transactions.
	count, err := utils.ResourceCountWhere[Invoice](ctx, "customer_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("id", "customer has invoices and cannot be deleted")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(customer).Error; err != nil {
		return nil, err
	}

	SaveHistoryDelete(ctx, id, "customers", customer, "Customer "+customer.Name+" deleted.")
	return customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	return utils.FetchModel[Customer](ctx, id)
}

func GetCustomers(ctx context.Context, name *string, isActive *bool) ([]*Customer, error) {
	db := config.GetDB()
	var customers []*Customer

	dbCtx := db.WithContext(ctx)
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if isActive != nil {
		dbCtx = dbCtx.Where("is_active = ?", *isActive)
	}
	err := dbCtx.Order("name ASC").Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

// CustomerOutstandingBalance sums balance_due across the customer's open
// invoices. Used by the credit limit check when confirming a new invoice.
func CustomerOutstandingBalance(ctx context.Context, customerId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var result struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&Invoice{}).
		Select("COALESCE(SUM(balance_due), 0) AS total").
		Where("customer_id = ?", customerId).
		Where("current_status NOT IN ?", []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusVoid}).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}
