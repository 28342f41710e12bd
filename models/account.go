package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Account struct {
	ID                int             `gorm:"primary_key" json:"id"`
	Code              string          `gorm:"uniqueIndex;size:100;not null" json:"code" binding:"required"`
	Name              string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	MainType          AccountMainType `gorm:"type:enum('Asset', 'Liability', 'Equity', 'Income', 'Expense', 'COGS', 'Other Income', 'Other Expense');default:'Expense';index;size:16;not null" json:"main_type" binding:"required"`
	NormalBalance     NormalBalance   `gorm:"size:16;not null;default:'DEBIT';index" json:"normal_balance"`
	Description       string          `gorm:"type:text" json:"description"`
	ParentAccountId   int             `gorm:"index;not null" json:"parent_account_id"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	IsSystemDefault   *bool           `gorm:"not null;default:false" json:"is_system_default"`
	SystemDefaultCode string          `gorm:"index;size:3" json:"system_default_code"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Code            string          `json:"code" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	MainType        AccountMainType `json:"main_type" binding:"required"`
	NormalBalance   NormalBalance   `json:"normal_balance"`
	Description     string          `json:"description"`
	ParentAccountId int             `json:"parent_account_id"`
}

// AccountTreeNode is an account with its children resolved, used by the
// chart-of-accounts view.
type AccountTreeNode struct {
	*Account
	Children []*AccountTreeNode `json:"children"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewAccount) validate(ctx context.Context, id int) error {
	if id > 0 {
		if id == input.ParentAccountId {
			return utils.NewValidationError("parent_account_id", "self-parent not allowed")
		}
		if err := utils.ValidateResourceId[Account](ctx, id); err != nil {
			return err
		}
	}
	if err := input.MainType.Validate(); err != nil {
		return utils.NewValidationError("main_type", err.Error())
	}
	if input.NormalBalance != "" {
		if err := input.NormalBalance.Validate(); err != nil {
			return utils.NewValidationError("normal_balance", err.Error())
		}
	}
	// code
	if err := utils.ValidateUnique[Account](ctx, "code", input.Code, id); err != nil {
		return utils.NewValidationError("code", "duplicate code")
	}
	// name
	if err := utils.ValidateUnique[Account](ctx, "name", input.Name, id); err != nil {
		return utils.NewValidationError("name", "duplicate name")
	}

	if input.ParentAccountId > 0 {
		parent, err := utils.FetchModel[Account](ctx, input.ParentAccountId)
		if err != nil {
			return utils.NewValidationError("parent_account_id", "parent not found")
		}
		if parent.MainType != input.MainType {
			return utils.NewValidationError("parent_account_id", "parent must have the same main type")
		}
		if id > 0 {
			if err := validateParentChain(ctx, id, input.ParentAccountId); err != nil {
				return err
			}
		}
	}
	return nil
}

// parentChainHasCycle walks the parent chain upward from parentId and
// reports whether it reaches accountId, which would make the account its
// own ancestor. parentOf maps account id to parent id.
func parentChainHasCycle(parentOf map[int]int, accountId, parentId int) bool {
	for steps := 0; parentId != 0; steps++ {
		if parentId == accountId {
			return true
		}
		// a chain longer than the chart itself is already looped
		if steps > len(parentOf) {
			return true
		}
		parentId = parentOf[parentId]
	}
	return false
}

// validateParentChain rejects a parent that sits inside the account's own
// subtree, so the chart of accounts stays a forest.
func validateParentChain(ctx context.Context, accountId, parentId int) error {
	db := config.GetDB()
	var accounts []*Account
	if err := db.WithContext(ctx).Select("id", "parent_account_id").Find(&accounts).Error; err != nil {
		return err
	}
	parentOf := make(map[int]int, len(accounts))
	for _, acc := range accounts {
		parentOf[acc.ID] = acc.ParentAccountId
	}
	if parentChainHasCycle(parentOf, accountId, parentId) {
		return utils.NewValidationError("parent_account_id", "parent cannot be the account or one of its descendants")
	}
	return nil
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {

	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	normalBalance := input.NormalBalance
	if normalBalance == "" {
		normalBalance = DefaultNormalBalance(input.MainType)
	}

	account := Account{
		Code:            input.Code,
		Name:            input.Name,
		MainType:        input.MainType,
		NormalBalance:   normalBalance,
		Description:     input.Description,
		ParentAccountId: input.ParentAccountId,
		IsActive:        utils.NewTrue(),
		IsSystemDefault: utils.NewFalse(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&account).Error
	if err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, account.ID, "accounts", account, "Account "+account.Code+" created.")
	return &account, nil
}

func UpdateAccount(ctx context.Context, id int, input *NewAccount) (*Account, error) {

	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	account, err := utils.FetchModel[Account](ctx, id)
	if err != nil {
		return nil, err
	}
	oldAccount := *account

	updates := map[string]interface{}{
		"Name":        input.Name,
		"Description": input.Description,
	}

	// Type, code and hierarchy stay fixed on system accounts so posting
	// code can keep resolving them.
	if !*account.IsSystemDefault {
		updates["Code"] = input.Code
		updates["MainType"] = input.MainType
		if input.NormalBalance != "" {
			updates["NormalBalance"] = input.NormalBalance
		}
		if input.ParentAccountId > 0 {
			updates["ParentAccountId"] = input.ParentAccountId
		}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&account).Updates(updates).Error
	if err != nil {
		return nil, err
	}

	_ = utils.RemoveRedisItem[Account](id)
	SaveHistoryUpdate(ctx, id, "accounts", oldAccount, account, "Account "+account.Code+" updated.")
	return account, nil
}

func MarkAccountActive(ctx context.Context, id int, isActive bool) (*Account, error) {

	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var main *Account

	err := db.WithContext(ctx).First(&main, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	tx := db.Begin()
	err = markChildAccountsActive(tx, ctx, main, isActive)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	actionType := "deactivated"
	if isActive {
		actionType = "activated"
	}
	SaveHistoryUpdate(ctx, id, "accounts", nil, nil, "Account "+main.Code+" "+actionType+" with its children.")
	return main, nil
}

// deactivating an account cascades to its whole subtree
func markChildAccountsActive(tx *gorm.DB, ctx context.Context, main *Account, isActive bool) error {
	err := tx.WithContext(ctx).Model(&main).Updates(Account{
		IsActive: &isActive,
	}).Error
	if err != nil {
		return err
	}
	_ = utils.RemoveRedisItem[Account](main.ID)

	var children []*Account
	err = tx.WithContext(ctx).Where("parent_account_id = ?", main.ID).Find(&children).Error
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := markChildAccountsActive(tx, ctx, child, isActive); err != nil {
			return err
		}
	}
	return nil
}

func DeleteAccount(ctx context.Context, id int) (*Account, error) {

	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()

	result, err := utils.FetchModel[Account](ctx, id)
	if err != nil {
		return nil, err
	}

	if result.IsSystemDefault != nil && *result.IsSystemDefault {
		return nil, errors.New("cannot delete system-default account")
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Account{}).
		Where("parent_account_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("this account has child account(s)")
	}

	if err := db.WithContext(ctx).Model(&TransactionLine{}).
		Where("account_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("this account has transactions")
	}

	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	_ = utils.RemoveRedisItem[Account](id)
	SaveHistoryDelete(ctx, id, "accounts", result, "Account "+result.Code+" deleted.")
	return result, nil
}

func GetAccount(ctx context.Context, id int) (*Account, error) {
	return utils.FetchModel[Account](ctx, id)
}

func GetAccounts(ctx context.Context, name *string, code *string) ([]*Account, error) {

	db := config.GetDB()
	var results []*Account

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if code != nil && len(*code) > 0 {
		dbCtx = dbCtx.Where("code LIKE ?", "%"+*code+"%")
	}
	err := dbCtx.Order("code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetAccountTree returns the chart of accounts as a forest rooted at
// accounts without a parent.
func GetAccountTree(ctx context.Context) ([]*AccountTreeNode, error) {
	accounts, err := GetAccounts(ctx, nil, nil)
	if err != nil {
		return nil, err
	}

	nodes := make(map[int]*AccountTreeNode, len(accounts))
	for _, account := range accounts {
		nodes[account.ID] = &AccountTreeNode{Account: account}
	}

	var roots []*AccountTreeNode
	for _, account := range accounts {
		node := nodes[account.ID]
		if parent, ok := nodes[account.ParentAccountId]; ok && account.ParentAccountId != account.ID {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots, nil
}

// collectSubtreeIds returns the account's id plus all descendant ids.
func collectSubtreeIds(ctx context.Context, accountId int) ([]int, error) {
	db := config.GetDB()

	ids := []int{accountId}
	frontier := []int{accountId}
	for len(frontier) > 0 {
		var children []int
		if err := db.WithContext(ctx).Model(&Account{}).
			Where("parent_account_id IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		ids = append(ids, children...)
		frontier = children
	}
	return ids, nil
}

// AccountBalance computes the account's signed balance from the ledger as
// of the given date, rolling up descendant accounts. Debit-normal accounts
// report debits minus credits; credit-normal accounts the opposite. Void
// documents contribute nothing because their reversal lines net to zero.
func AccountBalance(ctx context.Context, accountId int, asOf time.Time) (decimal.Decimal, error) {

	account, err := utils.FetchModel[Account](ctx, accountId)
	if err != nil {
		return decimal.Zero, err
	}

	ids, err := collectSubtreeIds(ctx, accountId)
	if err != nil {
		return decimal.Zero, err
	}

	db := config.GetDB()
	type sums struct {
		Debit  decimal.Decimal
		Credit decimal.Decimal
	}
	var result sums
	err = db.WithContext(ctx).Model(&TransactionLine{}).
		Select("COALESCE(SUM(debit),0) AS debit, COALESCE(SUM(credit),0) AS credit").
		Where("account_id IN ?", ids).
		Where("transaction_date <= ?", asOf).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}

	if account.NormalBalance == NormalBalanceCredit {
		return result.Credit.Sub(result.Debit), nil
	}
	return result.Debit.Sub(result.Credit), nil
}

// GetSystemAccounts returns the system_default_code => account id map,
// redis-cached. Posting code uses it to resolve AR, revenue, tax and
// inventory accounts without configuration.
func GetSystemAccounts(ctx context.Context) (map[string]int, error) {
	var accounts []*Account
	var sysAccounts map[string]int

	exists, err := config.GetRedisObject("SystemAccounts", &sysAccounts)
	if err != nil {
		return nil, err
	}
	if !exists || len(sysAccounts) == 0 {
		db := config.GetDB()
		if err := db.WithContext(ctx).Select("id", "system_default_code").
			Where("is_system_default = ?", true).Find(&accounts).Error; err != nil {
			return nil, err
		}
		sysAccounts = make(map[string]int)
		for _, acc := range accounts {
			sysAccounts[acc.SystemDefaultCode] = acc.ID
		}
		if err := config.SetRedisObject("SystemAccounts", &sysAccounts, 0); err != nil {
			return nil, err
		}
	}
	return sysAccounts, nil
}

func getSystemAccount(ctx context.Context, code string) (int, error) {
	sysAccounts, err := GetSystemAccounts(ctx)
	if err != nil {
		return 0, err
	}
	id, ok := sysAccounts[code]
	if !ok || id == 0 {
		return 0, errors.New("system account not seeded: " + code)
	}
	return id, nil
}

type systemAccountSeed struct {
	Code          string
	Name          string
	MainType      AccountMainType
	NormalBalance NormalBalance
	SystemCode    string
}

var systemAccountSeeds = []systemAccountSeed{
	{"1000", "Cash", AccountMainTypeAsset, NormalBalanceDebit, SystemAccountCash},
	{"1100", "Accounts Receivable", AccountMainTypeAsset, NormalBalanceDebit, SystemAccountAccountsReceivable},
	{"1200", "Inventory Asset", AccountMainTypeAsset, NormalBalanceDebit, SystemAccountInventoryAsset},
	{"2000", "Accounts Payable", AccountMainTypeLiability, NormalBalanceCredit, SystemAccountAccountsPayable},
	{"2100", "Tax Payable", AccountMainTypeLiability, NormalBalanceCredit, SystemAccountTaxPayable},
	{"2200", "Unapplied Payments", AccountMainTypeLiability, NormalBalanceCredit, SystemAccountUnappliedPayments},
	{"4000", "Sales Revenue", AccountMainTypeIncome, NormalBalanceCredit, SystemAccountSalesRevenue},
	{"4100", "Discounts", AccountMainTypeIncome, NormalBalanceDebit, SystemAccountDiscounts},
	{"5000", "Cost of Goods Sold", AccountMainTypeCOGS, NormalBalanceDebit, SystemAccountCOGS},
	{"5100", "Inventory Adjustment", AccountMainTypeExpense, NormalBalanceDebit, SystemAccountAdjustment},
}

// EnsureSystemAccounts seeds the default chart of accounts. Existing
// system accounts are left untouched, so re-running is safe.
func EnsureSystemAccounts(ctx context.Context) error {
	db := config.GetDB()

	for _, seed := range systemAccountSeeds {
		var count int64
		if err := db.WithContext(ctx).Model(&Account{}).
			Where("system_default_code = ?", seed.SystemCode).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		account := Account{
			Code:              seed.Code,
			Name:              seed.Name,
			MainType:          seed.MainType,
			NormalBalance:     seed.NormalBalance,
			IsActive:          utils.NewTrue(),
			IsSystemDefault:   utils.NewTrue(),
			SystemDefaultCode: seed.SystemCode,
		}
		if err := db.WithContext(ctx).Create(&account).Error; err != nil {
			return err
		}
	}
	return config.RemoveRedisKey("SystemAccounts")
}
