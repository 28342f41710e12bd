package models

import "errors"

type AccountMainType string

const (
	AccountMainTypeAsset        AccountMainType = "Asset"
	AccountMainTypeLiability    AccountMainType = "Liability"
	AccountMainTypeEquity       AccountMainType = "Equity"
	AccountMainTypeIncome       AccountMainType = "Income"
	AccountMainTypeExpense      AccountMainType = "Expense"
	AccountMainTypeCOGS         AccountMainType = "COGS"
	AccountMainTypeOtherIncome  AccountMainType = "Other Income"
	AccountMainTypeOtherExpense AccountMainType = "Other Expense"
)

func (t AccountMainType) Validate() error {
	switch t {
	case AccountMainTypeAsset,
		AccountMainTypeLiability,
		AccountMainTypeEquity,
		AccountMainTypeIncome,
		AccountMainTypeExpense,
		AccountMainTypeCOGS,
		AccountMainTypeOtherIncome,
		AccountMainTypeOtherExpense:
		return nil
	}
	return errors.New("invalid account main type")
}

type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

func (t NormalBalance) Validate() error {
	switch t {
	case NormalBalanceDebit, NormalBalanceCredit:
		return nil
	}
	return errors.New("invalid normal balance")
}

// DefaultNormalBalance returns the conventional balance side for a main type.
func DefaultNormalBalance(mainType AccountMainType) NormalBalance {
	switch mainType {
	case AccountMainTypeAsset, AccountMainTypeExpense, AccountMainTypeCOGS, AccountMainTypeOtherExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// System default account codes. Seeded accounts carry one of these so
// posting code can resolve them without hard-coded ids.
const (
	SystemAccountAccountsReceivable = "AR"
	SystemAccountAccountsPayable    = "AP"
	SystemAccountSalesRevenue       = "REV"
	SystemAccountTaxPayable         = "TAX"
	SystemAccountInventoryAsset     = "INV"
	SystemAccountCOGS               = "COG"
	SystemAccountCash               = "CSH"
	SystemAccountAdjustment         = "ADJ"
	SystemAccountUnappliedPayments  = "UNP"
	SystemAccountDiscounts          = "DSC"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft       InvoiceStatus = "Draft"
	InvoiceStatusSent        InvoiceStatus = "Sent"
	InvoiceStatusPartialPaid InvoiceStatus = "Partial Paid"
	InvoiceStatusPaid        InvoiceStatus = "Paid"
	InvoiceStatusOverdue     InvoiceStatus = "Overdue"
	InvoiceStatusVoid        InvoiceStatus = "Void"
)

type BillStatus string

const (
	BillStatusDraft       BillStatus = "Draft"
	BillStatusReceived    BillStatus = "Received"
	BillStatusPartialPaid BillStatus = "Partial Paid"
	BillStatusPaid        BillStatus = "Paid"
	BillStatusOverdue     BillStatus = "Overdue"
	BillStatusVoid        BillStatus = "Void"
)

type ItemType string

const (
	ItemTypeInventory    ItemType = "inventory"
	ItemTypeNonInventory ItemType = "non_inventory"
	ItemTypeService      ItemType = "service"
)

func (t ItemType) Validate() error {
	switch t {
	case ItemTypeInventory, ItemTypeNonInventory, ItemTypeService:
		return nil
	}
	return errors.New("invalid item type")
}

// TracksStock reports whether items of this type move through the
// inventory ledger.
func (t ItemType) TracksStock() bool {
	return t == ItemTypeInventory
}

type CostingMethod string

const (
	CostingMethodFIFO    CostingMethod = "FIFO"
	CostingMethodLIFO    CostingMethod = "LIFO"
	CostingMethodAverage CostingMethod = "Average"
)

func (m CostingMethod) Validate() error {
	switch m {
	case CostingMethodFIFO, CostingMethodLIFO, CostingMethodAverage:
		return nil
	}
	return errors.New("invalid costing method")
}

type PaymentTerms string

const (
	PaymentTermsNet15             PaymentTerms = "Net15"
	PaymentTermsNet30             PaymentTerms = "Net30"
	PaymentTermsNet45             PaymentTerms = "Net45"
	PaymentTermsNet60             PaymentTerms = "Net60"
	PaymentTermsDueEndOfMonth     PaymentTerms = "DueMonthEnd"
	PaymentTermsDueEndOfNextMonth PaymentTerms = "DueNextMonthEnd"
	PaymentTermsDueOnReceipt      PaymentTerms = "DueOnReceipt"
	PaymentTermsCustom            PaymentTerms = "Custom"
)

func (p PaymentTerms) Validate() error {
	switch p {
	case PaymentTermsNet15,
		PaymentTermsNet30,
		PaymentTermsNet45,
		PaymentTermsNet60,
		PaymentTermsDueEndOfMonth,
		PaymentTermsDueEndOfNextMonth,
		PaymentTermsDueOnReceipt,
		PaymentTermsCustom:
		return nil
	}
	return errors.New("invalid payment terms")
}

// TransactionSourceType identifies the document a ledger transaction was
// posted for.
type TransactionSourceType string

const (
	TransactionSourceTypeManual       TransactionSourceType = "JN"
	TransactionSourceTypeInvoice      TransactionSourceType = "IV"
	TransactionSourceTypeBill         TransactionSourceType = "BL"
	TransactionSourceTypePayment      TransactionSourceType = "PM"
	TransactionSourceTypeBillPayment  TransactionSourceType = "BP"
	TransactionSourceTypeInventoryAdj TransactionSourceType = "IVA"
	TransactionSourceTypeOpeningBal   TransactionSourceType = "OB"
)

type InventoryMovementType string

const (
	InventoryMovementTypePurchase   InventoryMovementType = "Purchase"
	InventoryMovementTypeSale       InventoryMovementType = "Sale"
	InventoryMovementTypeAdjustment InventoryMovementType = "Adjustment"
)
