package models

import (
	"log"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Account{},
		&Transaction{}, &TransactionLine{},
		&Customer{}, &Vendor{},
		&Item{}, &InventoryTransaction{},
		&Invoice{}, &InvoiceLine{},
		&Bill{}, &BillLine{},
		&Payment{}, &PaymentApplication{},
		&BillPayment{}, &BillPaymentApplication{},
		&History{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
