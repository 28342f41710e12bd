package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/models/reports"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

func TestInvoicePaymentLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ledger_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	if err := models.EnsureSystemAccounts(ctx); err != nil {
		t.Fatalf("EnsureSystemAccounts: %v", err)
	}
	sysAccounts, err := models.GetSystemAccounts(ctx)
	if err != nil {
		t.Fatalf("GetSystemAccounts: %v", err)
	}

	// A missing id maps to the not-found sentinel, not a generic error.
	if _, err := models.GetInvoice(ctx, 999999); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("missing invoice: got %v, want %v", err, utils.ErrorRecordNotFound)
	}

	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:         "Acme Traders",
		PaymentTerms: models.PaymentTermsNet30,
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	item, err := models.CreateItem(ctx, &models.NewItem{
		Name:          "Widget",
		CostingMethod: models.CostingMethodFIFO,
		SalesPrice:    decimal.NewFromInt(10),
		PurchaseCost:  decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	day1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	if _, err := models.RecordPurchase(ctx, item.ID, decimal.NewFromInt(10), decimal.RequireFromString("2.00"), day1); err != nil {
		t.Fatalf("RecordPurchase lot 1: %v", err)
	}
	if _, err := models.RecordPurchase(ctx, item.ID, decimal.NewFromInt(10), decimal.RequireFromString("3.00"), day2); err != nil {
		t.Fatalf("RecordPurchase lot 2: %v", err)
	}

	invoiceDate := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	invoice, err := models.CreateInvoice(ctx, &models.NewInvoice{
		CustomerId:    customer.ID,
		InvoiceDate:   invoiceDate,
		CurrentStatus: models.InvoiceStatusSent,
		Lines: []models.NewInvoiceLine{
			{ItemId: item.ID, Name: "Widget", Qty: decimal.NewFromInt(15), UnitPrice: decimal.RequireFromString("10.00")},
		},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if invoice.CurrentStatus != models.InvoiceStatusSent {
		t.Fatalf("invoice status = %s, want Sent", invoice.CurrentStatus)
	}
	if !invoice.TotalAmount.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("invoice total = %s, want 150.00", invoice.TotalAmount)
	}
	if !invoice.BalanceDue.Equal(invoice.TotalAmount) {
		t.Fatalf("balance due = %s, want %s", invoice.BalanceDue, invoice.TotalAmount)
	}

	// Confirming consumed 15 of 20 units.
	item, err = models.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !item.QuantityOnHand.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("on hand = %s, want 5", item.QuantityOnHand)
	}

	// FIFO COGS crosses the lots: 10 @ 2.00 + 5 @ 3.00.
	rows, err := reports.GetTrialBalanceReport(ctx, invoiceDate)
	if err != nil {
		t.Fatalf("GetTrialBalanceReport: %v", err)
	}
	assertTrialBalanceAmount(t, rows, sysAccounts[models.SystemAccountCOGS], "35.00", "0")
	assertTrialBalanceAmount(t, rows, sysAccounts[models.SystemAccountSalesRevenue], "0", "150.00")
	assertTrialBalanceAmount(t, rows, sysAccounts[models.SystemAccountAccountsReceivable], "150.00", "0")
	totalDebit, totalCredit := reports.TrialBalanceTotals(rows)
	if !totalDebit.Equal(totalCredit) {
		t.Fatalf("trial balance out of balance: %s vs %s", totalDebit, totalCredit)
	}

	// Applying more than the open balance must fail atomically.
	_, err = models.CreatePayment(ctx, &models.NewPayment{
		CustomerId:  customer.ID,
		PaymentDate: invoiceDate,
		Amount:      decimal.NewFromInt(200),
		Applications: []models.NewPaymentApplication{
			{InvoiceId: invoice.ID, AppliedAmount: decimal.NewFromInt(200)},
		},
	})
	if !errors.Is(err, utils.ErrorOverApplication) {
		t.Fatalf("over-application: got %v, want %v", err, utils.ErrorOverApplication)
	}

	bank, err := models.CreateAccount(ctx, &models.NewAccount{
		Code:     "1010",
		Name:     "Bank",
		MainType: models.AccountMainTypeAsset,
	})
	if err != nil {
		t.Fatalf("CreateAccount bank: %v", err)
	}

	p1, err := models.CreatePayment(ctx, &models.NewPayment{
		CustomerId:       customer.ID,
		PaymentDate:      invoiceDate,
		Amount:           decimal.NewFromInt(100),
		DepositAccountId: bank.ID,
		Applications: []models.NewPaymentApplication{
			{InvoiceId: invoice.ID, AppliedAmount: decimal.NewFromInt(100)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePayment p1: %v", err)
	}
	if p1.DepositAccountId != bank.ID {
		t.Fatalf("p1 deposit account = %d, want %d", p1.DepositAccountId, bank.ID)
	}

	// The debit lands on the chosen deposit account, not cash.
	rows, err = reports.GetTrialBalanceReport(ctx, invoiceDate)
	if err != nil {
		t.Fatalf("GetTrialBalanceReport after p1: %v", err)
	}
	assertTrialBalanceAmount(t, rows, bank.ID, "100.00", "0")
	invoice = mustGetInvoice(t, ctx, invoice.ID)
	if invoice.CurrentStatus != models.InvoiceStatusPartialPaid {
		t.Fatalf("invoice status after p1 = %s, want Partial Paid", invoice.CurrentStatus)
	}
	if !invoice.BalanceDue.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("balance due after p1 = %s, want 50.00", invoice.BalanceDue)
	}

	// Payment larger than the remaining balance: the rest stays unapplied.
	p2, err := models.CreatePayment(ctx, &models.NewPayment{
		CustomerId:  customer.ID,
		PaymentDate: invoiceDate,
		Amount:      decimal.NewFromInt(60),
		Applications: []models.NewPaymentApplication{
			{InvoiceId: invoice.ID, AppliedAmount: decimal.NewFromInt(50)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePayment p2: %v", err)
	}
	if !p2.UnappliedAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("p2 unapplied = %s, want 10", p2.UnappliedAmount)
	}
	if p2.DepositAccountId != sysAccounts[models.SystemAccountCash] {
		t.Fatalf("p2 deposit account = %d, want the cash account %d", p2.DepositAccountId, sysAccounts[models.SystemAccountCash])
	}
	invoice = mustGetInvoice(t, ctx, invoice.ID)
	if invoice.CurrentStatus != models.InvoiceStatusPaid {
		t.Fatalf("invoice status after p2 = %s, want Paid", invoice.CurrentStatus)
	}

	// A paid invoice cannot be voided while payments are applied.
	if _, err := models.VoidInvoice(ctx, invoice.ID, "duplicate"); err == nil {
		t.Fatal("VoidInvoice should fail while payments are applied")
	}

	if _, err := models.VoidPayment(ctx, p2.ID, "entered twice"); err != nil {
		t.Fatalf("VoidPayment p2: %v", err)
	}
	invoice = mustGetInvoice(t, ctx, invoice.ID)
	if invoice.CurrentStatus != models.InvoiceStatusPartialPaid {
		t.Fatalf("invoice status after voiding p2 = %s, want Partial Paid", invoice.CurrentStatus)
	}
	if !invoice.BalanceDue.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("balance due after voiding p2 = %s, want 50.00", invoice.BalanceDue)
	}

	if _, err := models.VoidPayment(ctx, p1.ID, "entered twice"); err != nil {
		t.Fatalf("VoidPayment p1: %v", err)
	}
	invoice = mustGetInvoice(t, ctx, invoice.ID)
	if invoice.CurrentStatus != models.InvoiceStatusSent {
		t.Fatalf("invoice status after voiding p1 = %s, want Sent", invoice.CurrentStatus)
	}

	voided, err := models.VoidInvoice(ctx, invoice.ID, "duplicate entry")
	if err != nil {
		t.Fatalf("VoidInvoice: %v", err)
	}
	if voided.CurrentStatus != models.InvoiceStatusVoid {
		t.Fatalf("invoice status = %s, want Void", voided.CurrentStatus)
	}
	if !voided.BalanceDue.IsZero() {
		t.Fatalf("voided balance due = %s, want 0", voided.BalanceDue)
	}

	// Void restores the consumed stock at original costs.
	item, err = models.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem after void: %v", err)
	}
	if !item.QuantityOnHand.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("on hand after void = %s, want 20", item.QuantityOnHand)
	}

	// Every posting now has a reversal, so the trial balance nets to zero.
	rows, err = reports.GetTrialBalanceReport(ctx, invoiceDate)
	if err != nil {
		t.Fatalf("GetTrialBalanceReport after voids: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty trial balance after voids, got %d rows", len(rows))
	}

	// The original transactions are still there, immutable, with reversal links.
	sourceType := models.TransactionSourceTypeInvoice
	txns, err := models.GetTransactions(ctx, nil, nil, &sourceType)
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	var active, reversals int
	for _, txn := range txns {
		if txn.IsReversal {
			reversals++
			continue
		}
		if txn.ReversedByTransactionId == nil {
			active++
		}
	}
	if active != 0 {
		t.Fatalf("voided invoice still has %d active transactions", active)
	}
	if reversals == 0 {
		t.Fatal("expected reversal transactions for the voided invoice")
	}

	// Credit limits reject new drafts too, not just the confirm path.
	limited, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:        "Limited Buyer",
		CreditLimit: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("CreateCustomer limited: %v", err)
	}
	if _, err := models.CreateInvoice(ctx, &models.NewInvoice{
		CustomerId:    limited.ID,
		InvoiceDate:   invoiceDate,
		CurrentStatus: models.InvoiceStatusSent,
		Lines: []models.NewInvoiceLine{
			{Name: "Consulting", Qty: decimal.NewFromInt(9), UnitPrice: decimal.NewFromInt(10)},
		},
	}); err != nil {
		t.Fatalf("CreateInvoice within limit: %v", err)
	}
	_, err = models.CreateInvoice(ctx, &models.NewInvoice{
		CustomerId:  limited.ID,
		InvoiceDate: invoiceDate,
		Lines: []models.NewInvoiceLine{
			{Name: "Consulting", Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(10)},
		},
	})
	if !errors.Is(err, utils.ErrorCreditLimitExceeded) {
		t.Fatalf("draft over credit limit: got %v, want %v", err, utils.ErrorCreditLimitExceeded)
	}

	// Service items never move through the inventory ledger.
	service, err := models.CreateItem(ctx, &models.NewItem{
		Name:       "Setup Fee",
		ItemType:   models.ItemTypeService,
		SalesPrice: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("CreateItem service: %v", err)
	}
	if _, err := models.RecordSale(ctx, service.ID, decimal.NewFromInt(1), invoiceDate); err == nil {
		t.Fatal("RecordSale should reject a service item")
	}
	if _, err := models.RecordPurchase(ctx, service.ID, decimal.NewFromInt(1), decimal.NewFromInt(5), invoiceDate); err == nil {
		t.Fatal("RecordPurchase should reject a service item")
	}

	// Widget stock is back at 20 after the void; a reorder point above
	// that puts it on the low-stock list.
	if _, err := models.UpdateItem(ctx, item.ID, &models.NewItem{
		Name:          item.Name,
		ItemType:      item.ItemType,
		CostingMethod: item.CostingMethod,
		SalesPrice:    item.SalesPrice,
		PurchaseCost:  item.PurchaseCost,
		ReorderPoint:  decimal.NewFromInt(25),
	}); err != nil {
		t.Fatalf("UpdateItem reorder point: %v", err)
	}
	low, err := models.FindLowStockItems(ctx)
	if err != nil {
		t.Fatalf("FindLowStockItems: %v", err)
	}
	foundLow := false
	for _, it := range low {
		if it.ID == item.ID {
			foundLow = true
		}
	}
	if !foundLow {
		t.Fatal("item below its reorder point missing from the low-stock list")
	}
}

func mustGetInvoice(t *testing.T, ctx context.Context, id int) *models.Invoice {
	t.Helper()
	invoice, err := models.GetInvoice(ctx, id)
	if err != nil {
		t.Fatalf("GetInvoice %d: %v", id, err)
	}
	return invoice
}

func assertTrialBalanceAmount(t *testing.T, rows []*reports.TrialBalanceRow, accountId int, wantDebit, wantCredit string) {
	t.Helper()
	for _, row := range rows {
		if row.AccountId != accountId {
			continue
		}
		if !row.Debit.Equal(decimal.RequireFromString(wantDebit)) {
			t.Fatalf("account %d debit = %s, want %s", accountId, row.Debit, wantDebit)
		}
		if !row.Credit.Equal(decimal.RequireFromString(wantCredit)) {
			t.Fatalf("account %d credit = %s, want %s", accountId, row.Credit, wantCredit)
		}
		return
	}
	t.Fatalf("account %d not in trial balance", accountId)
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=ledger_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
