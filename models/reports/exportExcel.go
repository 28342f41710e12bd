package reports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sheet1"

// ExportTrialBalanceExcel streams the trial balance as an xlsx download.
func ExportTrialBalanceExcel() gin.HandlerFunc {
	return func(c *gin.Context) {
		toDate := time.Now().UTC()
		if v := c.Query("to_date"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to_date"})
				return
			}
			toDate = parsed
		}

		rows, err := GetTrialBalanceReport(c.Request.Context(), toDate)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		f, err := buildTrialBalanceFile(rows)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=trial_balance.xlsx")
		if err := f.Write(c.Writer); err != nil {
			_ = c.Error(err)
		}
	}
}

func buildTrialBalanceFile(rows []*TrialBalanceRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if _, err := f.NewSheet(exportSheet); err != nil {
		return nil, err
	}

	f.SetCellValue(exportSheet, "A1", "Code")
	f.SetCellValue(exportSheet, "B1", "Account")
	f.SetCellValue(exportSheet, "C1", "Type")
	f.SetCellValue(exportSheet, "D1", "Debit")
	f.SetCellValue(exportSheet, "E1", "Credit")

	for i, row := range rows {
		rowNo := i + 2
		f.SetCellValue(exportSheet, "A"+fmt.Sprint(rowNo), row.AccountCode)
		f.SetCellValue(exportSheet, "B"+fmt.Sprint(rowNo), row.AccountName)
		f.SetCellValue(exportSheet, "C"+fmt.Sprint(rowNo), string(row.MainType))
		f.SetCellValue(exportSheet, "D"+fmt.Sprint(rowNo), row.Debit.InexactFloat64())
		f.SetCellValue(exportSheet, "E"+fmt.Sprint(rowNo), row.Credit.InexactFloat64())
	}

	totalDebit, totalCredit := TrialBalanceTotals(rows)
	totalRow := len(rows) + 2
	f.SetCellValue(exportSheet, "B"+fmt.Sprint(totalRow), "Total")
	f.SetCellValue(exportSheet, "D"+fmt.Sprint(totalRow), totalDebit.InexactFloat64())
	f.SetCellValue(exportSheet, "E"+fmt.Sprint(totalRow), totalCredit.InexactFloat64())

	return f, nil
}

// ExportARAgingExcel streams the AR aging summary as an xlsx download.
func ExportARAgingExcel() gin.HandlerFunc {
	return func(c *gin.Context) {
		currentDate := time.Now().UTC()
		if v := c.Query("current_date"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid current_date"})
				return
			}
			currentDate = parsed
		}

		rows, err := GetARAgingSummaryReport(c.Request.Context(), currentDate)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		f := excelize.NewFile()
		if _, err := f.NewSheet(exportSheet); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		headers := []string{"Customer", "Current", "1-15", "16-30", "31-45", "46+", "Total", "Invoices"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(exportSheet, cell, h)
		}
		for i, row := range rows {
			values := []interface{}{
				row.CustomerName,
				row.Current.InexactFloat64(),
				row.Int1to15.InexactFloat64(),
				row.Int16to30.InexactFloat64(),
				row.Int31to45.InexactFloat64(),
				row.Int46plus.InexactFloat64(),
				row.Total.InexactFloat64(),
				row.InvoiceCount,
			}
			for j, v := range values {
				cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
				f.SetCellValue(exportSheet, cell, v)
			}
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=ar_aging.xlsx")
		if err := f.Write(c.Writer); err != nil {
			_ = c.Error(err)
		}
	}
}

// SaveTrialBalanceExcel writes the trial balance to a local file. Used by
// the reconcile CLI.
func SaveTrialBalanceExcel(ctx context.Context, toDate time.Time, filename string) error {
	rows, err := GetTrialBalanceReport(ctx, toDate)
	if err != nil {
		return err
	}
	f, err := buildTrialBalanceFile(rows)
	if err != nil {
		return err
	}
	return f.SaveAs(filename)
}
