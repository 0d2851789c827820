package documents

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "housing-ledger/internal/billing/domain"
)

// BuildBillPDF renders a bill as a one-page PDF.
func BuildBillPDF(account billing.Account, bill billing.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Utility Bill")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Account: %s", account.Number))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Owner: %s", account.OwnerName))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Address: %s", account.Address))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", billing.FormatPeriod(bill.Period)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Issued: %s", bill.CreatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Service", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Tariff", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Consumption", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range bill.Items {
		pdf.CellFormat(60, 6, item.ServiceName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, item.Tariff.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, item.Consumption.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, billing.FormatMoney(item.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(130, 6, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 6, billing.FormatMoney(bill.TotalAmount), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAnalyticsXLSX renders an analytics result with summary, daily and debtors sheets.
func BuildAnalyticsXLSX(result billing.AnalyticsResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	dailySheet := "daily"
	debtorsSheet := "debtors"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(dailySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(debtorsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Collection Analytics")
	_ = f.SetCellValue(summarySheet, "A3", "From")
	_ = f.SetCellValue(summarySheet, "B3", billing.FormatDay(result.From))
	_ = f.SetCellValue(summarySheet, "A4", "To")
	_ = f.SetCellValue(summarySheet, "B4", billing.FormatDay(result.To))
	_ = f.SetCellValue(summarySheet, "A5", "Total Charged")
	_ = f.SetCellValue(summarySheet, "B5", result.TotalCharged.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A6", "Total Collected")
	_ = f.SetCellValue(summarySheet, "B6", result.TotalCollected.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A7", "Collection %")
	_ = f.SetCellValue(summarySheet, "B7", result.CollectionPercent.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A8", "Total Debt")
	_ = f.SetCellValue(summarySheet, "B8", result.TotalDebt.InexactFloat64())

	_ = f.SetCellValue(dailySheet, "A1", "Date")
	_ = f.SetCellValue(dailySheet, "B1", "Collected")
	for i, point := range result.DailySeries {
		row := i + 2
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", row), billing.FormatDay(point.Day))
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", row), point.Amount.InexactFloat64())
	}

	_ = f.SetCellValue(debtorsSheet, "A1", "Account")
	_ = f.SetCellValue(debtorsSheet, "B1", "Owner")
	_ = f.SetCellValue(debtorsSheet, "C1", "Address")
	_ = f.SetCellValue(debtorsSheet, "D1", "Debt")
	for i, debtor := range result.TopDebtors {
		row := i + 2
		_ = f.SetCellValue(debtorsSheet, fmt.Sprintf("A%d", row), debtor.AccountNumber)
		_ = f.SetCellValue(debtorsSheet, fmt.Sprintf("B%d", row), debtor.OwnerName)
		_ = f.SetCellValue(debtorsSheet, fmt.Sprintf("C%d", row), debtor.Address)
		_ = f.SetCellValue(debtorsSheet, fmt.Sprintf("D%d", row), debtor.DebtAmount.InexactFloat64())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
