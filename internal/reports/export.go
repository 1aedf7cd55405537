package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet is a report flattened into spreadsheet rows.
type Sheet struct {
	Name string
	Rows [][]any
}

// Tabular reports can be exported as spreadsheets.
type Tabular interface {
	Sheet() Sheet
	FileName() string
}

// WriteXLSX renders sheet into an .xlsx workbook. Decimal cells become
// numbers with two decimals, dates become YYYY-MM-DD text.
func WriteXLSX(w io.Writer, sheet Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
		return err
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for r, row := range sheet.Rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+1)
			if err != nil {
				return err
			}
			switch val := v.(type) {
			case decimal.Decimal:
				if err := f.SetCellFloat(sheet.Name, cell, val.InexactFloat64(), 2, 64); err != nil {
					return err
				}
				if err := f.SetCellStyle(sheet.Name, cell, cell, amount); err != nil {
					return err
				}
			case time.Time:
				if err := f.SetCellStr(sheet.Name, cell, val.Format(time.DateOnly)); err != nil {
					return err
				}
			default:
				if err := f.SetCellValue(sheet.Name, cell, val); err != nil {
					return err
				}
			}
		}
	}
	if len(sheet.Rows) > 0 {
		last, err := excelize.CoordinatesToCellName(len(sheet.Rows[0]), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet.Name, "A1", last, bold); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func sectionRows(title string, s Section) [][]any {
	rows := [][]any{{title}}
	for _, a := range s.Accounts {
		rows = append(rows, []any{a.AccountNumber, a.Name, a.Category, a.Balance})
	}
	return append(rows, []any{"", "Total " + title, "", s.Total})
}

func (bs *BalanceSheet) Sheet() Sheet {
	rows := [][]any{{"Account", "Name", "Category", "Balance"}}
	rows = append(rows, sectionRows("Assets", bs.Assets)...)
	rows = append(rows, sectionRows("Liabilities", bs.Liabilities)...)
	rows = append(rows, sectionRows("Equity", bs.Equity)...)
	rows = append(rows,
		[]any{"", "Current earnings", "", bs.CurrentEarnings},
		[]any{"", "Total liabilities and equity", "", bs.TotalLiabilitiesAndEquity},
	)
	return Sheet{Name: "Balance Sheet", Rows: rows}
}

func (bs *BalanceSheet) FileName() string {
	return fmt.Sprintf("balance-sheet-%s.xlsx", bs.AsOf.Format(time.DateOnly))
}

func (is *IncomeStatement) Sheet() Sheet {
	rows := [][]any{{"Account", "Name", "Category", "Amount"}}
	rows = append(rows, sectionRows("Revenue", is.Revenue)...)
	rows = append(rows, sectionRows("Expenses", is.Expenses)...)
	rows = append(rows, []any{"", "Net income", "", is.NetIncome})
	return Sheet{Name: "Income Statement", Rows: rows}
}

func (is *IncomeStatement) FileName() string {
	return fmt.Sprintf("income-statement-%s-%s.xlsx", is.Start.Format(time.DateOnly), is.End.Format(time.DateOnly))
}

func (tb *TrialBalance) Sheet() Sheet {
	rows := [][]any{{"Account", "Name", "Type", "Debit", "Credit"}}
	for _, l := range tb.Accounts {
		rows = append(rows, []any{l.AccountNumber, l.Name, string(l.AccountType), l.Debit, l.Credit})
	}
	rows = append(rows, []any{"", "Total", "", tb.TotalDebits, tb.TotalCredits})
	return Sheet{Name: "Trial Balance", Rows: rows}
}

func (tb *TrialBalance) FileName() string {
	return fmt.Sprintf("trial-balance-%s.xlsx", tb.AsOf.Format(time.DateOnly))
}

func (gl *GeneralLedger) Sheet() Sheet {
	rows := [][]any{
		{"Date", "Transaction", "Description", "Debit", "Credit", "Balance", "End of day"},
		{gl.Start.AddDate(0, 0, -1), "", "Opening balance", "", "", gl.OpeningBalance},
	}
	for _, l := range gl.Lines {
		rows = append(rows, []any{l.Date, l.TransactionNumber, l.Description, l.Debit, l.Credit, l.Balance, l.DayBalance})
	}
	rows = append(rows, []any{gl.End, "", "Closing balance", "", "", gl.ClosingBalance})
	return Sheet{Name: "General Ledger", Rows: rows}
}

func (gl *GeneralLedger) FileName() string {
	return fmt.Sprintf("general-ledger-%s-%s-%s.xlsx", gl.AccountNumber, gl.Start.Format(time.DateOnly), gl.End.Format(time.DateOnly))
}

func (cf *CashFlowStatement) Sheet() Sheet {
	return Sheet{Name: "Cash Flow", Rows: [][]any{
		{"Line", "Amount"},
		{"Beginning cash", cf.BeginningCash},
		{"Operating activities", cf.OperatingActivities},
		{"Investing activities", cf.InvestingActivities},
		{"Financing activities", cf.FinancingActivities},
		{"Net cash flow", cf.NetCashFlow},
		{"Ending cash", cf.EndingCash},
	}}
}

func (cf *CashFlowStatement) FileName() string {
	return fmt.Sprintf("cash-flow-%s-%s.xlsx", cf.Start.Format(time.DateOnly), cf.End.Format(time.DateOnly))
}
