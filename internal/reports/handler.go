package reports

import (
	"bytes"
	"fmt"
	"time"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/httpx"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// respond sends the report as JSON, or as a spreadsheet with ?format=xlsx.
func respond(c *fiber.Ctx, report Tabular) error {
	switch c.Query("format", "json") {
	case "json":
		return c.JSON(report)
	case "xlsx":
		var buf bytes.Buffer
		if err := WriteXLSX(&buf, report.Sheet()); err != nil {
			return apperr.Internal("Failed to export report", err)
		}
		c.Set(fiber.HeaderContentType, xlsxContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.FileName()))
		return c.Send(buf.Bytes())
	default:
		return apperr.Validation("Unsupported format, use json or xlsx")
	}
}

// monthBounds returns the first and last day of the month containing day.
func monthBounds(day time.Time) (time.Time, time.Time) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

// period reads start/end query dates, defaulting to the current month.
func period(c *fiber.Ctx) (time.Time, time.Time, error) {
	defStart, defEnd := monthBounds(httpx.Today())
	start, err := httpx.RequiredDate(c, "start", defStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := httpx.RequiredDate(c, "end", defEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// GET /api/reports/balance-sheet?as_of=2024-12-31&comparative=true&format=xlsx
func BalanceSheetHandler(g *Generator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		asOf, err := httpx.RequiredDate(c, "as_of", httpx.Today())
		if err != nil {
			return err
		}
		report, err := g.BalanceSheet(c.UserContext(), asOf, c.QueryBool("comparative", false))
		if err != nil {
			return err
		}
		return respond(c, report)
	}
}

// GET /api/reports/income-statement?start=2024-01-01&end=2024-12-31&comparative=true
func IncomeStatementHandler(g *Generator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, end, err := period(c)
		if err != nil {
			return err
		}
		report, err := g.IncomeStatement(c.UserContext(), start, end, c.QueryBool("comparative", false))
		if err != nil {
			return err
		}
		return respond(c, report)
	}
}

// GET /api/reports/trial-balance?as_of=2024-12-31
func TrialBalanceHandler(g *Generator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		asOf, err := httpx.RequiredDate(c, "as_of", httpx.Today())
		if err != nil {
			return err
		}
		report, err := g.TrialBalance(c.UserContext(), asOf)
		if err != nil {
			return err
		}
		return respond(c, report)
	}
}

// GET /api/reports/general-ledger/:accountID?start=2024-01-01&end=2024-01-31
func GeneralLedgerHandler(g *Generator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := httpx.ParamID(c, "accountID")
		if err != nil {
			return err
		}
		start, end, err := period(c)
		if err != nil {
			return err
		}
		report, err := g.GeneralLedger(c.UserContext(), accountID, start, end)
		if err != nil {
			return err
		}
		return respond(c, report)
	}
}

// GET /api/reports/cash-flow?start=2024-01-01&end=2024-03-31
func CashFlowHandler(g *Generator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, end, err := period(c)
		if err != nil {
			return err
		}
		report, err := g.CashFlowStatement(c.UserContext(), start, end)
		if err != nil {
			return err
		}
		return respond(c, report)
	}
}
