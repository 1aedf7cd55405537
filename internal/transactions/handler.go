// Package transactions exposes the journal over HTTP.
package transactions

import (
	"strings"
	"time"

	"ledger-backend/internal/auth"
	"ledger-backend/internal/httpx"
	"ledger-backend/internal/ledger"
	"ledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CreateTransactionRequest struct {
	Description       string              `json:"description"`
	TransactionDate   string              `json:"transaction_date"` // YYYY-MM-DD, defaults to today
	TransactionTypeID uint                `json:"transaction_type_id"`
	Amount            decimal.Decimal     `json:"amount"`
	ReferenceNumber   string              `json:"reference_number"`
	Notes             string              `json:"notes"`
	Entries           []ledger.EntryInput `json:"entries"`
}

func (r CreateTransactionRequest) toInput() (ledger.CreateTransactionInput, error) {
	in := ledger.CreateTransactionInput{
		Description:       strings.TrimSpace(r.Description),
		TransactionTypeID: r.TransactionTypeID,
		Amount:            r.Amount,
		ReferenceNumber:   strings.TrimSpace(r.ReferenceNumber),
		Notes:             r.Notes,
		Entries:           r.Entries,
	}
	if r.TransactionDate != "" {
		d, err := httpx.ParseDate(r.TransactionDate)
		if err != nil {
			return in, err
		}
		in.TransactionDate = d
	}
	return in, nil
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

// POST /api/transactions
func CreateTransactionHandler(svc *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTransactionRequest
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		in, err := body.toInput()
		if err != nil {
			return err
		}
		t, err := svc.CreateTransaction(c.UserContext(), in, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	}
}

// GET /api/transactions?status=POSTED&type=SALE&start=2024-01-01&end=2024-01-31&min_amount=100&search=rent&limit=50
func ListTransactionsHandler(svc *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := ledger.TransactionFilter{
			Status:   models.TransactionStatus(strings.ToUpper(c.Query("status"))),
			TypeCode: strings.ToUpper(c.Query("type")),
			Search:   strings.TrimSpace(c.Query("search")),
			Limit:    c.QueryInt("limit"),
		}
		var err error
		if f.Start, err = httpx.QueryDate(c, "start"); err != nil {
			return err
		}
		if f.End, err = httpx.QueryDate(c, "end"); err != nil {
			return err
		}
		if f.MinAmount, err = httpx.QueryDecimal(c, "min_amount"); err != nil {
			return err
		}

		list, err := svc.ListTransactions(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

// GET /api/transactions/:id
func GetTransactionHandler(svc *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := svc.GetTransaction(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// GET /api/transactions/:id/summary
func TransactionSummaryHandler(svc *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		sum, err := svc.Summary(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(sum)
	}
}

// POST /api/transactions/:id/post
func PostTransactionHandler(svc *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		if err := svc.PostTransaction(c.UserContext(), id, auth.ActorFrom(c)); err != nil {
			return err
		}
		t, err := svc.GetTransaction(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// POST /api/transactions/:id/void
func VoidTransactionHandler(svc *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body VoidRequest
		if len(c.Body()) > 0 {
			if err := httpx.Body(c, &body); err != nil {
				return err
			}
		}
		reversal, err := svc.VoidTransaction(c.UserContext(), id, auth.ActorFrom(c), strings.TrimSpace(body.Reason))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"voided_transaction_id": id,
			"reversal":              reversal,
		})
	}
}

type AccountTransactionsResponse struct {
	AccountID    uint                 `json:"account_id"`
	Start        *time.Time           `json:"start"`
	End          *time.Time           `json:"end"`
	Transactions []models.Transaction `json:"transactions"`
}

// GET /api/accounts/:id/transactions?start=2024-01-01&end=2024-12-31
func AccountTransactionsHandler(svc *ledger.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		start, err := httpx.QueryDate(c, "start")
		if err != nil {
			return err
		}
		end, err := httpx.QueryDate(c, "end")
		if err != nil {
			return err
		}
		list, err := svc.AccountTransactions(c.UserContext(), id, start, end)
		if err != nil {
			return err
		}
		if list == nil {
			list = []models.Transaction{}
		}
		return c.JSON(AccountTransactionsResponse{AccountID: id, Start: start, End: end, Transactions: list})
	}
}
