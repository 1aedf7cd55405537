package transactions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledger-backend/internal/auth"
	"ledger-backend/internal/httpx"
	"ledger-backend/internal/ledger"
	"ledger-backend/internal/models"
	"ledger-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	app  *fiber.App
	fx   *testutil.Fixture
	cash *models.Account
	cap  *models.Account
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := ledger.NewService(db, nil, nil, ledger.Options{LockTimeout: time.Second}, zap.NewNop())

	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(zap.NewNop())})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, uint(3))
		c.Locals(auth.CtxUserNameKey, "dana")
		return c.Next()
	})
	app.Post("/transactions", CreateTransactionHandler(svc))
	app.Get("/transactions", ListTransactionsHandler(svc))
	app.Get("/transactions/:id", GetTransactionHandler(svc))
	app.Get("/transactions/:id/summary", TransactionSummaryHandler(svc))
	app.Post("/transactions/:id/post", PostTransactionHandler(svc))
	app.Post("/transactions/:id/void", VoidTransactionHandler(svc))
	app.Get("/accounts/:id/transactions", AccountTransactionsHandler(svc))

	return &env{
		app:  app,
		fx:   fx,
		cash: fx.Account(t, models.TypeAsset, "Cash"),
		cap:  fx.Account(t, models.TypeEquity, "Capital"),
	}
}

func (e *env) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (e *env) investment(amount string, date string) map[string]any {
	return map[string]any{
		"description":         "Owner investment",
		"transaction_date":    date,
		"transaction_type_id": e.fx.TxType.ID,
		"entries": []map[string]any{{
			"description": "Capital in",
			"items": []map[string]any{
				{"account_id": e.cash.ID, "debit_amount": amount},
				{"account_id": e.cap.ID, "credit_amount": amount},
			},
		}},
	}
}

func TestTransactionLifecycle(t *testing.T) {
	e := setup(t)
	today := testutil.Today().Format(httpx.DateLayout)

	status, raw := e.do(t, http.MethodPost, "/transactions", e.investment("1000.00", today))
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created models.Transaction
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.Equal(t, "1000.00", created.Amount.StringFixed(2))
	require.NotNil(t, created.CreatedByID)
	assert.Equal(t, uint(3), *created.CreatedByID)

	status, raw = e.do(t, http.MethodGet, fmt.Sprintf("/transactions/%d/summary", created.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var sum ledger.TransactionSummary
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.True(t, sum.IsBalanced)
	assert.Equal(t, 2, sum.ItemCount)

	status, raw = e.do(t, http.MethodPost, fmt.Sprintf("/transactions/%d/post", created.ID), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var posted models.Transaction
	require.NoError(t, json.Unmarshal(raw, &posted))
	assert.Equal(t, models.StatusPosted, posted.Status)

	status, raw = e.do(t, http.MethodPost, fmt.Sprintf("/transactions/%d/post", created.ID), nil)
	assert.Equal(t, http.StatusConflict, status)
	var errResp httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Equal(t, "STATE_CONFLICT", errResp.Code)

	status, raw = e.do(t, http.MethodGet, fmt.Sprintf("/accounts/%d/transactions", e.cash.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var acctTx AccountTransactionsResponse
	require.NoError(t, json.Unmarshal(raw, &acctTx))
	assert.Len(t, acctTx.Transactions, 1)

	status, raw = e.do(t, http.MethodPost, fmt.Sprintf("/transactions/%d/void", created.ID), VoidRequest{Reason: "entered twice"})
	require.Equal(t, http.StatusOK, status, string(raw))
	var voided struct {
		VoidedID uint               `json:"voided_transaction_id"`
		Reversal models.Transaction `json:"reversal"`
	}
	require.NoError(t, json.Unmarshal(raw, &voided))
	assert.Equal(t, created.ID, voided.VoidedID)
	assert.Equal(t, models.StatusPosted, voided.Reversal.Status)
	assert.Equal(t, "Reversal of "+created.TransactionNumber+" - entered twice", voided.Reversal.Description)

	status, _ = e.do(t, http.MethodPost, fmt.Sprintf("/transactions/%d/void", created.ID), nil)
	assert.Equal(t, http.StatusConflict, status)

	status, raw = e.do(t, http.MethodGet, "/transactions?status=voided", nil)
	require.Equal(t, http.StatusOK, status)
	var list []models.Transaction
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	assert.Equal(t, "0.00", testutil.Reload(t, e.fx.DB, e.cash).CurrentBalance.StringFixed(2))
}

func TestCreateTransaction_Rejections(t *testing.T) {
	e := setup(t)

	unbalanced := e.investment("10.00", "")
	unbalanced["entries"].([]map[string]any)[0]["items"].([]map[string]any)[1]["credit_amount"] = "9.00"
	status, raw := e.do(t, http.MethodPost, "/transactions", unbalanced)
	assert.Equal(t, http.StatusBadRequest, status)
	var errResp httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.NotEmpty(t, errResp.Details)

	status, _ = e.do(t, http.MethodPost, "/transactions", e.investment("10.00", "31/12/2024"))
	assert.Equal(t, http.StatusBadRequest, status)

	future := testutil.Today().AddDate(0, 0, 2).Format(httpx.DateLayout)
	status, _ = e.do(t, http.MethodPost, "/transactions", e.investment("10.00", future))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, "/transactions/42", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodGet, "/transactions?min_amount=lots", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, "/accounts/999/transactions", nil)
	assert.Equal(t, http.StatusNotFound, status)

	var n int64
	require.NoError(t, e.fx.DB.Model(&models.Transaction{}).Count(&n).Error)
	assert.Zero(t, n)
}
