package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledger-backend/internal/config"
	"ledger-backend/internal/models"
	"ledger-backend/internal/setup"
	"ledger-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c client) do(method, path, token string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, raw
}

func (c client) login(email, password string) string {
	c.t.Helper()
	resp, raw := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(raw))
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(c.t, json.Unmarshal(raw, &out))
	return out.Token
}

func newTestServer(t *testing.T) (client, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	chart, err := setup.DefaultChart()
	require.NoError(t, err)
	_, err = setup.Seed(context.Background(), db, chart, nil)
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		TokenTTL:         time.Hour,
		CORSOrigins:      "http://localhost:5173",
		LockTimeout:      time.Second,
		BalanceTolerance: testutil.Dec("0.01"),
	}
	return client{t: t, app: New(cfg, db, zap.NewNop())}, db
}

func accountID(t *testing.T, db *gorm.DB, number string) uint {
	t.Helper()
	var a models.Account
	require.NoError(t, db.Where("account_number = ?", number).First(&a).Error)
	return a.ID
}

func TestEndToEnd(t *testing.T) {
	c, db := newTestServer(t)

	resp, raw := c.do(http.MethodPost, "/api/auth/register-admin", "", map[string]string{
		"name": "Root", "email": "root@example.com", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	admin := c.login("root@example.com", "s3cret-pass")

	resp, _ = c.do(http.MethodGet, "/api/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var journal models.TransactionType
	require.NoError(t, db.Where("code = ?", "JOURNAL").First(&journal).Error)

	resp, raw = c.do(http.MethodPost, "/api/transactions", admin, map[string]any{
		"description":         "Owner investment",
		"transaction_type_id": journal.ID,
		"entries": []map[string]any{{
			"items": []map[string]any{
				{"account_id": accountID(t, db, "1000"), "debit_amount": "500.00"},
				{"account_id": accountID(t, db, "3000"), "credit_amount": "500.00"},
			},
		}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	createRequestID := resp.Header.Get("X-Request-ID")
	assert.Len(t, createRequestID, 36)
	var tx models.Transaction
	require.NoError(t, json.Unmarshal(raw, &tx))

	resp, raw = c.do(http.MethodPost, fmt.Sprintf("/api/transactions/%d/post", tx.ID), admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = c.do(http.MethodGet, "/api/reports/trial-balance", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var tb struct {
		TotalDebits decimal.Decimal `json:"total_debits"`
		IsBalanced  bool            `json:"is_balanced"`
	}
	require.NoError(t, json.Unmarshal(raw, &tb))
	assert.Equal(t, "500.00", tb.TotalDebits.StringFixed(2))
	assert.True(t, tb.IsBalanced)

	resp, raw = c.do(http.MethodGet, fmt.Sprintf("/api/audit-logs?entity_type=transaction&entity_id=%d", tx.ID), admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var logs []struct {
		Action        string `json:"action"`
		CorrelationID string `json:"correlation_id"`
		UserName      string `json:"user_name"`
	}
	require.NoError(t, json.Unmarshal(raw, &logs))
	require.Len(t, logs, 2)
	byAction := map[string]string{}
	for _, l := range logs {
		byAction[l.Action] = l.CorrelationID
		assert.Equal(t, "Root", l.UserName)
	}
	assert.Equal(t, createRequestID, byAction["CREATE"])
	assert.NotEmpty(t, byAction["POST"])

	resp, raw = c.do(http.MethodGet, "/api/notifications", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notes []models.Notification
	require.NoError(t, json.Unmarshal(raw, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "Transaction posted successfully", notes[0].Title)

	resp, _ = c.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoles(t *testing.T) {
	c, _ := newTestServer(t)

	resp, _ := c.do(http.MethodPost, "/api/auth/register-admin", "", map[string]string{
		"name": "Root", "email": "root@example.com", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	admin := c.login("root@example.com", "s3cret-pass")

	resp, raw := c.do(http.MethodPost, "/api/users", admin, map[string]string{
		"name": "Viv", "email": "viv@example.com", "password": "viewer-pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	viewer := c.login("viv@example.com", "viewer-pass")

	resp, _ = c.do(http.MethodGet, "/api/accounts/chart", viewer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = c.do(http.MethodPost, "/api/transaction-types", viewer, map[string]string{"code": "X", "name": "X"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, string(raw))

	resp, _ = c.do(http.MethodGet, "/api/audit-logs", viewer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/users", viewer, map[string]string{
		"name": "Eve", "email": "eve@example.com", "password": "another-pass",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/auth/register-admin", "", map[string]string{
		"name": "Second", "email": "second@example.com", "password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
