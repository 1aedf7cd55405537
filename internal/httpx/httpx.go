// Package httpx holds the fiber plumbing shared by every handler package.
package httpx

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"ledger-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DateLayout = "2006-01-02"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// ErrorHandler renders apperr.Error and *fiber.Error values. Internal
// causes are logged, never sent to the client.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := apperr.As(err); ok {
			if e.StatusCode >= fiber.StatusInternalServerError {
				log.Error("request failed",
					zap.String("path", c.Path()),
					zap.String("request_id", RequestID(c)),
					zap.Error(err))
			}
			status := e.StatusCode
			if status == 0 {
				status = fiber.StatusInternalServerError
			}
			return c.Status(status).JSON(ErrorResponse{Error: e.Message, Code: e.Code, Details: e.Details})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message, Code: codeForStatus(fe.Code)})
		}

		log.Error("unexpected error", zap.String("path", c.Path()), zap.String("request_id", RequestID(c)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "Unexpected server error",
			Code:  apperr.CodeInternal,
		})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeValidation
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusForbidden:
		return apperr.CodeForbidden
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusConflict:
		return apperr.CodeConflict
	}
	return apperr.CodeInternal
}

// RequestIDKey is the Locals key set by the request logger.
const RequestIDKey = "request_id"

func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(RequestIDKey).(string)
	return id
}

// ParamID parses a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.Validation("Invalid " + name)
	}
	return uint(v), nil
}

// ParseDate accepts YYYY-MM-DD and returns midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, apperr.Validation("Invalid date " + strconv.Quote(s) + ", expected YYYY-MM-DD")
	}
	return t, nil
}

// QueryDate returns nil when the query parameter is absent.
func QueryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RequiredDate parses a query date or falls back to def when absent.
func RequiredDate(c *fiber.Ctx, key string, def time.Time) (time.Time, error) {
	t, err := QueryDate(c, key)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return def, nil
	}
	return *t, nil
}

func QueryBool(c *fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("Invalid boolean for " + key)
	}
	return &b, nil
}

func QueryDecimal(c *fiber.Ctx, key string) (*decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.Validation("Invalid amount for " + key)
	}
	return &d, nil
}

// Today is the current UTC date.
func Today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Body decodes the JSON request body into v.
func Body(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}
