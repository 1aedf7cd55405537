package audit

import (
	"encoding/json"
	"strconv"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/httpx"
	"ledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID             uint               `json:"id"`
	CreatedAt      string             `json:"created_at"`
	CorrelationID  string             `json:"correlation_id"`
	UserID         *uint              `json:"user_id"`
	UserName       string             `json:"user_name"`
	EntityType     string             `json:"entity_type"`
	EntityID       uint               `json:"entity_id"`
	Action         models.AuditAction `json:"action"`
	Representation string             `json:"representation"`
	Changes        json.RawMessage    `json:"changes"`
}

// CorrelationMiddleware reuses the request id as the audit correlation id.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := httpx.RequestID(c); id != "" {
			c.SetUserContext(WithCorrelationID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// GET /api/audit-logs?entity_type=transaction&entity_id=1&user_id=2&action=POST
func ListAuditLogsHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{
			EntityType:    c.Query("entity_type"),
			Action:        models.AuditAction(c.Query("action")),
			CorrelationID: c.Query("correlation_id"),
			Limit:         c.QueryInt("limit"),
		}
		if v := c.Query("entity_id"); v != "" {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return apperr.Validation("Invalid entity_id")
			}
			f.EntityID = uint(id)
		}
		if v := c.Query("user_id"); v != "" {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return apperr.Validation("Invalid user_id")
			}
			f.UserID = uint(id)
		}
		since, err := httpx.QueryDate(c, "since")
		if err != nil {
			return err
		}
		f.Since = since

		logs, err := store.List(c.UserContext(), f)
		if err != nil {
			return apperr.Internal("Failed to list audit logs", err)
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			changes := json.RawMessage(l.Changes)
			if !json.Valid(changes) {
				changes = json.RawMessage("null")
			}
			resp = append(resp, AuditLogResponse{
				ID:             l.ID,
				CreatedAt:      l.CreatedAt.Format("2006-01-02 15:04:05"),
				CorrelationID:  l.CorrelationID,
				UserID:         l.UserID,
				UserName:       l.UserName,
				EntityType:     l.EntityType,
				EntityID:       l.EntityID,
				Action:         l.Action,
				Representation: l.Representation,
				Changes:        changes,
			})
		}
		return c.JSON(resp)
	}
}
