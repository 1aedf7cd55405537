package notify

import (
	"ledger-backend/internal/apperr"
	"ledger-backend/internal/auth"
	"ledger-backend/internal/httpx"

	"github.com/gofiber/fiber/v2"
)

// GET /api/notifications?unread=true&limit=20
func ListNotificationsHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := auth.ActorFrom(c)
		list, err := store.ForUser(c.UserContext(), actor.ID, c.QueryBool("unread", false), c.QueryInt("limit"))
		if err != nil {
			return apperr.Internal("Failed to list notifications", err)
		}
		return c.JSON(list)
	}
}

// POST /api/notifications/:id/read
func MarkReadHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		ok, err := store.MarkRead(c.UserContext(), auth.ActorFrom(c).ID, id)
		if err != nil {
			return apperr.Internal("Failed to update notification", err)
		}
		if !ok {
			return apperr.NotFound("Notification", id)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
