package accounts

import (
	"strings"

	"ledger-backend/internal/auth"
	"ledger-backend/internal/httpx"
	"ledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// POST /api/account-types
func CreateAccountTypeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AccountTypeInput
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		at, err := svc.CreateAccountType(c.UserContext(), body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(at)
	}
}

// GET /api/account-types
func ListAccountTypesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		types, err := svc.ListAccountTypes(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(types)
	}
}

// POST /api/account-categories
func CreateCategoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CategoryInput
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		cat, err := svc.CreateCategory(c.UserContext(), body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(cat)
	}
}

// GET /api/account-categories?type=ASSET
func ListCategoriesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := models.AccountTypeCode(strings.ToUpper(c.Query("type")))
		cats, err := svc.ListCategories(c.UserContext(), code)
		if err != nil {
			return err
		}
		return c.JSON(cats)
	}
}

type setParentRequest struct {
	ParentCategoryID *uint `json:"parent_category_id"`
}

// PUT /api/account-categories/:id/parent
func SetCategoryParentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body setParentRequest
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		cat, err := svc.SetCategoryParent(c.UserContext(), id, body.ParentCategoryID)
		if err != nil {
			return err
		}
		return c.JSON(cat)
	}
}

// GET /api/account-categories/:id/path
func CategoryPathHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		path, err := svc.CategoryPath(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"category_id": id, "path": path})
	}
}

// POST /api/accounts
func CreateAccountHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AccountInput
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		acct, err := svc.CreateAccount(c.UserContext(), body, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(acct)
	}
}

// GET /api/accounts?type=ASSET&active=true&cash=true&bank=false&search=cash&include_deleted=true
func ListAccountsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := AccountFilter{
			TypeCode:       models.AccountTypeCode(strings.ToUpper(c.Query("type"))),
			Search:         strings.TrimSpace(c.Query("search")),
			IncludeDeleted: c.QueryBool("include_deleted", false),
		}
		var err error
		if f.Active, err = httpx.QueryBool(c, "active"); err != nil {
			return err
		}
		if f.Cash, err = httpx.QueryBool(c, "cash"); err != nil {
			return err
		}
		if f.Bank, err = httpx.QueryBool(c, "bank"); err != nil {
			return err
		}

		accts, err := svc.ListAccounts(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(accts)
	}
}

// GET /api/accounts/chart
func ChartOfAccountsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		chart, err := svc.ChartOfAccounts(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(chart)
	}
}

// GET /api/accounts/:id
func GetAccountHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		acct, err := svc.GetAccount(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(acct)
	}
}

// PUT /api/accounts/:id
func UpdateAccountHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body AccountUpdate
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		acct, err := svc.UpdateAccount(c.UserContext(), id, body, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(acct)
	}
}

// DELETE /api/accounts/:id
func DeleteAccountHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		if err := svc.DeleteAccount(c.UserContext(), id, auth.ActorFrom(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/accounts/:id/balance?as_of=2024-12-31
func AccountBalanceHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		asOf, err := httpx.QueryDate(c, "as_of")
		if err != nil {
			return err
		}
		bal, err := svc.Balance(c.UserContext(), id, asOf)
		if err != nil {
			return err
		}
		return c.JSON(bal)
	}
}

// POST /api/accounts/:id/update-balance
func RefreshBalanceHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		acct, err := svc.RefreshBalance(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(acct)
	}
}

// POST /api/accounts/reconcile?repair=true
func ReconcileHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		repair := c.QueryBool("repair", false)
		drifts, err := svc.Reconcile(c.UserContext(), repair)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"repaired": repair,
			"drifts":   drifts,
		})
	}
}

// POST /api/transaction-types
func CreateTransactionTypeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body TransactionTypeInput
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		tt, err := svc.CreateTransactionType(c.UserContext(), body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(tt)
	}
}

// GET /api/transaction-types?active=true
func ListTransactionTypesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		types, err := svc.ListTransactionTypes(c.UserContext(), c.QueryBool("active", false))
		if err != nil {
			return err
		}
		return c.JSON(types)
	}
}
