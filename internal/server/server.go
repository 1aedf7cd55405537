// Package server wires services and HTTP routes into a fiber app.
package server

import (
	"strings"

	"ledger-backend/internal/accounts"
	"ledger-backend/internal/audit"
	"ledger-backend/internal/auth"
	"ledger-backend/internal/config"
	"ledger-backend/internal/httpx"
	"ledger-backend/internal/ledger"
	"ledger-backend/internal/logging"
	"ledger-backend/internal/models"
	"ledger-backend/internal/notify"
	"ledger-backend/internal/reports"
	"ledger-backend/internal/transactions"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// New builds the API. The caller owns db and starts listening.
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger) *fiber.App {
	auditStore := audit.NewStore(db)
	notifications := notify.NewStore(db)
	ledgerSvc := ledger.NewService(db, auditStore, notifications,
		ledger.Options{LockTimeout: cfg.LockTimeout}, log.Named("ledger"))
	accountSvc := accounts.NewService(db, auditStore, log.Named("accounts"))
	generator := reports.NewGenerator(db, reports.Options{Tolerance: cfg.BalanceTolerance}, log.Named("reports"))

	app := fiber.New(fiber.Config{
		ErrorHandler:          httpx.ErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(logging.RequestLogger(log.Named("http")))

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(corsOrigins, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))
	app.Use(audit.CorrelationMiddleware())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(db, cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler(db))
	protected.Post("/users", auth.RequireRole(models.RoleAdmin), auth.CreateUserHandler(db))

	writer := auth.RequireRole(models.RoleAdmin, models.RoleAccountant)

	// Chart of accounts
	protected.Get("/account-types", accounts.ListAccountTypesHandler(accountSvc))
	protected.Post("/account-types", writer, accounts.CreateAccountTypeHandler(accountSvc))
	protected.Get("/account-categories", accounts.ListCategoriesHandler(accountSvc))
	protected.Post("/account-categories", writer, accounts.CreateCategoryHandler(accountSvc))
	protected.Put("/account-categories/:id/parent", writer, accounts.SetCategoryParentHandler(accountSvc))
	protected.Get("/account-categories/:id/path", accounts.CategoryPathHandler(accountSvc))
	protected.Get("/transaction-types", accounts.ListTransactionTypesHandler(accountSvc))
	protected.Post("/transaction-types", writer, accounts.CreateTransactionTypeHandler(accountSvc))

	// Accounts
	protected.Get("/accounts", accounts.ListAccountsHandler(accountSvc))
	protected.Post("/accounts", writer, accounts.CreateAccountHandler(accountSvc))
	protected.Get("/accounts/chart", accounts.ChartOfAccountsHandler(accountSvc))
	protected.Post("/accounts/reconcile", writer, accounts.ReconcileHandler(accountSvc))
	protected.Get("/accounts/:id", accounts.GetAccountHandler(accountSvc))
	protected.Put("/accounts/:id", writer, accounts.UpdateAccountHandler(accountSvc))
	protected.Delete("/accounts/:id", writer, accounts.DeleteAccountHandler(accountSvc))
	protected.Get("/accounts/:id/balance", accounts.AccountBalanceHandler(accountSvc))
	protected.Post("/accounts/:id/update-balance", writer, accounts.RefreshBalanceHandler(accountSvc))
	protected.Get("/accounts/:id/transactions", transactions.AccountTransactionsHandler(ledgerSvc))

	// Journal
	protected.Get("/transactions", transactions.ListTransactionsHandler(ledgerSvc))
	protected.Post("/transactions", writer, transactions.CreateTransactionHandler(ledgerSvc))
	protected.Get("/transactions/:id", transactions.GetTransactionHandler(ledgerSvc))
	protected.Get("/transactions/:id/summary", transactions.TransactionSummaryHandler(ledgerSvc))
	protected.Post("/transactions/:id/post", writer, transactions.PostTransactionHandler(ledgerSvc))
	protected.Post("/transactions/:id/void", writer, transactions.VoidTransactionHandler(ledgerSvc))

	// Reports
	protected.Get("/reports/balance-sheet", reports.BalanceSheetHandler(generator))
	protected.Get("/reports/income-statement", reports.IncomeStatementHandler(generator))
	protected.Get("/reports/trial-balance", reports.TrialBalanceHandler(generator))
	protected.Get("/reports/general-ledger/:accountID", reports.GeneralLedgerHandler(generator))
	protected.Get("/reports/cash-flow", reports.CashFlowHandler(generator))

	// Audit logs and notifications
	protected.Get("/audit-logs", auth.RequireRole(models.RoleAdmin, models.RoleAccountant), audit.ListAuditLogsHandler(auditStore))
	protected.Get("/notifications", notify.ListNotificationsHandler(notifications))
	protected.Post("/notifications/:id/read", notify.MarkReadHandler(notifications))

	return app
}
