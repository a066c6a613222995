package routes

import (
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	controller "mailsync/controllers"
	"mailsync/middleware"
	"mailsync/services"
	"mailsync/utils"
)

// Services bundles everything the HTTP layer calls into
type Services struct {
	Accounts *services.AccountService
	Emails   *services.EmailService
	Sync     *services.SyncService
	Send     *services.SendService
	Folders  *services.FolderService
	Contacts *services.ContactService
	Tokens   *utils.TokenIssuer
}

// Limits configures the per-account rate limiters. A nil Storage keeps the
// counters in memory.
type Limits struct {
	SyncPerMinute int
	SendPerMinute int
	Storage       fiber.Storage
}

func SetupAuthRoutes(api fiber.Router, svc Services, log logrus.FieldLogger) {
	authController := controller.NewAuthController(svc.Accounts, log.WithField("component", "auth"))

	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/me", middleware.Protected(svc.Tokens), authController.Me)

	log.Debug("Authentication routes initialized")
}

func SetupAPIRoutes(api fiber.Router, svc Services, limits Limits, log logrus.FieldLogger) {
	emailController := controller.NewEmailController(svc.Emails, log.WithField("component", "emails"))
	syncController := controller.NewSyncController(svc.Sync, log.WithField("component", "sync"))
	sendController := controller.NewSendController(svc.Send, log.WithField("component", "send"))
	folderController := controller.NewFolderController(svc.Folders, svc.Contacts, log.WithField("component", "folders"))

	protected := api.Group("", middleware.Protected(svc.Tokens))

	// Email routes; static paths before :id
	emails := protected.Group("/emails")
	emails.Post("/sync", middleware.RateLimiter(limits.SyncPerMinute, limits.Storage, log), syncController.SyncEmails)
	emails.Post("/send", middleware.RateLimiter(limits.SendPerMinute, limits.Storage, log), sendController.SendEmail)
	emails.Get("/search", emailController.SearchEmails)
	emails.Get("/", emailController.ListEmails)
	emails.Get("/:id", emailController.GetEmail)
	emails.Put("/:id/read", emailController.UpdateReadStatus)
	emails.Delete("/:id", emailController.DeleteEmail)

	protected.Get("/folders", folderController.GetFolders)
	protected.Get("/contacts", folderController.GetContacts)

	// WebSocket route for live sync progress
	ws := protected.Group("/ws")
	ws.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/sync", websocket.New(syncController.Stream))

	log.Debug("API routes initialized")
}

func SetupRoutes(app *fiber.App, svc Services, limits Limits, log logrus.FieldLogger) {
	// Setup health check endpoints
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Mail sync API is running")
	})

	SetupAuthRoutes(api, svc, log)
	SetupAPIRoutes(api, svc, limits, log)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
