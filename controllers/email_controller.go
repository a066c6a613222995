package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsync/models"
	"mailsync/services"
	"mailsync/utils"
)

type UpdateReadRequest struct {
	IsRead *bool `json:"is_read" validate:"required"`
}

type EmailController struct {
	emails *services.EmailService
	log    logrus.FieldLogger
}

func NewEmailController(emails *services.EmailService, log logrus.FieldLogger) *EmailController {
	return &EmailController{emails: emails, log: log}
}

// ListEmails returns cached messages of one folder, newest first
func (e *EmailController) ListEmails(c *fiber.Ctx) error {
	folder := strings.TrimSpace(c.Query("folder"))
	if folder == "" {
		folder = models.DefaultFolder
	}

	emails, err := e.emails.List(c.UserContext(), models.EmailQuery{
		AccountID: accountID(c),
		Folder:    folder,
		Skip:      utils.QueryInt(c, "skip", 0, 0),
		Limit:     utils.QueryInt(c, "limit", services.DefaultPageSize, services.MaxPageSize),
	})
	if err != nil {
		return respondError(c, e.log, "list_emails", err, "Failed to get emails")
	}
	return c.JSON(emails)
}

func (e *EmailController) SearchEmails(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "query is required", nil)
	}

	emails, err := e.emails.Search(c.UserContext(), accountID(c), query,
		utils.QueryInt(c, "limit", services.DefaultPageSize, services.MaxPageSize))
	if err != nil {
		return respondError(c, e.log, "search_emails", err, "Search failed")
	}
	return c.JSON(emails)
}

func (e *EmailController) GetEmail(c *fiber.Ctx) error {
	email, err := e.emails.Get(c.UserContext(), accountID(c), c.Params("id"))
	if err != nil {
		return respondError(c, e.log, "get_email", err, "Failed to get email")
	}
	return c.JSON(email)
}

func (e *EmailController) UpdateReadStatus(c *fiber.Ctx) error {
	var req UpdateReadRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}

	if err := e.emails.SetRead(c.UserContext(), accountID(c), c.Params("id"), *req.IsRead); err != nil {
		return respondError(c, e.log, "update_read_status", err, "Failed to update status")
	}
	return c.JSON(fiber.Map{"message": "Read status updated"})
}

// DeleteEmail removes the cached copy only
func (e *EmailController) DeleteEmail(c *fiber.Ctx) error {
	if err := e.emails.Delete(c.UserContext(), accountID(c), c.Params("id")); err != nil {
		return respondError(c, e.log, "delete_email", err, "Failed to delete email")
	}
	return c.JSON(fiber.Map{"message": "Email deleted"})
}
