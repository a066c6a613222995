package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsync/middleware"
	"mailsync/utils"
)

func accountID(c *fiber.Ctx) uint {
	return middleware.AccountID(c)
}

// respondError maps err onto its HTTP status. Unclassified errors are
// reported before the generic 500 goes out.
func respondError(c *fiber.Ctx, log logrus.FieldLogger, operation string, err error, fallback string) error {
	if utils.KindOf(err) == utils.KindUnexpected {
		utils.LogError(log, operation, err, map[string]interface{}{
			"account_id": accountID(c),
			"path":       c.Path(),
		})
	}
	return utils.HandleError(c, err, fallback)
}

// bindJSON parses and validates the request body into req. When it reports
// false the error response has already been written.
func bindJSON(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return false, utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, err.Error(), nil)
	}
	return true, nil
}
