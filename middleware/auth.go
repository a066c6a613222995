package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"mailsync/utils"
)

// Locals keys set by Protected
const (
	LocalAccountID = "accountID"
	LocalEmail     = "email"
)

// Protected accepts a bearer token, falling back to the token query parameter
// (browsers cannot set headers on websocket upgrades) and then the
// access_token cookie.
func Protected(tokens *utils.TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			// Check if it's a Bearer token
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization format", nil)
			}
			token = tokenParts[1]
		} else if token = c.Query("token"); token == "" {
			token = c.Cookies("access_token")
		}
		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token", nil)
		}

		c.Locals(LocalAccountID, claims.AccountID)
		c.Locals(LocalEmail, claims.Email)

		return c.Next()
	}
}

// AccountID returns the account authenticated by Protected, or 0
func AccountID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalAccountID).(uint)
	return id
}
