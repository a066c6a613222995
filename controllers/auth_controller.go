package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsync/models"
	"mailsync/services"
)

type IMAPConfigRequest struct {
	Host   string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port   int    `json:"port" validate:"omitempty,min=1,max=65535"`
	UseSSL *bool  `json:"use_ssl"`
}

type SMTPConfigRequest struct {
	Host   string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port   int    `json:"port" validate:"omitempty,min=1,max=65535"`
	UseTLS *bool  `json:"use_tls"`
}

type LoginRequest struct {
	Email      string            `json:"email" validate:"required,mailaddr"`
	Password   string            `json:"password" validate:"required"`
	IMAPConfig IMAPConfigRequest `json:"imap_config"`
	SMTPConfig SMTPConfigRequest `json:"smtp_config"`
}

type LoginResponse struct {
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

type AuthController struct {
	accounts *services.AccountService
	log      logrus.FieldLogger
}

func NewAuthController(accounts *services.AccountService, log logrus.FieldLogger) *AuthController {
	return &AuthController{accounts: accounts, log: log}
}

// Login verifies the mailbox credentials against the IMAP server and returns a session token
func (a *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}

	result, err := a.accounts.Login(c.UserContext(), services.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		IMAP: models.IMAPConfig{
			Host:   req.IMAPConfig.Host,
			Port:   req.IMAPConfig.Port,
			UseSSL: boolOr(req.IMAPConfig.UseSSL, true),
		},
		SMTP: models.SMTPConfig{
			Host:   req.SMTPConfig.Host,
			Port:   req.SMTPConfig.Port,
			UseTLS: boolOr(req.SMTPConfig.UseTLS, true),
		},
	})
	if err != nil {
		return respondError(c, a.log, "login", err, "Login failed")
	}

	return c.JSON(LoginResponse{
		UserID:  result.AccountID,
		Email:   result.Email,
		Token:   result.Token,
		Message: "Login successful",
	})
}

// Me returns the authenticated account without its secret
func (a *AuthController) Me(c *fiber.Ctx) error {
	account, err := a.accounts.Get(c.UserContext(), accountID(c))
	if err != nil {
		return respondError(c, a.log, "get_account", err, "Failed to get account")
	}
	return c.JSON(account)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
