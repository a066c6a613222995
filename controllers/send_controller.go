package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsync/mailbox"
	"mailsync/services"
)

// AttachmentRequest carries file content base64 encoded in JSON
type AttachmentRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type" validate:"omitempty,max=255"`
}

type SendEmailRequest struct {
	To          []string            `json:"to" validate:"required,min=1,dive,mailaddr"`
	Cc          []string            `json:"cc" validate:"omitempty,dive,mailaddr"`
	Subject     string              `json:"subject" validate:"max=998"`
	Body        string              `json:"body"`
	Attachments []AttachmentRequest `json:"attachments" validate:"omitempty,dive"`
}

type SendController struct {
	sender *services.SendService
	log    logrus.FieldLogger
}

func NewSendController(sender *services.SendService, log logrus.FieldLogger) *SendController {
	return &SendController{sender: sender, log: log}
}

func (s *SendController) SendEmail(c *fiber.Ctx) error {
	var req SendEmailRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}

	attachments := make([]mailbox.OutgoingAttachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, mailbox.OutgoingAttachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}

	err := s.sender.Send(c.UserContext(), accountID(c), services.SendRequest{
		To:          req.To,
		Cc:          req.Cc,
		Subject:     req.Subject,
		Body:        req.Body,
		Attachments: attachments,
	})
	if err != nil {
		return respondError(c, s.log, "send_email", err, "Failed to send email")
	}
	return c.JSON(fiber.Map{"message": "Email sent successfully"})
}
