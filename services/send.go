package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailsync/mailbox"
	"mailsync/metrics"
	"mailsync/utils"
)

type SendRequest struct {
	To          []string
	Cc          []string
	Subject     string
	Body        string
	Attachments []mailbox.OutgoingAttachment
}

// SendService submits outbound mail through the account's own SMTP server
type SendService struct {
	accounts AccountStore
	cipher   CredentialCipher
	mailer   Mailer
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewSendService(accounts AccountStore, cipher CredentialCipher, mailer Mailer, log logrus.FieldLogger) *SendService {
	return &SendService{
		accounts: accounts,
		cipher:   cipher,
		mailer:   mailer,
		log:      log,
		now:      time.Now,
	}
}

func (s *SendService) Send(ctx context.Context, accountID uint, req SendRequest) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	password, err := s.cipher.Decrypt(account.EncryptedPassword)
	if err != nil {
		return utils.Unexpected("failed to decrypt stored credentials", err)
	}

	msg := mailbox.BuildMessage(account.Email, mailbox.OutgoingMessage{
		To:          req.To,
		Cc:          req.Cc,
		Subject:     req.Subject,
		Body:        req.Body,
		Attachments: req.Attachments,
	}, s.now())

	if err := s.mailer.Send(ctx, account.SMTP, account.Email, password, msg); err != nil {
		metrics.IncrementEmailsSent("failed")
		utils.LogError(s.log, "send_email", err, map[string]interface{}{
			"account_id": account.ID,
			"smtp_host":  account.SMTP.Host,
			"smtp_port":  account.SMTP.Port,
			"recipients": len(req.To) + len(req.Cc),
		})
		return err
	}

	metrics.IncrementEmailsSent("success")
	utils.LogEvent(s.log, "email_sent", map[string]interface{}{
		"account_id":  account.ID,
		"recipients":  len(req.To) + len(req.Cc),
		"attachments": len(req.Attachments),
	})
	return nil
}
