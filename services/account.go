package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"mailsync/mailbox"
	"mailsync/models"
	"mailsync/utils"
)

type LoginRequest struct {
	Email    string
	Password string
	IMAP     models.IMAPConfig
	SMTP     models.SMTPConfig
}

type LoginResult struct {
	AccountID uint
	Email     string
	Token     string
}

// AccountService authenticates mailbox owners against their own IMAP server
type AccountService struct {
	accounts AccountStore
	cipher   CredentialCipher
	dialer   mailbox.Dialer
	tokens   *utils.TokenIssuer
	log      logrus.FieldLogger
}

func NewAccountService(accounts AccountStore, cipher CredentialCipher, dialer mailbox.Dialer, tokens *utils.TokenIssuer, log logrus.FieldLogger) *AccountService {
	return &AccountService{
		accounts: accounts,
		cipher:   cipher,
		dialer:   dialer,
		tokens:   tokens,
		log:      log,
	}
}

// Login proves the credentials with a throwaway IMAP session, then stores
// them (encrypted) and issues a session token. Logging in again with the
// same address overwrites the stored record.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.IMAP.Port == 0 {
		req.IMAP.Port = models.DefaultIMAPPort
	}
	if req.SMTP.Port == 0 {
		req.SMTP.Port = models.DefaultSMTPPort
	}

	sess, err := s.dialer.Dial(ctx, req.IMAP, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if err := sess.Logout(); err != nil {
		s.log.WithError(err).WithField("email", req.Email).Debug("IMAP logout failed")
	}

	encrypted, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		return nil, utils.Unexpected("failed to encrypt credentials", err)
	}

	account := &models.MailAccount{
		Email:             req.Email,
		EncryptedPassword: encrypted,
		IMAP:              req.IMAP,
		SMTP:              req.SMTP,
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, utils.Unexpected("failed to save account", err)
	}

	token, err := s.tokens.Generate(account.ID, account.Email)
	if err != nil {
		return nil, utils.Unexpected("failed to issue token", err)
	}

	utils.LogEvent(s.log, "account_login", map[string]interface{}{
		"account_id": account.ID,
		"email":      account.Email,
		"imap_host":  account.IMAP.Host,
	})

	return &LoginResult{AccountID: account.ID, Email: account.Email, Token: token}, nil
}

// Get returns the stored account without its secret
func (s *AccountService) Get(ctx context.Context, accountID uint) (*models.MailAccount, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account.Sanitize()
	return account, nil
}
