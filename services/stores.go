package services

import (
	"context"

	"gopkg.in/gomail.v2"

	"mailsync/models"
)

// AccountStore persists credential records. Lookups of absent records
// return a KindNotFound error.
type AccountStore interface {
	FindByID(ctx context.Context, id uint) (*models.MailAccount, error)
	FindByEmail(ctx context.Context, email string) (*models.MailAccount, error)
	// Save upserts by email and sets account.ID
	Save(ctx context.Context, account *models.MailAccount) error
	List(ctx context.Context) ([]models.MailAccount, error)
}

// EmailStore persists cached message records. Every lookup is scoped to
// the owning account; absent records return a KindNotFound error.
type EmailStore interface {
	// MessageIDs returns every cached Message-ID in one account folder
	MessageIDs(ctx context.Context, accountID uint, folder string) ([]string, error)
	Insert(ctx context.Context, email *models.Email) error
	List(ctx context.Context, q models.EmailQuery) ([]models.Email, error)
	Search(ctx context.Context, accountID uint, query string, limit int) ([]models.Email, error)
	Get(ctx context.Context, accountID uint, id string) (*models.Email, error)
	SetRead(ctx context.Context, accountID uint, id string, read bool) error
	Delete(ctx context.Context, accountID uint, id string) error
	// Envelopes returns sender, recipients and date of every cached message
	Envelopes(ctx context.Context, accountID uint) ([]models.Email, error)
}

// CredentialCipher protects stored mailbox passwords
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Mailer submits assembled messages over SMTP
type Mailer interface {
	Send(ctx context.Context, cfg models.SMTPConfig, username, password string, m *gomail.Message) error
}
