package models

import (
	"gorm.io/gorm"
)

const (
	DefaultIMAPPort = 993
	DefaultSMTPPort = 587
)

// IMAPConfig holds the connection parameters of a mailbox's IMAP server
type IMAPConfig struct {
	Host   string `gorm:"not null" json:"host"`
	Port   int    `gorm:"not null" json:"port"`
	UseSSL bool   `json:"use_ssl"`
}

// SMTPConfig holds the connection parameters of a mailbox's SMTP server
type SMTPConfig struct {
	Host   string `gorm:"not null" json:"host"`
	Port   int    `gorm:"not null" json:"port"`
	UseTLS bool   `json:"use_tls"`
}

// MailAccount is the stored credential record of an authenticated mailbox owner.
// One row per address; a successful login overwrites it in place.
type MailAccount struct {
	gorm.Model
	Email             string `gorm:"not null;uniqueIndex" json:"email"`
	EncryptedPassword string `gorm:"not null" json:"-"` // Encrypted in application layer

	IMAP IMAPConfig `gorm:"embedded;embeddedPrefix:imap_" json:"imap_config"`
	SMTP SMTPConfig `gorm:"embedded;embeddedPrefix:smtp_" json:"smtp_config"`
}

// Sanitize clears secrets before the record leaves the service
func (a *MailAccount) Sanitize() {
	a.EncryptedPassword = ""
}
