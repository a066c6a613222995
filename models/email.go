package models

import (
	"time"
)

const (
	DefaultFolder  = "INBOX"
	DefaultSubject = "No Subject"
)

// Email is a message mirrored from the owner's mailbox into the local cache
type Email struct {
	ID          string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID   uint              `gorm:"not null;index:idx_emails_account_folder_message,priority:1" json:"user_id"`
	Folder      string            `gorm:"not null;index:idx_emails_account_folder_message,priority:2" json:"folder"`
	MessageID   string            `gorm:"index:idx_emails_account_folder_message,priority:3" json:"message_id"`
	Subject     string            `json:"subject"`
	FromAddress string            `json:"from_address"`
	ToAddress   []string          `gorm:"serializer:json;type:text" json:"to_address"`
	CcAddress   []string          `gorm:"serializer:json;type:text" json:"cc_address"`
	BodyText    string            `gorm:"type:text" json:"body_text"`
	BodyHTML    string            `gorm:"type:text" json:"body_html"`
	Attachments []EmailAttachment `gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE" json:"attachments"`
	IsRead      bool              `gorm:"default:false" json:"is_read"`
	Date        time.Time         `gorm:"not null;index" json:"date"`
	CachedAt    time.Time         `gorm:"not null" json:"cached_at"`
}

// EmailAttachment is a decoded attachment part. Content marshals as base64 in JSON.
type EmailAttachment struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	EmailID     string `gorm:"not null;index;type:varchar(36)" json:"-"`
	Filename    string `gorm:"not null" json:"filename"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// EmailQuery selects a page of cached messages in one folder
type EmailQuery struct {
	AccountID uint
	Folder    string
	Skip      int
	Limit     int
}

// FolderInfo describes one selectable mailbox folder
type FolderInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	MessageCount int    `json:"message_count"`
}

// Contact is a correspondent seen in the cached mail
type Contact struct {
	Email        string    `json:"email"`
	MessageCount int       `json:"message_count"`
	LastSeen     time.Time `json:"last_seen"`
}
