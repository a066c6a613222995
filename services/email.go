package services

import (
	"context"
	"strings"

	"mailsync/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// EmailService reads and updates the local message cache
type EmailService struct {
	emails EmailStore
}

func NewEmailService(emails EmailStore) *EmailService {
	return &EmailService{emails: emails}
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// List returns one page of a folder, newest first
func (s *EmailService) List(ctx context.Context, q models.EmailQuery) ([]models.Email, error) {
	if q.Folder == "" {
		q.Folder = models.DefaultFolder
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	q.Limit = pageSize(q.Limit)
	return s.emails.List(ctx, q)
}

// Search matches query case-insensitively against subject, sender and plain body
func (s *EmailService) Search(ctx context.Context, accountID uint, query string, limit int) ([]models.Email, error) {
	return s.emails.Search(ctx, accountID, strings.TrimSpace(query), pageSize(limit))
}

func (s *EmailService) Get(ctx context.Context, accountID uint, id string) (*models.Email, error) {
	return s.emails.Get(ctx, accountID, id)
}

func (s *EmailService) SetRead(ctx context.Context, accountID uint, id string, read bool) error {
	return s.emails.SetRead(ctx, accountID, id, read)
}

// Delete removes the cached copy only; the server copy is untouched
func (s *EmailService) Delete(ctx context.Context, accountID uint, id string) error {
	return s.emails.Delete(ctx, accountID, id)
}
