package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mailsync/models"
	"mailsync/utils"
)

// AccountStore keeps credential records in memory
type AccountStore struct {
	mu       sync.Mutex
	accounts map[uint]*models.MailAccount
	nextID   uint
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: map[uint]*models.MailAccount{}, nextID: 1}
}

func (s *AccountStore) FindByID(_ context.Context, id uint) (*models.MailAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, utils.NotFound("User not found")
	}
	clone := *account
	return &clone, nil
}

func (s *AccountStore) FindByEmail(_ context.Context, email string) (*models.MailAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Email == email {
			clone := *account
			return &clone, nil
		}
	}
	return nil, utils.NotFound("User not found")
}

// Save upserts by email, keeping the original id and CreatedAt
func (s *AccountStore) Save(_ context.Context, account *models.MailAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, existing := range s.accounts {
		if existing.Email == account.Email {
			account.ID = id
			account.CreatedAt = existing.CreatedAt
			account.UpdatedAt = now
			clone := *account
			s.accounts[id] = &clone
			return nil
		}
	}
	account.ID = s.nextID
	account.CreatedAt = now
	account.UpdatedAt = now
	s.nextID++
	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

func (s *AccountStore) List(_ context.Context) ([]models.MailAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MailAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, *account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// EmailStore keeps message records in memory, in insertion order
type EmailStore struct {
	mu     sync.Mutex
	emails []models.Email

	// InsertErr fails every Insert
	InsertErr error
}

func NewEmailStore() *EmailStore {
	return &EmailStore{}
}

// All returns a copy of every stored record in insertion order
func (s *EmailStore) All() []models.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Email(nil), s.emails...)
}

func (s *EmailStore) MessageIDs(_ context.Context, accountID uint, folder string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, e := range s.emails {
		if e.AccountID == accountID && e.Folder == folder {
			ids = append(ids, e.MessageID)
		}
	}
	return ids, nil
}

func (s *EmailStore) Insert(_ context.Context, email *models.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.emails = append(s.emails, *email)
	return nil
}

func (s *EmailStore) List(_ context.Context, q models.EmailQuery) ([]models.Email, error) {
	s.mu.Lock()
	var out []models.Email
	for _, e := range s.emails {
		if e.AccountID == q.AccountID && e.Folder == q.Folder {
			out = append(out, e)
		}
	}
	s.mu.Unlock()

	sortNewestFirst(out)
	return page(out, q.Skip, q.Limit), nil
}

func (s *EmailStore) Search(_ context.Context, accountID uint, query string, limit int) ([]models.Email, error) {
	needle := strings.ToLower(query)
	s.mu.Lock()
	var out []models.Email
	for _, e := range s.emails {
		if e.AccountID != accountID {
			continue
		}
		if strings.Contains(strings.ToLower(e.Subject), needle) ||
			strings.Contains(strings.ToLower(e.FromAddress), needle) ||
			strings.Contains(strings.ToLower(e.BodyText), needle) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()

	sortNewestFirst(out)
	return page(out, 0, limit), nil
}

func (s *EmailStore) Get(_ context.Context, accountID uint, id string) (*models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.emails {
		if e.ID == id && e.AccountID == accountID {
			clone := e
			return &clone, nil
		}
	}
	return nil, utils.NotFound("Email not found")
}

func (s *EmailStore) SetRead(_ context.Context, accountID uint, id string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.emails {
		if s.emails[i].ID == id && s.emails[i].AccountID == accountID {
			s.emails[i].IsRead = read
			return nil
		}
	}
	return utils.NotFound("Email not found")
}

func (s *EmailStore) Delete(_ context.Context, accountID uint, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.emails {
		if s.emails[i].ID == id && s.emails[i].AccountID == accountID {
			s.emails = append(s.emails[:i], s.emails[i+1:]...)
			return nil
		}
	}
	return utils.NotFound("Email not found")
}

func (s *EmailStore) Envelopes(_ context.Context, accountID uint) ([]models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Email
	for _, e := range s.emails {
		if e.AccountID == accountID {
			out = append(out, models.Email{
				FromAddress: e.FromAddress,
				ToAddress:   e.ToAddress,
				CcAddress:   e.CcAddress,
				Date:        e.Date,
			})
		}
	}
	return out, nil
}

func sortNewestFirst(emails []models.Email) {
	sort.SliceStable(emails, func(i, j int) bool { return emails[i].Date.After(emails[j].Date) })
}

func page(emails []models.Email, skip, limit int) []models.Email {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(emails) {
		return []models.Email{}
	}
	emails = emails[skip:]
	if limit > 0 && limit < len(emails) {
		emails = emails[:limit]
	}
	return emails
}
