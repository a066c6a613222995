package services

import (
	"context"
	"sort"
	"strings"

	"mailsync/models"
)

// ContactService derives correspondents from cached mail
type ContactService struct {
	accounts AccountStore
	emails   EmailStore
}

func NewContactService(accounts AccountStore, emails EmailStore) *ContactService {
	return &ContactService{accounts: accounts, emails: emails}
}

// List returns every address seen as sender or recipient, except the
// account's own, most frequent first.
func (s *ContactService) List(ctx context.Context, accountID uint) ([]models.Contact, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	envelopes, err := s.emails.Envelopes(ctx, accountID)
	if err != nil {
		return nil, err
	}

	self := strings.ToLower(account.Email)
	byAddress := make(map[string]*models.Contact)
	for _, env := range envelopes {
		// Count each message once per address
		seen := make(map[string]bool)
		addresses := append([]string{env.FromAddress}, env.ToAddress...)
		addresses = append(addresses, env.CcAddress...)

		for _, addr := range addresses {
			key := strings.ToLower(strings.TrimSpace(addr))
			if key == "" || key == self || seen[key] {
				continue
			}
			seen[key] = true

			c, ok := byAddress[key]
			if !ok {
				c = &models.Contact{Email: key}
				byAddress[key] = c
			}
			c.MessageCount++
			if env.Date.After(c.LastSeen) {
				c.LastSeen = env.Date
			}
		}
	}

	contacts := make([]models.Contact, 0, len(byAddress))
	for _, c := range byAddress {
		contacts = append(contacts, *c)
	}
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].MessageCount != contacts[j].MessageCount {
			return contacts[i].MessageCount > contacts[j].MessageCount
		}
		return contacts[i].Email < contacts[j].Email
	})
	return contacts, nil
}
