package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"mailsync/mailbox"
	"mailsync/models"
	"mailsync/utils"
)

// FolderService lists the server-side folders of an account
type FolderService struct {
	accounts AccountStore
	cipher   CredentialCipher
	dialer   mailbox.Dialer
	log      logrus.FieldLogger
}

func NewFolderService(accounts AccountStore, cipher CredentialCipher, dialer mailbox.Dialer, log logrus.FieldLogger) *FolderService {
	return &FolderService{accounts: accounts, cipher: cipher, dialer: dialer, log: log}
}

func (s *FolderService) List(ctx context.Context, accountID uint) ([]models.FolderInfo, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	password, err := s.cipher.Decrypt(account.EncryptedPassword)
	if err != nil {
		return nil, utils.Unexpected("failed to decrypt stored credentials", err)
	}

	sess, err := s.dialer.Dial(ctx, account.IMAP, account.Email, password)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Logout(); err != nil {
			s.log.WithError(err).WithField("account_id", account.ID).Debug("IMAP logout failed")
		}
	}()

	folders, err := mailbox.ListFolders(sess, s.log.WithField("account_id", account.ID))
	if err != nil {
		return nil, utils.Unexpected("failed to get folders", err)
	}
	return folders, nil
}
