package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsync/models"
	"mailsync/services"
	"mailsync/testutil"
	"mailsync/utils"
)

func TestFolderListing(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cipher, err := utils.NewCipher("folder-test-key")
	require.NoError(t, err)
	accounts := testutil.NewAccountStore()
	account := seedAccount(t, accounts, cipher, models.SMTPConfig{})

	sess := testutil.NewFakeSession()
	sess.Folders = map[string][][]byte{
		"INBOX":  {[]byte("a")},
		"Drafts": {},
	}
	sess.Lines = []string{
		`(\HasNoChildren) "/" "Drafts"`,
		`(\HasNoChildren) "/" "INBOX"`,
		`(\Noselect) "/" "Gone"`,
	}

	svc := services.NewFolderService(accounts, cipher, &testutil.FakeDialer{Session: sess}, logger)
	folders, err := svc.List(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.FolderInfo{
		{Name: "Inbox", Path: "INBOX", MessageCount: 1},
		{Name: "Drafts", Path: "Drafts", MessageCount: 0},
	}, folders)
	assert.Equal(t, 1, sess.LogOuts)
}

func TestFolderListingErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cipher, err := utils.NewCipher("folder-test-key")
	require.NoError(t, err)
	accounts := testutil.NewAccountStore()
	account := seedAccount(t, accounts, cipher, models.SMTPConfig{})

	svc := services.NewFolderService(accounts, cipher, &testutil.FakeDialer{Session: testutil.NewFakeSession()}, logger)
	_, err = svc.List(context.Background(), account.ID+1)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	dialErr := utils.Timeout("IMAP connection timed out", errors.New("i/o timeout"))
	svc = services.NewFolderService(accounts, cipher, &testutil.FakeDialer{Err: dialErr}, logger)
	_, err = svc.List(context.Background(), account.ID)
	assert.True(t, utils.IsKind(err, utils.KindTimeout))
}
