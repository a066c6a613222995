package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mailsync/mailbox"
	"mailsync/mailparser"
	"mailsync/metrics"
	"mailsync/models"
	"mailsync/synclock"
	"mailsync/utils"
)

const (
	DefaultSyncLimit = 50
	MaxSyncLimit     = 500
)

// SyncRequest asks for the newest Limit messages of one folder
type SyncRequest struct {
	AccountID uint
	Folder    string
	Limit     int
	// Progress, when set, is called once per processed message
	Progress func(SyncProgress)
}

// SyncProgress reports one processed message
type SyncProgress struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Synced    int    `json:"synced"`
	Subject   string `json:"subject,omitempty"`
	Skipped   bool   `json:"skipped"`
}

// SyncResult summarises a finished sync run
type SyncResult struct {
	Folder      string        `json:"folder"`
	SyncedCount int           `json:"synced_count"`
	Fetched     int           `json:"fetched"`
	Duplicates  int           `json:"duplicates"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"-"`
}

// SyncService pulls recent server messages into the local cache
type SyncService struct {
	accounts AccountStore
	emails   EmailStore
	cipher   CredentialCipher
	dialer   mailbox.Dialer
	parser   *mailparser.Parser
	locker   synclock.Locker
	log      logrus.FieldLogger

	defaultLimit int
	maxLimit     int
}

type SyncServiceConfig struct {
	DefaultLimit int
	MaxLimit     int
}

func NewSyncService(
	accounts AccountStore,
	emails EmailStore,
	cipher CredentialCipher,
	dialer mailbox.Dialer,
	parser *mailparser.Parser,
	locker synclock.Locker,
	log logrus.FieldLogger,
	cfg SyncServiceConfig,
) *SyncService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultSyncLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxSyncLimit
	}
	if locker == nil {
		locker = synclock.NewLocalLocker()
	}
	return &SyncService{
		accounts:     accounts,
		emails:       emails,
		cipher:       cipher,
		dialer:       dialer,
		parser:       parser,
		locker:       locker,
		log:          log,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
	}
}

func (s *SyncService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// Sync caches the newest messages of req.Folder that are not cached yet.
// Runs for the same account folder never overlap. A message that cannot be
// fetched or parsed is logged and skipped; any other failure aborts the run.
// A run aborted inside the message loop returns its partial counts alongside
// the error.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	start := time.Now()
	if req.Folder == "" {
		req.Folder = models.DefaultFolder
	}
	req.Limit = s.clampLimit(req.Limit)

	result, err := s.sync(ctx, req)
	duration := time.Since(start)
	if err != nil {
		fields := map[string]interface{}{
			"account_id": req.AccountID,
			"folder":     req.Folder,
			"limit":      req.Limit,
		}
		if result != nil {
			result.Duration = duration
			metrics.AddMessagesSynced(req.Folder, result.SyncedCount)
			fields["synced_count"] = result.SyncedCount
		}
		metrics.RecordSyncRun("failed", duration)
		utils.LogError(s.log, "email_sync", err, fields)
		return result, err
	}

	result.Duration = duration
	metrics.RecordSyncRun("success", duration)
	metrics.AddMessagesSynced(req.Folder, result.SyncedCount)
	utils.LogEvent(s.log, "email_sync_completed", map[string]interface{}{
		"account_id":   req.AccountID,
		"folder":       req.Folder,
		"synced_count": result.SyncedCount,
		"fetched":      result.Fetched,
		"duplicates":   result.Duplicates,
		"failed":       result.Failed,
		"duration_ms":  duration.Milliseconds(),
	})
	return result, nil
}

func (s *SyncService) sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	account, err := s.accounts.FindByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, synclock.Key(account.ID, req.Folder))
	if err != nil {
		return nil, utils.Timeout("gave up waiting for a running sync of this folder", err)
	}
	defer unlock()

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

	if _, err := sess.Select(req.Folder, true); err != nil {
		return nil, utils.Unexpected(fmt.Sprintf("failed to select folder %s", req.Folder), err)
	}

	ids, err := sess.SearchAll()
	if err != nil {
		return nil, utils.Unexpected("failed to search folder", err)
	}
	if len(ids) > req.Limit {
		ids = ids[len(ids)-req.Limit:]
	}

	cached, err := s.emails.MessageIDs(ctx, account.ID, req.Folder)
	if err != nil {
		return nil, utils.Unexpected("failed to load cached messages", err)
	}
	known := make(map[string]struct{}, len(cached)+len(ids))
	for _, id := range cached {
		known[id] = struct{}{}
	}

	result := &SyncResult{Folder: req.Folder}
	for i := len(ids) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, utils.Timeout("sync cancelled", err)
		}

		seqNum := ids[i]
		progress := SyncProgress{Processed: len(ids) - i, Total: len(ids)}

		email, ok := s.fetchAndParse(sess, seqNum, account.ID, req.Folder)
		if !ok {
			result.Failed++
			progress.Skipped = true
			progress.Synced = result.SyncedCount
			s.report(req, progress)
			continue
		}
		result.Fetched++
		progress.Subject = email.Subject

		if _, dup := known[email.MessageID]; dup {
			result.Duplicates++
			progress.Skipped = true
		} else {
			if err := s.emails.Insert(ctx, email); err != nil {
				return result, utils.Unexpected("failed to store message", err)
			}
			known[email.MessageID] = struct{}{}
			result.SyncedCount++
		}

		progress.Synced = result.SyncedCount
		s.report(req, progress)
	}

	return result, nil
}

func (s *SyncService) fetchAndParse(sess mailbox.Session, seqNum uint32, accountID uint, folder string) (*models.Email, bool) {
	entry := s.log.WithFields(logrus.Fields{
		"account_id": accountID,
		"folder":     folder,
		"seq_num":    seqNum,
	})

	raw, err := sess.FetchRaw(seqNum)
	if err != nil {
		metrics.IncrementMessageFailure("fetch")
		entry.WithError(err).Warn("Skipping message that could not be fetched")
		return nil, false
	}

	email, err := s.parser.Parse(raw, accountID, folder)
	if err != nil {
		metrics.IncrementMessageFailure("parse")
		entry.WithError(err).Warn("Skipping message that could not be parsed")
		return nil, false
	}
	return email, true
}

func (s *SyncService) report(req SyncRequest, p SyncProgress) {
	if req.Progress != nil {
		req.Progress(p)
	}
}
