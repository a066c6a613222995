package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailsync/models"
	"mailsync/services"
)

// Syncer is the part of services.SyncService the worker drives
type Syncer interface {
	Sync(ctx context.Context, req services.SyncRequest) (*services.SyncResult, error)
}

// AccountLister enumerates the accounts to keep in sync
type AccountLister interface {
	List(ctx context.Context) ([]models.MailAccount, error)
}

// SyncWorker periodically pulls new INBOX mail for every stored account
type SyncWorker struct {
	accounts AccountLister
	syncer   Syncer
	interval time.Duration
	log      logrus.FieldLogger
}

func NewSyncWorker(accounts AccountLister, syncer Syncer, interval time.Duration, log logrus.FieldLogger) *SyncWorker {
	return &SyncWorker{
		accounts: accounts,
		syncer:   syncer,
		interval: interval,
		log:      log,
	}
}

// Start blocks until ctx is done. A zero interval disables the worker.
func (w *SyncWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info("Sync worker disabled")
		return
	}

	w.log.WithField("interval", w.interval.String()).Info("Starting sync worker...")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.SyncAll(ctx)
		case <-ctx.Done():
			w.log.Info("Stopping sync worker...")
			return
		}
	}
}

// SyncAll runs one INBOX sync per account. A failing account is logged and
// the next one is tried.
func (w *SyncWorker) SyncAll(ctx context.Context) {
	accounts, err := w.accounts.List(ctx)
	if err != nil {
		w.log.WithError(err).Error("Failed to list accounts")
		return
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}

		entry := w.log.WithFields(logrus.Fields{
			"account_id": account.ID,
			"email":      account.Email,
		})

		result, err := w.syncer.Sync(ctx, services.SyncRequest{
			AccountID: account.ID,
			Folder:    models.DefaultFolder,
		})
		if err != nil {
			if result != nil {
				entry = entry.WithField("synced_count", result.SyncedCount)
			}
			entry.WithError(err).Warn("Background sync failed")
			continue
		}
		entry.WithField("synced_count", result.SyncedCount).Debug("Background sync finished")
	}
}
