package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"mailsync/middleware"
	"mailsync/models"
	"mailsync/services"
)

type SyncRequest struct {
	Folder string `json:"folder" validate:"omitempty,max=255"`
	Limit  int    `json:"limit" validate:"omitempty,min=1"`
}

type SyncResponse struct {
	Message string `json:"message"`
	*services.SyncResult
}

// SyncEvent is one websocket frame of a streamed sync
type SyncEvent struct {
	Type     string                 `json:"type"`
	Progress *services.SyncProgress `json:"progress,omitempty"`
	Result   *services.SyncResult   `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

type SyncController struct {
	syncer *services.SyncService
	log    logrus.FieldLogger
}

func NewSyncController(syncer *services.SyncService, log logrus.FieldLogger) *SyncController {
	return &SyncController{syncer: syncer, log: log}
}

func (s *SyncController) SyncEmails(c *fiber.Ctx) error {
	var req SyncRequest
	if len(c.Body()) > 0 {
		if ok, err := bindJSON(c, &req); !ok {
			return err
		}
	}

	result, err := s.syncer.Sync(c.UserContext(), services.SyncRequest{
		AccountID: accountID(c),
		Folder:    folderOrDefault(req.Folder),
		Limit:     req.Limit,
	})
	if err != nil {
		return respondError(c, s.log, "sync_emails", err, "Failed to sync emails")
	}

	return c.JSON(SyncResponse{
		Message:    fmt.Sprintf("Synced %d new emails", result.SyncedCount),
		SyncResult: result,
	})
}

// Stream runs one sync per request frame and pushes a progress event for
// every processed message followed by a result or error event.
func (s *SyncController) Stream(conn *websocket.Conn) {
	defer conn.Close()

	id, _ := conn.Locals(middleware.LocalAccountID).(uint)
	log := s.log.WithField("account_id", id)

	for {
		var req SyncRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("Sync stream closed")
			}
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		var writeErr error
		result, err := s.syncer.Sync(ctx, services.SyncRequest{
			AccountID: id,
			Folder:    folderOrDefault(req.Folder),
			Limit:     req.Limit,
			Progress: func(p services.SyncProgress) {
				if writeErr != nil {
					return
				}
				if writeErr = conn.WriteJSON(SyncEvent{Type: EventProgress, Progress: &p}); writeErr != nil {
					// client went away, stop pulling messages for it
					cancel()
				}
			},
		})
		cancel()

		if writeErr != nil {
			log.WithError(writeErr).Warn("Failed to write sync progress")
			return
		}

		event := SyncEvent{Type: EventResult, Result: result}
		if err != nil {
			// result carries what was stored before the run stopped, if anything
			event = SyncEvent{Type: EventError, Error: err.Error(), Result: result}
		}
		if err := conn.WriteJSON(event); err != nil {
			log.WithError(err).Warn("Failed to write sync result")
			return
		}
	}
}

func folderOrDefault(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return models.DefaultFolder
	}
	return folder
}
