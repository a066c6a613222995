package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"mailsync/models"
	"mailsync/utils"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s literally anywhere
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// EmailRepository stores cached messages and their attachments in Postgres
type EmailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

func (r *EmailRepository) MessageIDs(ctx context.Context, accountID uint, folder string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Pluck("message_id", &ids).Error
	return ids, err
}

// Insert stores email together with its attachments
func (r *EmailRepository) Insert(ctx context.Context, email *models.Email) error {
	return r.db.WithContext(ctx).Create(email).Error
}

func (r *EmailRepository) List(ctx context.Context, q models.EmailQuery) ([]models.Email, error) {
	var emails []models.Email
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("account_id = ? AND folder = ?", q.AccountID, q.Folder).
		Order("date DESC").
		Offset(q.Skip).
		Limit(q.Limit).
		Find(&emails).Error
	return emails, err
}

func (r *EmailRepository) Search(ctx context.Context, accountID uint, query string, limit int) ([]models.Email, error) {
	pattern := containsPattern(query)

	var emails []models.Email
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("account_id = ?", accountID).
		Where("subject ILIKE ? OR from_address ILIKE ? OR body_text ILIKE ?", pattern, pattern, pattern).
		Order("date DESC").
		Limit(limit).
		Find(&emails).Error
	return emails, err
}

func (r *EmailRepository) Get(ctx context.Context, accountID uint, id string) (*models.Email, error) {
	var email models.Email
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("id = ? AND account_id = ?", id, accountID).
		First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Email not found")
		}
		return nil, err
	}
	return &email, nil
}

func (r *EmailRepository) SetRead(ctx context.Context, accountID uint, id string, read bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Update("is_read", read)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.NotFound("Email not found")
	}
	return nil
}

// Delete removes the message and its attachments; nothing is removed when
// the message does not belong to accountID.
func (r *EmailRepository) Delete(ctx context.Context, accountID uint, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email_id = ?", id).Delete(&models.EmailAttachment{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND account_id = ?", id, accountID).Delete(&models.Email{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NotFound("Email not found")
		}
		return nil
	})
}

func (r *EmailRepository) Envelopes(ctx context.Context, accountID uint) ([]models.Email, error) {
	var emails []models.Email
	err := r.db.WithContext(ctx).
		Select("from_address", "to_address", "cc_address", "date").
		Where("account_id = ?", accountID).
		Find(&emails).Error
	return emails, err
}
