package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"mailsync/models"
	"mailsync/utils"
)

// AccountRepository stores credential records in Postgres
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id uint) (*models.MailAccount, error) {
	var account models.MailAccount
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("User not found")
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.MailAccount, error) {
	var account models.MailAccount
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("User not found")
		}
		return nil, err
	}
	return &account, nil
}

// Save inserts a new record or overwrites the one with the same email,
// keeping its id and creation time.
func (r *AccountRepository) Save(ctx context.Context, account *models.MailAccount) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.MailAccount
		err := tx.Where("email = ?", account.Email).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(account).Error
		case err != nil:
			return err
		}

		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
		return tx.Save(account).Error
	})
}

func (r *AccountRepository) List(ctx context.Context) ([]models.MailAccount, error) {
	var accounts []models.MailAccount
	if err := r.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
