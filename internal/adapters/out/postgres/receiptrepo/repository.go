package receiptrepo

import (
	"context"
	"errors"
	"strings"

	"freight/internal/adapters/out/postgres/pgerrors"
	"freight/internal/core/ports"
	"freight/internal/pkg/errs"

	"gorm.io/gorm"
)

var _ ports.NotificationReceipts = (*GormReceiptRepository)(nil)

// GormReceiptRepository implements ports.NotificationReceipts using GORM.
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a repository on db.
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// Find returns the receipt for idempotencyKey, or nil when none was saved.
func (r *GormReceiptRepository) Find(ctx context.Context, idempotencyKey string) (*ports.NotificationReceipt, error) {
	var dto ReceiptDTO
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", idempotencyKey).Take(&dto).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toPort(dto), nil
}

// Save stores the receipt. A second receipt for the same key keeps the first.
func (r *GormReceiptRepository) Save(ctx context.Context, receipt ports.NotificationReceipt) error {
	if strings.TrimSpace(receipt.IdempotencyKey) == "" {
		return errs.NewValueIsRequiredError("idempotencyKey")
	}

	dto := fromPort(receipt)
	if err := r.db.WithContext(ctx).Create(&dto).Error; err != nil {
		if pgerrors.IsUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}
