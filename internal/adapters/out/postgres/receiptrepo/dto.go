// Package receiptrepo stores notification receipts keyed by idempotency key.
package receiptrepo

import (
	"time"

	"freight/internal/core/ports"
)

// ReceiptDTO is a row of notification_receipts.
type ReceiptDTO struct {
	IdempotencyKey    string    `gorm:"primaryKey;size:64"`
	DeliveryID        string    `gorm:"size:36;not null;index"`
	ContactPhone      string    `gorm:"size:20;not null"`
	Body              string    `gorm:"type:text;not null"`
	ProviderMessageID string    `gorm:"size:64"`
	SentAt            time.Time `gorm:"not null"`
}

// TableName maps the row to the notification receipts table.
func (ReceiptDTO) TableName() string {
	return "notification_receipts"
}

func fromPort(r ports.NotificationReceipt) ReceiptDTO {
	return ReceiptDTO{
		IdempotencyKey:    r.IdempotencyKey,
		DeliveryID:        r.DeliveryID,
		ContactPhone:      r.ContactPhone,
		Body:              r.Body,
		ProviderMessageID: r.ProviderMessageID,
		SentAt:            r.SentAt,
	}
}

func toPort(dto ReceiptDTO) *ports.NotificationReceipt {
	return &ports.NotificationReceipt{
		IdempotencyKey:    dto.IdempotencyKey,
		DeliveryID:        dto.DeliveryID,
		ContactPhone:      dto.ContactPhone,
		Body:              dto.Body,
		ProviderMessageID: dto.ProviderMessageID,
		SentAt:            dto.SentAt,
	}
}
