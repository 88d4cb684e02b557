// Package deliveryrepo persists the delivery mirror written by the lifecycle
// coordinator.
package deliveryrepo

import (
	"time"

	"freight/internal/core/domain/model/delivery"

	"github.com/google/uuid"
)

// DeliveryDTO is the row layout of the deliveries table. Status is stored
// by name so the table reads well without the code at hand.
type DeliveryDTO struct {
	ID                          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name                        string    `gorm:"not null"`
	Origin                      string    `gorm:"size:500;not null"`
	Destination                 string    `gorm:"size:500;not null"`
	ContactPhone                string    `gorm:"size:16;not null"`
	Status                      string    `gorm:"size:16;not null;index"`
	OriginalEtaEpochSecs        int64     `gorm:"not null"`
	CurrentRouteDurationSeconds int64     `gorm:"not null"`
	CurrentLocation             string    `gorm:"size:500;not null"`
	Notified                    bool      `gorm:"not null;default:false"`
	CreatedAt                   time.Time `gorm:"not null;index"`
	UpdatedAt                   time.Time `gorm:"not null"`
}

// TableName maps the row to the deliveries table.
func (DeliveryDTO) TableName() string {
	return "deliveries"
}

func fromDomain(d *delivery.Delivery) DeliveryDTO {
	return DeliveryDTO{
		ID:                          d.ID().Value(),
		Name:                        d.Name(),
		Origin:                      d.Origin(),
		Destination:                 d.Destination(),
		ContactPhone:                d.ContactPhone(),
		Status:                      d.Status().String(),
		OriginalEtaEpochSecs:        d.OriginalEtaEpochSecs(),
		CurrentRouteDurationSeconds: d.CurrentRouteDurationSeconds(),
		CurrentLocation:             d.CurrentLocation(),
		Notified:                    d.Notified(),
		CreatedAt:                   d.CreatedAt(),
		UpdatedAt:                   d.UpdatedAt(),
	}
}

// toDomain rebuilds the aggregate from a row.
func toDomain(dto DeliveryDTO) (*delivery.Delivery, error) {
	status, err := delivery.ParseStatus(dto.Status)
	if err != nil {
		return nil, err
	}

	return delivery.RestoreDelivery(delivery.Snapshot{
		ID:                          dto.ID.String(),
		Name:                        dto.Name,
		Origin:                      dto.Origin,
		Destination:                 dto.Destination,
		ContactPhone:                dto.ContactPhone,
		Status:                      status,
		OriginalEtaEpochSecs:        dto.OriginalEtaEpochSecs,
		CurrentRouteDurationSeconds: dto.CurrentRouteDurationSeconds,
		CurrentLocation:             dto.CurrentLocation,
		Notified:                    dto.Notified,
		CreatedAt:                   dto.CreatedAt,
		UpdatedAt:                   dto.UpdatedAt,
	})
}
