package deliveryrepo

import (
	"context"
	"errors"
	"time"

	"freight/internal/core/domain/model/delivery"
	"freight/internal/core/domain/model/kernel"
	"freight/internal/core/ports"
	"freight/internal/pkg/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ ports.DeliveryRepository = (*GormDeliveryRepository)(nil)

// GormDeliveryRepository implements ports.DeliveryRepository using GORM.
type GormDeliveryRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormDeliveryRepository creates a repository on db.
func NewGormDeliveryRepository(db *gorm.DB) *GormDeliveryRepository {
	return &GormDeliveryRepository{db: db, now: time.Now}
}

// Create inserts the delivery unless its id is taken and returns the stored
// row either way.
func (r *GormDeliveryRepository) Create(ctx context.Context, aggregate *delivery.Delivery) (*delivery.Delivery, error) {
	if err := aggregate.Validate(); err != nil {
		return nil, err
	}

	dto := fromDomain(aggregate)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&dto).Error; err != nil {
		return nil, err
	}

	return r.Get(ctx, aggregate.ID())
}

// Get retrieves a delivery by ID.
func (r *GormDeliveryRepository) Get(ctx context.Context, id kernel.UUID) (*delivery.Delivery, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	var dto DeliveryDTO
	if err := r.db.WithContext(ctx).First(&dto, "id = ?", id.Value()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewObjectNotFoundError("delivery", id.String())
		}
		return nil, err
	}

	return toDomain(dto)
}

// UpdateLocation overwrites the position fields and returns the updated row.
func (r *GormDeliveryRepository) UpdateLocation(
	ctx context.Context,
	id kernel.UUID,
	location string,
	routeDurationSeconds int64,
) (*delivery.Delivery, error) {
	if err := r.update(ctx, id, map[string]any{
		"current_location":               location,
		"current_route_duration_seconds": routeDurationSeconds,
	}); err != nil {
		return nil, err
	}

	return r.Get(ctx, id)
}

// UpdateStatus overwrites the status and, when given, the notified flag.
func (r *GormDeliveryRepository) UpdateStatus(
	ctx context.Context,
	id kernel.UUID,
	status delivery.Status,
	notified *bool,
) error {
	if err := status.Validate(); err != nil {
		return err
	}

	fields := map[string]any{"status": status.String()}
	if notified != nil {
		fields["notified"] = *notified
	}
	return r.update(ctx, id, fields)
}

func (r *GormDeliveryRepository) update(ctx context.Context, id kernel.UUID, fields map[string]any) error {
	if err := id.Validate(); err != nil {
		return err
	}

	fields["updated_at"] = r.now().UTC()
	result := r.db.WithContext(ctx).Model(&DeliveryDTO{}).Where("id = ?", id.Value()).Updates(fields)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errs.NewObjectNotFoundError("delivery", id.String())
	}
	return nil
}
