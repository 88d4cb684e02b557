package queries

import (
	"context"

	"freight/internal/core/domain/model/delivery"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetAllDeliveriesQueryHandler reads the deliveries table directly. The
// table is the mirror the coordinators write, so it may trail a live
// coordinator by the activity in flight.
type GetAllDeliveriesQueryHandler struct {
	db *gorm.DB
}

// NewGetAllDeliveriesQueryHandler creates a handler that lists deliveries
// straight from the database.
func NewGetAllDeliveriesQueryHandler(db *gorm.DB) GetAllDeliveriesQueryHandler {
	return GetAllDeliveriesQueryHandler{db: db}
}

// Handle returns all deliveries ordered by creation time, newest first.
func (h GetAllDeliveriesQueryHandler) Handle(
	ctx context.Context,
	query GetAllDeliveriesQuery,
) ([]delivery.Snapshot, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	rows, err := h.db.WithContext(ctx).Raw(`
		SELECT
			id,
			name,
			origin,
			destination,
			contact_phone,
			status,
			original_eta_epoch_secs,
			current_route_duration_seconds,
			current_location,
			notified,
			created_at,
			updated_at
		FROM deliveries
		ORDER BY created_at DESC, id
	`).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]delivery.Snapshot, 0)
	for rows.Next() {
		var (
			s      delivery.Snapshot
			id     uuid.UUID
			status string
		)
		if err = rows.Scan(
			&id,
			&s.Name,
			&s.Origin,
			&s.Destination,
			&s.ContactPhone,
			&status,
			&s.OriginalEtaEpochSecs,
			&s.CurrentRouteDurationSeconds,
			&s.CurrentLocation,
			&s.Notified,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if s.Status, err = delivery.ParseStatus(status); err != nil {
			return nil, err
		}
		s.ID = id.String()
		deliveries = append(deliveries, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return deliveries, nil
}
