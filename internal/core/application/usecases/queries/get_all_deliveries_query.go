package queries

import (
	"errors"

	"freight/internal/pkg/guard"
)

var ErrGetAllDeliveriesQueryIsNotConstructed = errors.New(
	"GetAllDeliveriesQuery must be created via NewGetAllDeliveriesQuery constructor",
)

// GetAllDeliveriesQuery lists every stored delivery, newest first.
//
// Example:
//
//	query := NewGetAllDeliveriesQuery()
//	handler := NewGetAllDeliveriesQueryHandler(db)
//
//	deliveries, err := handler.Handle(ctx, query)
//	if err != nil {
//	    return fmt.Errorf("failed to list deliveries: %w", err)
//	}
//
//	for _, d := range deliveries {
//	    fmt.Printf("%s %s -> %s (%s)\n", d.ID, d.Origin, d.Destination, d.Status)
//	}
type GetAllDeliveriesQuery struct {
	guard guard.ConstructorGuard
}

// NewGetAllDeliveriesQuery creates a query for every delivery.
func NewGetAllDeliveriesQuery() GetAllDeliveriesQuery {
	return GetAllDeliveriesQuery{guard: guard.NewConstructorGuard()}
}

// Validate ensures the query was created through the constructor.
func (q GetAllDeliveriesQuery) Validate() error {
	return q.guard.Validate(ErrGetAllDeliveriesQueryIsNotConstructed)
}
