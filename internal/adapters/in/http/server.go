// Package http exposes the freight API over echo.
package http

import (
	"context"
	"net/http"

	"freight/internal/core/application/usecases/commands"
	"freight/internal/core/application/usecases/queries"
	"freight/internal/core/domain/model/delivery"
	"freight/internal/core/domain/model/kernel"
	"freight/internal/pkg/errs"

	"github.com/labstack/echo/v4"
)

// Use case handlers the server dispatches to. The concrete command and
// query handlers satisfy them.
type (
	StartDeliveryHandler interface {
		Handle(ctx context.Context, cmd commands.StartDeliveryCommand) (delivery.Snapshot, error)
	}
	UpdateLocationHandler interface {
		Handle(ctx context.Context, cmd commands.UpdateLocationCommand) error
	}
	MarkDeliveredHandler interface {
		Handle(ctx context.Context, cmd commands.MarkDeliveredCommand) error
	}
	GetDeliveryHandler interface {
		Handle(ctx context.Context, query queries.GetDeliveryQuery) (delivery.Snapshot, error)
	}
	GetAllDeliveriesHandler interface {
		Handle(ctx context.Context, query queries.GetAllDeliveriesQuery) ([]delivery.Snapshot, error)
	}
)

// Server maps HTTP requests onto the delivery use cases.
type Server struct {
	// Command handlers
	startDeliveryHandler  StartDeliveryHandler
	updateLocationHandler UpdateLocationHandler
	markDeliveredHandler  MarkDeliveredHandler

	// Query handlers
	getDeliveryHandler      GetDeliveryHandler
	getAllDeliveriesHandler GetAllDeliveriesHandler
}

// NewServer creates the HTTP handlers over the use case handlers.
func NewServer(
	startDeliveryHandler StartDeliveryHandler,
	updateLocationHandler UpdateLocationHandler,
	markDeliveredHandler MarkDeliveredHandler,
	getDeliveryHandler GetDeliveryHandler,
	getAllDeliveriesHandler GetAllDeliveriesHandler,
) *Server {
	return &Server{
		startDeliveryHandler:    startDeliveryHandler,
		updateLocationHandler:   updateLocationHandler,
		markDeliveredHandler:    markDeliveredHandler,
		getDeliveryHandler:      getDeliveryHandler,
		getAllDeliveriesHandler: getAllDeliveriesHandler,
	}
}

// RegisterRoutes mounts the delivery API under /api/v1.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1/deliveries")
	api.POST("", s.CreateDelivery)
	api.GET("", s.GetDeliveries)
	api.GET("/:id", s.GetDelivery)
	api.PATCH("/:id/location", s.UpdateLocation)
	api.POST("/:id/mark-delivered", s.MarkDelivered)
}

// CreateDelivery handles POST /api/v1/deliveries.
func (s *Server) CreateDelivery(c echo.Context) error {
	var req CreateDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var threshold int64
	if req.NotifyThresholdSecs != nil {
		threshold = *req.NotifyThresholdSecs
	}

	id := kernel.NewUUID()
	cmd, err := commands.NewStartDeliveryCommand(
		id, req.Name, req.Origin, req.Destination, req.ContactPhone, threshold,
	)
	if err != nil {
		return err
	}

	created, err := s.startDeliveryHandler.Handle(c.Request().Context(), cmd)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, CreateDeliveryResponse{
		Success:    true,
		WorkflowID: id.String(),
		Delivery:   created,
	})
}

// GetDeliveries handles GET /api/v1/deliveries.
func (s *Server) GetDeliveries(c echo.Context) error {
	deliveries, err := s.getAllDeliveriesHandler.Handle(c.Request().Context(), queries.NewGetAllDeliveriesQuery())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, DeliveriesResponse{Success: true, Deliveries: deliveries})
}

// GetDelivery handles GET /api/v1/deliveries/:id.
func (s *Server) GetDelivery(c echo.Context) error {
	id, err := deliveryID(c)
	if err != nil {
		return err
	}

	query, err := queries.NewGetDeliveryQuery(id)
	if err != nil {
		return err
	}

	snapshot, err := s.getDeliveryHandler.Handle(c.Request().Context(), query)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, DeliveryResponse{Success: true, Delivery: snapshot})
}

// UpdateLocation handles PATCH /api/v1/deliveries/:id/location.
func (s *Server) UpdateLocation(c echo.Context) error {
	id, err := deliveryID(c)
	if err != nil {
		return err
	}

	var req UpdateLocationRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err = c.Validate(&req); err != nil {
		return err
	}

	cmd, err := commands.NewUpdateLocationCommand(id, req.Location)
	if err != nil {
		return err
	}

	if err = s.updateLocationHandler.Handle(c.Request().Context(), cmd); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// MarkDelivered handles POST /api/v1/deliveries/:id/mark-delivered.
func (s *Server) MarkDelivered(c echo.Context) error {
	id, err := deliveryID(c)
	if err != nil {
		return err
	}

	cmd, err := commands.NewMarkDeliveredCommand(id)
	if err != nil {
		return err
	}

	if err = s.markDeliveredHandler.Handle(c.Request().Context(), cmd); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func deliveryID(c echo.Context) (kernel.UUID, error) {
	id, err := kernel.UUIDFromString(c.Param("id"))
	if err != nil {
		return kernel.UUID{}, errs.NewValueIsInvalidErrorWithCause("id", err)
	}
	return id, nil
}
