package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpin "freight/internal/adapters/in/http"
	"freight/internal/core/application/usecases/commands"
	"freight/internal/core/application/usecases/queries"
	"freight/internal/core/domain/model/delivery"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStartDelivery struct{ mock.Mock }

func (m *MockStartDelivery) Handle(ctx context.Context, cmd commands.StartDeliveryCommand) (delivery.Snapshot, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(delivery.Snapshot), args.Error(1)
}

type MockUpdateLocation struct{ mock.Mock }

func (m *MockUpdateLocation) Handle(ctx context.Context, cmd commands.UpdateLocationCommand) error {
	return m.Called(ctx, cmd).Error(0)
}

type MockMarkDelivered struct{ mock.Mock }

func (m *MockMarkDelivered) Handle(ctx context.Context, cmd commands.MarkDeliveredCommand) error {
	return m.Called(ctx, cmd).Error(0)
}

type MockGetDelivery struct{ mock.Mock }

func (m *MockGetDelivery) Handle(ctx context.Context, query queries.GetDeliveryQuery) (delivery.Snapshot, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(delivery.Snapshot), args.Error(1)
}

type MockGetAllDeliveries struct{ mock.Mock }

func (m *MockGetAllDeliveries) Handle(ctx context.Context, query queries.GetAllDeliveriesQuery) ([]delivery.Snapshot, error) {
	args := m.Called(ctx, query)
	if list, ok := args.Get(0).([]delivery.Snapshot); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

type harness struct {
	echo     *echo.Echo
	start    *MockStartDelivery
	location *MockUpdateLocation
	deliver  *MockMarkDelivered
	get      *MockGetDelivery
	list     *MockGetAllDeliveries
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		start:    new(MockStartDelivery),
		location: new(MockUpdateLocation),
		deliver:  new(MockMarkDelivered),
		get:      new(MockGetDelivery),
		list:     new(MockGetAllDeliveries),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.echo = httpin.NewEcho(logger, prometheus.NewRegistry(), false)
	httpin.NewServer(h.start, h.location, h.deliver, h.get, h.list).RegisterRoutes(h.echo)
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)
	return rec
}

const deliveryID = "0b6d1c2e-6a53-4a53-9d0c-2f1d7c3e9a10"

func TestCreateDelivery(t *testing.T) {
	h := newHarness(t)

	var captured commands.StartDeliveryCommand
	h.start.On("Handle", mock.Anything, mock.AnythingOfType("commands.StartDeliveryCommand")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(commands.StartDeliveryCommand) }).
		Return(delivery.Snapshot{ID: "stored", Status: delivery.OnRoute}, nil).Once()

	rec := h.do(http.MethodPost, "/api/v1/deliveries",
		`{"name":"Pallets","origin":"Origin City 12345","destination":"Dest City 67890","contactPhone":"+1 (415) 555-0100","notifyThresholdSecs":900}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success    bool              `json:"success"`
		WorkflowID string            `json:"workflowId"`
		Delivery   delivery.Snapshot `json:"delivery"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, captured.DeliveryID().String(), resp.WorkflowID)
	assert.Equal(t, delivery.OnRoute, resp.Delivery.Status)
	assert.Equal(t, "Pallets", captured.Name())
	assert.Equal(t, int64(900), captured.NotifyThresholdSecs())
}

func TestCreateDelivery_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"origin":"Origin City 12345","destination":"Dest City 67890","contactPhone":"+14155550100"}`},
		{"short origin", `{"name":"P","origin":"short","destination":"Dest City 67890","contactPhone":"+14155550100"}`},
		{"bad phone", `{"name":"P","origin":"Origin City 12345","destination":"Dest City 67890","contactPhone":"12"}`},
		{"negative threshold", `{"name":"P","origin":"Origin City 12345","destination":"Dest City 67890","contactPhone":"+14155550100","notifyThresholdSecs":-1}`},
		{"zero threshold", `{"name":"P","origin":"Origin City 12345","destination":"Dest City 67890","contactPhone":"+14155550100","notifyThresholdSecs":0}`},
		{"malformed json", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			rec := h.do(http.MethodPost, "/api/v1/deliveries", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
			h.start.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateDelivery_RouteNotFound(t *testing.T) {
	h := newHarness(t)
	h.start.On("Handle", mock.Anything, mock.Anything).
		Return(delivery.Snapshot{}, workflow.NewNonRetryableError(errors.New("no route"))).Once()

	rec := h.do(http.MethodPost, "/api/v1/deliveries",
		`{"name":"Pallets","origin":"Origin City 12345","destination":"Dest City 67890","contactPhone":"+14155550100"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetDeliveries(t *testing.T) {
	h := newHarness(t)
	h.list.On("Handle", mock.Anything, mock.Anything).
		Return([]delivery.Snapshot{{ID: "b", Status: delivery.Delayed}, {ID: "a", Status: delivery.Delivered}}, nil).Once()

	rec := h.do(http.MethodGet, "/api/v1/deliveries", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success    bool                `json:"success"`
		Deliveries []delivery.Snapshot `json:"deliveries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Deliveries, 2)
	assert.Equal(t, "b", resp.Deliveries[0].ID)
}

func TestGetDeliveries_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.list.On("Handle", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()

	rec := h.do(http.MethodGet, "/api/v1/deliveries", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGetDelivery(t *testing.T) {
	h := newHarness(t)
	h.get.On("Handle", mock.Anything, mock.MatchedBy(func(q queries.GetDeliveryQuery) bool {
		return q.DeliveryID().String() == deliveryID
	})).Return(delivery.Snapshot{ID: deliveryID, Status: delivery.Delayed, Notified: true}, nil).Once()

	rec := h.do(http.MethodGet, "/api/v1/deliveries/"+deliveryID, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"DELAYED"`)
	assert.Contains(t, rec.Body.String(), `"notified":true`)
}

func TestGetDelivery_Errors(t *testing.T) {
	t.Run("invalid id", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodGet, "/api/v1/deliveries/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		h := newHarness(t)
		h.get.On("Handle", mock.Anything, mock.Anything).
			Return(delivery.Snapshot{}, errs.NewObjectNotFoundError("delivery", deliveryID)).Once()

		rec := h.do(http.MethodGet, "/api/v1/deliveries/"+deliveryID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateLocation(t *testing.T) {
	h := newHarness(t)
	h.location.On("Handle", mock.Anything, mock.MatchedBy(func(cmd commands.UpdateLocationCommand) bool {
		return cmd.DeliveryID().String() == deliveryID && cmd.Location().String() == "Midway Town 55555"
	})).Return(nil).Once()

	rec := h.do(http.MethodPatch, "/api/v1/deliveries/"+deliveryID+"/location", `{"location":"  Midway Town 55555 "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	h.location.AssertExpectations(t)
}

func TestUpdateLocation_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no live coordinator", workflow.ErrRunNotFound, http.StatusNotFound},
		{"already delivered", delivery.ErrDeliveryIsCompleted, http.StatusConflict},
		{"engine stopping", workflow.ErrEngineStopped, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.location.On("Handle", mock.Anything, mock.Anything).Return(tt.err).Once()

			rec := h.do(http.MethodPatch, "/api/v1/deliveries/"+deliveryID+"/location", `{"location":"Midway Town 55555"}`)

			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("missing location", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPatch, "/api/v1/deliveries/"+deliveryID+"/location", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		h.location.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})
}

func TestMarkDelivered(t *testing.T) {
	h := newHarness(t)
	h.deliver.On("Handle", mock.Anything, mock.MatchedBy(func(cmd commands.MarkDeliveredCommand) bool {
		return cmd.DeliveryID().String() == deliveryID
	})).Return(nil).Once()

	rec := h.do(http.MethodPost, "/api/v1/deliveries/"+deliveryID+"/mark-delivered", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Healthy", rec.Body.String())

	rec = h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
