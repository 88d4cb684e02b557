package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"freight/internal/core/domain/model/delivery"
	"freight/internal/core/domain/model/kernel"
	"freight/internal/core/ports"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"
)

// Activity names as recorded in the journal.
const (
	CalculateRouteName      = "calculateRoute"
	CurrentTimeName         = "currentTime"
	CreateDeliveryName      = "createDelivery"
	UpdateLocationName      = "updateLocation"
	UpdateStatusName        = "updateStatus"
	ComposeDelayMessageName = "composeDelayMessage"
	SendNotificationName    = "sendNotification"
)

// maxMessageLength keeps composed messages within two SMS segments.
const maxMessageLength = 320

var ErrSMSChannelNotConfigured = errors.New("SMS channel is not configured")

type (
	CalculateRouteInput struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	CalculateRouteOutput struct {
		RouteDurationSeconds int64 `json:"routeDurationSeconds"`
	}

	CurrentTimeOutput struct {
		EpochSecs int64 `json:"epochSecs"`
	}

	CreateDeliveryInput struct {
		ID                          string          `json:"id"`
		Name                        string          `json:"name"`
		Origin                      string          `json:"origin"`
		Destination                 string          `json:"destination"`
		ContactPhone                string          `json:"contactPhone"`
		Status                      delivery.Status `json:"status"`
		OriginalEtaEpochSecs        int64           `json:"originalEtaEpochSecs"`
		CurrentRouteDurationSeconds int64           `json:"currentRouteDurationSeconds"`
	}

	UpdateLocationInput struct {
		ID                   string `json:"id"`
		Location             string `json:"location"`
		RouteDurationSeconds int64  `json:"routeDurationSeconds"`
	}

	UpdateStatusInput struct {
		ID       string          `json:"id"`
		Status   delivery.Status `json:"status"`
		Notified *bool           `json:"notified,omitempty"`
	}

	ComposeDelayMessageInput struct {
		DelayMinutes int64  `json:"delayMinutes"`
		Origin       string `json:"origin"`
		Destination  string `json:"destination"`
	}
	ComposeDelayMessageOutput struct {
		Message string `json:"message"`
	}

	SendNotificationInput struct {
		ID           string `json:"id"`
		ContactPhone string `json:"contactPhone"`
		Message      string `json:"message"`
	}
	SendNotificationOutput struct {
		IdempotencyKey    string `json:"idempotencyKey"`
		ProviderMessageID string `json:"providerMessageId,omitempty"`
		Deduplicated      bool   `json:"deduplicated"`
	}
)

// Dependencies are the ports the activities are built on. Composer and
// Sender are optional: without a composer the fallback text is used, without
// a sender notifications fail permanently.
type Dependencies struct {
	Routes     ports.RouteLookup
	Deliveries ports.DeliveryRepository
	Composer   ports.MessageComposer
	Sender     ports.MessageSender
	Receipts   ports.NotificationReceipts
	Clock      ports.Clock
	Logger     *slog.Logger
}

// Activities implements every operation the lifecycle coordinator performs
// against the outside world.
type Activities struct {
	routes     ports.RouteLookup
	deliveries ports.DeliveryRepository
	composer   ports.MessageComposer
	sender     ports.MessageSender
	receipts   ports.NotificationReceipts
	clock      ports.Clock
	logger     *slog.Logger
}

// New creates the activities. Routes, Deliveries and Receipts are required.
func New(deps Dependencies) (*Activities, error) {
	if deps.Routes == nil {
		return nil, errs.NewValueIsRequiredError("Routes")
	}
	if deps.Deliveries == nil {
		return nil, errs.NewValueIsRequiredError("Deliveries")
	}
	if deps.Receipts == nil {
		return nil, errs.NewValueIsRequiredError("Receipts")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Activities{
		routes:     deps.Routes,
		deliveries: deps.Deliveries,
		composer:   deps.Composer,
		sender:     deps.Sender,
		receipts:   deps.Receipts,
		clock:      deps.Clock,
		logger:     deps.Logger.With("component", "activities"),
	}, nil
}

// Register makes every activity available to the workflow engine.
func (a *Activities) Register(reg *workflow.Registry) {
	workflow.Register(reg, CalculateRouteName, a.CalculateRoute)
	workflow.Register(reg, CurrentTimeName, a.CurrentTime)
	workflow.Register(reg, CreateDeliveryName, a.CreateDelivery)
	workflow.Register(reg, UpdateLocationName, a.UpdateLocation)
	workflow.Register(reg, UpdateStatusName, a.UpdateStatus)
	workflow.Register(reg, ComposeDelayMessageName, a.ComposeDelayMessage)
	workflow.Register(reg, SendNotificationName, a.SendNotification)
}

// CalculateRoute looks up the driving time between two addresses.
func (a *Activities) CalculateRoute(ctx context.Context, in CalculateRouteInput) (CalculateRouteOutput, error) {
	if err := errors.Join(
		requireText("origin", in.Origin),
		requireText("destination", in.Destination),
	); err != nil {
		return CalculateRouteOutput{}, err
	}

	seconds, err := a.routes.RouteDurationSeconds(ctx, in.Origin, in.Destination)
	if err != nil {
		return CalculateRouteOutput{}, fmt.Errorf("route lookup: %w", err)
	}
	if seconds < 0 {
		return CalculateRouteOutput{}, workflow.NewNonRetryableError(
			errs.NewValueIsOutOfRangeError("routeDurationSeconds", seconds, 0, "unbounded"))
	}

	return CalculateRouteOutput{RouteDurationSeconds: seconds}, nil
}

// CurrentTime reads the clock so replays see the time the step first ran.
func (a *Activities) CurrentTime(_ context.Context, _ struct{}) (CurrentTimeOutput, error) {
	return CurrentTimeOutput{EpochSecs: a.clock.Now().Unix()}, nil
}

// CreateDelivery stores a new delivery, or returns the stored one untouched
// when the id already exists.
func (a *Activities) CreateDelivery(ctx context.Context, in CreateDeliveryInput) (delivery.Snapshot, error) {
	id, err := kernel.UUIDFromString(in.ID)
	if err != nil {
		return delivery.Snapshot{}, err
	}
	origin, err := kernel.NewAddress("origin", in.Origin)
	if err != nil {
		return delivery.Snapshot{}, err
	}
	destination, err := kernel.NewAddress("destination", in.Destination)
	if err != nil {
		return delivery.Snapshot{}, err
	}
	phone, err := kernel.NewPhone(in.ContactPhone)
	if err != nil {
		return delivery.Snapshot{}, err
	}
	if in.Status != delivery.OnRoute {
		return delivery.Snapshot{}, errs.NewValueIsInvalidErrorWithCause(
			"status", fmt.Errorf("deliveries are created %s, got %s", delivery.OnRoute, in.Status))
	}

	d, err := delivery.NewDelivery(
		id, in.Name, origin, destination, phone,
		in.OriginalEtaEpochSecs, in.CurrentRouteDurationSeconds, a.clock.Now().UTC(),
	)
	if err != nil {
		return delivery.Snapshot{}, err
	}

	stored, err := a.deliveries.Create(ctx, d)
	if err != nil {
		return delivery.Snapshot{}, fmt.Errorf("create delivery: %w", err)
	}

	return stored.Snapshot(), nil
}

// UpdateLocation stores the new location and route duration.
func (a *Activities) UpdateLocation(ctx context.Context, in UpdateLocationInput) (delivery.Snapshot, error) {
	id, err := kernel.UUIDFromString(in.ID)
	if err != nil {
		return delivery.Snapshot{}, err
	}
	if err = requireText("location", in.Location); err != nil {
		return delivery.Snapshot{}, err
	}
	if in.RouteDurationSeconds < 0 {
		return delivery.Snapshot{}, errs.NewValueIsOutOfRangeError("routeDurationSeconds", in.RouteDurationSeconds, 0, "unbounded")
	}

	updated, err := a.deliveries.UpdateLocation(ctx, id, in.Location, in.RouteDurationSeconds)
	if err != nil {
		return delivery.Snapshot{}, classifyStoreError("update location", err)
	}

	return updated.Snapshot(), nil
}

// UpdateStatus stores the status and, when set, the notified flag.
func (a *Activities) UpdateStatus(ctx context.Context, in UpdateStatusInput) (struct{}, error) {
	id, err := kernel.UUIDFromString(in.ID)
	if err != nil {
		return struct{}{}, err
	}
	if err = in.Status.Validate(); err != nil {
		return struct{}{}, err
	}

	if err = a.deliveries.UpdateStatus(ctx, id, in.Status, in.Notified); err != nil {
		return struct{}{}, classifyStoreError("update status", err)
	}

	return struct{}{}, nil
}

// ComposeDelayMessage asks the composer for a message and falls back to the
// canned text on any problem.
func (a *Activities) ComposeDelayMessage(ctx context.Context, in ComposeDelayMessageInput) (ComposeDelayMessageOutput, error) {
	fallback := ComposeDelayMessageOutput{Message: FallbackDelayMessage(in.DelayMinutes)}
	if a.composer == nil {
		return fallback, nil
	}

	message, err := a.composer.ComposeDelayMessage(ctx, ports.DelayMessage{
		DelayMinutes: in.DelayMinutes,
		Origin:       in.Origin,
		Destination:  in.Destination,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "Message composition failed, using fallback", "error", err)
		return fallback, nil
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return fallback, nil
	}
	if runes := []rune(message); len(runes) > maxMessageLength {
		message = string(runes[:maxMessageLength])
	}

	return ComposeDelayMessageOutput{Message: message}, nil
}

// SendNotification dispatches the delay SMS at most once per delivery and
// recipient.
func (a *Activities) SendNotification(ctx context.Context, in SendNotificationInput) (SendNotificationOutput, error) {
	if a.sender == nil {
		return SendNotificationOutput{}, workflow.NewNonRetryableError(ErrSMSChannelNotConfigured)
	}

	phone, err := kernel.NewPhone(in.ContactPhone)
	if err != nil {
		return SendNotificationOutput{}, err
	}
	if err = errors.Join(requireText("id", in.ID), requireText("message", in.Message)); err != nil {
		return SendNotificationOutput{}, err
	}

	key := IdempotencyKey(phone.String(), in.ID)
	logger := a.logger.With("delivery_id", in.ID, "idempotency_key", key)

	receipt, err := a.receipts.Find(ctx, key)
	if err != nil {
		return SendNotificationOutput{}, fmt.Errorf("find notification receipt: %w", err)
	}
	if receipt != nil {
		logger.InfoContext(ctx, "Delay notification already sent, skipping")
		return SendNotificationOutput{
			IdempotencyKey:    key,
			ProviderMessageID: receipt.ProviderMessageID,
			Deduplicated:      true,
		}, nil
	}

	messageID, err := a.sender.SendSMS(ctx, phone.String(), in.Message, key)
	if err != nil {
		return SendNotificationOutput{}, fmt.Errorf("send sms: %w", err)
	}

	// The provider honours the key too, so a lost receipt only costs a
	// deduplicated request on the next retry.
	if err = a.receipts.Save(ctx, ports.NotificationReceipt{
		IdempotencyKey:    key,
		DeliveryID:        in.ID,
		ContactPhone:      phone.String(),
		Body:              in.Message,
		ProviderMessageID: messageID,
		SentAt:            a.clock.Now().UTC(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to save notification receipt", "error", err)
	}

	logger.InfoContext(ctx, "Delay notification sent", "provider_message_id", messageID)
	return SendNotificationOutput{IdempotencyKey: key, ProviderMessageID: messageID}, nil
}

func requireText(param, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.NewValueIsRequiredError(param)
	}
	return nil
}

func classifyStoreError(op string, err error) error {
	if errors.Is(err, errs.ErrObjectNotFound) {
		return workflow.NewNonRetryableError(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the wall clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
