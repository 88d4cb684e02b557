// Package routes looks up driving times with the Google Routes API.
package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"freight/internal/adapters/out/httpx"
	"freight/internal/core/ports"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"
)

const (
	DefaultBaseURL = "https://routes.googleapis.com"
	computeRoutes  = "/directions/v2:computeRoutes"
	defaultTimeout = 10 * time.Second
)

var ErrNoRoute = errors.New("no route between origin and destination")

var _ ports.RouteLookup = (*GoogleRoutes)(nil)

// GoogleRoutes implements ports.RouteLookup. It asks for traffic-aware
// driving routes and reads only the duration of the first one.
type GoogleRoutes struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

type Option func(*GoogleRoutes)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(baseURL string) Option {
	return func(g *GoogleRoutes) { g.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *GoogleRoutes) { g.client = client }
}

// NewGoogleRoutes creates a lookup against the Routes API.
func NewGoogleRoutes(apiKey string, opts ...Option) (*GoogleRoutes, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errs.NewValueIsRequiredError("apiKey")
	}

	g := &GoogleRoutes{
		client:  &http.Client{Timeout: defaultTimeout},
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type waypoint struct {
	Address string `json:"address"`
}

type computeRoutesRequest struct {
	Origin            waypoint `json:"origin"`
	Destination       waypoint `json:"destination"`
	TravelMode        string   `json:"travelMode"`
	RoutingPreference string   `json:"routingPreference"`
}

type computeRoutesResponse struct {
	Routes []struct {
		Duration string `json:"duration"`
	} `json:"routes"`
}

// RouteDurationSeconds returns the driving time of the first route found.
func (g *GoogleRoutes) RouteDurationSeconds(ctx context.Context, origin, destination string) (int64, error) {
	body, err := json.Marshal(computeRoutesRequest{
		Origin:            waypoint{Address: origin},
		Destination:       waypoint{Address: destination},
		TravelMode:        "DRIVE",
		RoutingPreference: "TRAFFIC_AWARE",
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+computeRoutes, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)
	req.Header.Set("X-Goog-FieldMask", "routes.duration")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("compute routes: %w", err)
	}
	if err = httpx.CheckResponse("google routes", resp); err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var decoded computeRoutesResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode compute routes response: %w", err)
	}
	if len(decoded.Routes) == 0 {
		return 0, workflow.NewNonRetryableError(fmt.Errorf("%w: %s -> %s", ErrNoRoute, origin, destination))
	}

	return ParseDuration(decoded.Routes[0].Duration)
}

// ParseDuration converts a protobuf JSON duration such as "1234s" or
// "12.5s" into whole seconds, rounding to the nearest second.
func ParseDuration(s string) (int64, error) {
	if !strings.HasSuffix(s, "s") {
		return 0, workflow.NewNonRetryableError(errs.NewValueIsInvalidError("duration"))
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, workflow.NewNonRetryableError(errs.NewValueIsInvalidErrorWithCause("duration", err))
	}
	return int64(math.Round(d.Seconds())), nil
}
