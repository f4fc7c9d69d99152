package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/vehicle"
	"github.com/uitgo/trip-service/pkg/logger"
)

var (
	// ErrNotFound is returned when geocoding yields no match.
	ErrNotFound = errors.New("address not found")
	// ErrNoRoute is returned when the provider answers but has no usable route.
	ErrNoRoute = errors.New("no route found")
	// ErrUpstream covers transport failures, unexpected statuses and undecodable bodies.
	ErrUpstream = errors.New("mapping provider unavailable")
)

const defaultBaseURL = "https://us1.locationiq.com"

// Config holds mapping provider configuration
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Route is a computed path between two points.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
	Geometry        string // encoded polyline
}

// Client talks to the LocationIQ search and directions APIs. It does not
// cache or retry; callers own that policy.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logger.Logger
}

// NewClient creates a new mapping provider client
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to coordinates.
func (c *Client) Geocode(ctx context.Context, address string) (location.Coordinates, error) {
	const op = "geo.Geocode"

	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	resp, err := c.get(ctx, c.cfg.BaseURL+"/v1/search?"+q.Encode())
	if err != nil {
		return location.Coordinates{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	// LocationIQ answers 404 when nothing matches the query.
	if resp.StatusCode == http.StatusNotFound {
		return location.Coordinates{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return location.Coordinates{}, fmt.Errorf("%s: %w: unexpected status %d", op, ErrUpstream, resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return location.Coordinates{}, fmt.Errorf("%s: %w: decode response: %v", op, ErrUpstream, err)
	}
	if len(results) == 0 {
		return location.Coordinates{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return location.Coordinates{}, fmt.Errorf("%s: %w: parse latitude: %v", op, ErrUpstream, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return location.Coordinates{}, fmt.Errorf("%s: %w: parse longitude: %v", op, ErrUpstream, err)
	}

	return location.Coordinates{Longitude: lon, Latitude: lat}, nil
}

type directionsResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry string  `json:"geometry"`
	} `json:"routes"`
}

// Route computes the driving route between origin and destination. Motorbike
// routes exclude motorway segments.
func (c *Client) Route(ctx context.Context, origin, destination location.Coordinates, class vehicle.Class) (*Route, error) {
	const op = "geo.Route"

	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("overview", "full")
	q.Set("geometries", "polyline")
	q.Set("steps", "false")
	if class.AvoidsMotorways() {
		q.Set("exclude", "motorway")
	}

	endpoint := fmt.Sprintf("%s/v1/directions/driving/%s;%s?%s",
		c.cfg.BaseURL, formatCoords(origin), formatCoords(destination), q.Encode())

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	var payload directionsResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && isNoRouteCode(payload.Code) {
			return nil, fmt.Errorf("%s: %w", op, ErrNoRoute)
		}
		return nil, fmt.Errorf("%s: %w: unexpected status %d", op, ErrUpstream, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: %w: decode response: %v", op, ErrUpstream, decodeErr)
	}
	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRoute)
	}

	r := payload.Routes[0]
	c.logger.Debug("Route computed",
		logger.String("vehicle_type", class.String()),
		logger.Float64("distance_m", r.Distance),
		logger.Float64("duration_s", r.Duration),
	)

	return &Route{
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
		Geometry:        r.Geometry,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return resp, nil
}

func isNoRouteCode(code string) bool {
	return code == "NoRoute" || code == "NoSegment"
}

func formatCoords(c location.Coordinates) string {
	return strconv.FormatFloat(c.Longitude, 'f', 6, 64) + "," + strconv.FormatFloat(c.Latitude, 'f', 6, 64)
}
