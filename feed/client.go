package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/transit"
)

const defaultTimeout = 10 * time.Second

// RouteResolver maps a trip to its route when the realtime feed carries no
// route ID. Usually stops.Index.RouteForTrip.
type RouteResolver func(tripID string) string

// Client fetches the configured GTFS-RT feeds.
type Client struct {
	vehiclesURL    string
	tripUpdatesURL string
	hc             *http.Client
	log            *logrus.Logger
	now            func() time.Time
	resolveRoute   RouteResolver
}

// Option adjusts a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithRouteResolver supplies a static trip-to-route fallback.
func WithRouteResolver(fn RouteResolver) Option {
	return func(c *Client) { c.resolveRoute = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New builds a Client from the realtime feed configuration.
func New(cfg config.GTFSRTConfig, log *logrus.Logger, opts ...Option) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		vehiclesURL:    cfg.VehiclePositionsURL,
		tripUpdatesURL: cfg.TripUpdatesURL,
		hc:             &http.Client{Timeout: timeout},
		log:            log,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchVehicles downloads the VehiclePositions feed and returns the valid
// vehicle snapshot. Entities that fail validation are dropped and counted.
func (c *Client) FetchVehicles(ctx context.Context) ([]transit.Vehicle, error) {
	if c.vehiclesURL == "" {
		return nil, fmt.Errorf("feed: no vehicle positions url configured")
	}
	fm, err := c.fetchMessage(ctx, c.vehiclesURL)
	if err != nil {
		return nil, err
	}
	vehicles, skipped := DecodeVehicles(fm, c.resolveRoute, c.now(), c.log)
	if skipped > 0 {
		c.log.WithFields(logrus.Fields{
			"skipped": skipped,
			"kept":    len(vehicles),
		}).Warn("dropped invalid vehicle entities")
	}
	return vehicles, nil
}

// FetchArrivals downloads the TripUpdates feed and returns the expected
// arrival times per trip and stop.
func (c *Client) FetchArrivals(ctx context.Context) (Arrivals, error) {
	if c.tripUpdatesURL == "" {
		return nil, fmt.Errorf("feed: no trip updates url configured")
	}
	fm, err := c.fetchMessage(ctx, c.tripUpdatesURL)
	if err != nil {
		return nil, err
	}
	return DecodeArrivals(fm), nil
}

func (c *Client) fetchMessage(ctx context.Context, url string) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: fetch %s: status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed: read %s: %w", url, err)
	}
	return UnmarshalMessage(b)
}

// UnmarshalMessage decodes raw protobuf bytes into a FeedMessage.
func UnmarshalMessage(b []byte) (*gtfsrtpb.FeedMessage, error) {
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("feed: decode protobuf: %w", err)
	}
	return &fm, nil
}
