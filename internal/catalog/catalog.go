// Package catalog implements the Instrument Catalog Client: the collector's
// only caller of the exchange's unauthenticated request/response endpoints.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nsvirk/tickcollector/internal/errs"
	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	connectTimeout = 5 * time.Second
	totalTimeout   = 15 * time.Second
)

// InstrumentDescriptor is one row of a list_active response.
type InstrumentDescriptor struct {
	Name          string      `json:"name"`
	ExpiryInstant *int64      `json:"expiry_instant"` // ms since epoch
	Strike        *float64    `json:"strike"`
	OptionSide    *models.Side `json:"option_side"`
	Kind          models.Kind `json:"kind"`
	Active        bool        `json:"active"`
}

// Expiry converts ExpiryInstant (ms since epoch) to a time.Time, if present.
func (d InstrumentDescriptor) Expiry() *time.Time {
	if d.ExpiryInstant == nil {
		return nil
	}
	t := time.UnixMilli(*d.ExpiryInstant).UTC()
	return &t
}

type depthLevelWire struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type depthResponse struct {
	Bids         []depthLevelWire `json:"bids"`
	Asks         []depthLevelWire `json:"asks"`
	MarkPrice    *float64         `json:"mark_price"`
	IndexPrice   *float64         `json:"index_price"`
	OpenInterest *float64         `json:"open_interest"`
	Volume24h    *float64         `json:"volume_24h"`
}

// Client is the Instrument Catalog Client. It does not cache across calls
// -- caching the universe is the Lifecycle Manager's concern -- and owns a
// single *http.Client bounded by the shared rate limiter, per the
// process-wide-HTTP-client re-architecture note.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client against baseURL, pacing requests through limiter.
func New(baseURL string, limiter *rate.Limiter) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		limiter: limiter,
	}
}

// ListActive returns every currently-listed instrument of the given
// currency and kind.
func (c *Client) ListActive(ctx context.Context, currency string, kind models.Kind) ([]InstrumentDescriptor, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.NewTransient("catalog.list_active", err)
	}

	u := fmt.Sprintf("%s/instruments?currency=%s&kind=%s", c.baseURL, url.QueryEscape(currency), url.QueryEscape(string(kind)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.NewPermanent("catalog.list_active", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.NewTransient("catalog.list_active", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errs.NewTransient("catalog.list_active", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.NewPermanent("catalog.list_active", fmt.Errorf("status %d", resp.StatusCode))
	}

	var descriptors []InstrumentDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, errs.NewPermanent("catalog.list_active", err)
	}

	return descriptors, nil
}

// FetchDepth performs a one-shot full-depth read for instrument, up to
// maxLevels per side. Returns errs.ErrNotFound if the instrument expired
// between listing and this call.
func (c *Client) FetchDepth(ctx context.Context, instrument string, maxLevels int) (models.DepthSnapshot, error) {
	var snap models.DepthSnapshot

	if err := c.limiter.Wait(ctx); err != nil {
		return snap, errs.NewTransient("catalog.fetch_depth", err)
	}

	// Boolean query parameters must be lowercase strings, not native
	// booleans -- a documented quirk of the exchange's endpoint.
	u := fmt.Sprintf("%s/depth?instrument=%s&levels=%d&aggregate=%s",
		c.baseURL, url.QueryEscape(instrument), maxLevels, strconv.FormatBool(false))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return snap, errs.NewPermanent("catalog.fetch_depth", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return snap, errs.NewTransient("catalog.fetch_depth", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return snap, errs.ErrNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return snap, errs.NewTransient("catalog.fetch_depth", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return snap, errs.NewPermanent("catalog.fetch_depth", fmt.Errorf("status %d", resp.StatusCode))
	}

	var wire depthResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return snap, errs.NewPermanent("catalog.fetch_depth", err)
	}

	snap = toDepthSnapshot(instrument, wire, maxLevels)
	return snap, nil
}

func toDepthSnapshot(instrument string, wire depthResponse, maxLevels int) models.DepthSnapshot {
	snap := models.DepthSnapshot{
		Instant:    time.Now().UTC(),
		Instrument: instrument,
	}

	snap.Bids = toLadder(wire.Bids, maxLevels)
	snap.Asks = toLadder(wire.Asks, maxLevels)

	if wire.MarkPrice != nil {
		snap.MarkPrice = nullDecimal(*wire.MarkPrice)
	}
	if wire.IndexPrice != nil {
		snap.IndexPrice = nullDecimal(*wire.IndexPrice)
	}
	if wire.OpenInterest != nil {
		snap.OpenInterest = nullDecimal(*wire.OpenInterest)
	}
	if wire.Volume24h != nil {
		snap.Volume24h = nullDecimal(*wire.Volume24h)
	}

	return snap
}

func toLadder(levels []depthLevelWire, maxLevels int) models.DepthLadder {
	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	ladder := make(models.DepthLadder, 0, len(levels))
	for _, l := range levels {
		ladder = append(ladder, models.DepthLevel{
			Price: decimal.NewFromFloat(l.Price),
			Size:  decimal.NewFromFloat(l.Size),
		})
	}
	return ladder
}

func nullDecimal(f float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(f), Valid: true}
}
