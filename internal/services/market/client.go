// Package market reads crop prices from the market_listings table exposed by
// the backend-as-a-service REST endpoint.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNoListings is returned when no active kg-priced listing exists for a crop.
var ErrNoListings = errors.New("no market listings")

type Config struct {
	BaseURL string // e.g. https://<project>.supabase.co
	APIKey  string
	Sample  int // most recent listings averaged into a quote (default 5)
	Timeout time.Duration
}

type Client struct {
	base   string
	apiKey string
	sample int
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Sample <= 0 {
		cfg.Sample = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey: cfg.APIKey,
		sample: cfg.Sample,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// LatestPrice averages the most recent active listings of crop priced per kg.
func (c *Client) LatestPrice(ctx context.Context, crop string) (Quote, error) {
	crop = strings.TrimSpace(crop)
	if crop == "" {
		return Quote{}, fmt.Errorf("market: empty crop type")
	}

	var listings []Listing
	if err := c.getJSON(ctx, c.listingsURL(crop), &listings); err != nil {
		return Quote{}, err
	}

	q := Quote{CropType: crop}
	var sum float64
	for _, l := range listings {
		if u := strings.ToLower(strings.TrimSpace(l.Unit)); u != "" && u != "kg" {
			continue
		}
		// decimal strings may spell NaN or Infinity
		if !(l.PricePerUnit >= 0) || math.IsInf(l.PricePerUnit, 0) {
			continue
		}
		sum += l.PricePerUnit
		q.Listings++
		if l.CreatedAt.After(q.Newest) {
			q.Newest = l.CreatedAt
		}
	}
	if q.Listings == 0 {
		return Quote{}, fmt.Errorf("market: %s: %w", crop, ErrNoListings)
	}
	q.PricePerUnit = sum / float64(q.Listings)
	if math.IsInf(q.PricePerUnit, 0) {
		return Quote{}, fmt.Errorf("market: %s: mean price overflows", crop)
	}
	return q, nil
}

func (c *Client) listingsURL(crop string) string {
	q := url.Values{}
	q.Set("select", "crop_type,price_per_unit,unit,location_name,created_at")
	q.Set("crop_type", "ilike."+crop)
	q.Set("is_active", "eq.true")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(c.sample))
	return c.base + "/rest/v1/market_listings?" + q.Encode()
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("market: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("market: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("market: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("market: decode: %w", err)
	}
	return nil
}
