// Package polymarket fetches event records from the Polymarket Gamma API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rewired-gh/polynotify/internal/models"
)

// ClientConfig holds the retry and timeout policy for the Gamma API.
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int           // attempts after the first one
	RetryDelayBase time.Duration // linear backoff: base, 2*base, ...
}

// Client provides access to the Polymarket Gamma API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// EventQuery is one /events request. Nil booleans are left out of the query.
type EventQuery struct {
	TagID     string
	Active    *bool
	Closed    *bool
	Limit     int
	Order     string
	Ascending *bool
}

// ActiveEvents returns the query for open events under a tag.
func ActiveEvents(tagID string, limit int) EventQuery {
	return EventQuery{TagID: tagID, Active: boolPtr(true), Closed: boolPtr(false), Limit: limit}
}

// RecentlyClosedEvents returns the query for closed events under a tag,
// most recently updated first.
func RecentlyClosedEvents(tagID string, limit int) EventQuery {
	return EventQuery{TagID: tagID, Closed: boolPtr(true), Limit: limit, Order: "updatedAt", Ascending: boolPtr(false)}
}

func boolPtr(b bool) *bool { return &b }

func (q EventQuery) values() url.Values {
	v := url.Values{}
	if q.TagID != "" {
		v.Set("tag_id", q.TagID)
	}
	if q.Active != nil {
		v.Set("active", strconv.FormatBool(*q.Active))
	}
	if q.Closed != nil {
		v.Set("closed", strconv.FormatBool(*q.Closed))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Ascending != nil {
		v.Set("ascending", strconv.FormatBool(*q.Ascending))
	}
	return v
}

// NewClient creates a new Gamma API client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// FetchEvents retrieves one page of events. The response is a bare JSON array.
func (c *Client) FetchEvents(ctx context.Context, q EventQuery) ([]models.MarketEvent, error) {
	u, err := url.Parse(c.baseURL + "/events")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	u.RawQuery = q.values().Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer resp.Body.Close()

	var events []models.MarketEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// doRequest performs an HTTP GET, retrying transport errors and 5xx
// responses with linear backoff. Other non-2xx statuses fail immediately.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryDelayBase):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			drain(resp)
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			drain(resp)
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
