package melbourne

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 1 * time.Second
	maxBackoff            = 30 * time.Second
)

// Client issues paginated GET requests against the Explore v2.1 records API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	logger         *zap.Logger
}

func NewClient(baseURL, apiKey string, pageSize int, timeout time.Duration) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		apiKey:         apiKey,
		pageSize:       pageSize,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		logger:         zap.L(),
	}
}

// FetchPage fetches one page at the given zero-based offset, ordered
// ascending on the query's time field. Transient failures are retried with
// exponential backoff before surfacing; fatal ones return immediately.
func (c *Client) FetchPage(ctx context.Context, q DatasetQuery, offset int) (*Page, error) {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		page, err := c.fetchOnce(ctx, q, offset)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("page fetch succeeded after retry",
					zap.String("dataset", q.Dataset), zap.Int("attempt", attempt))
			}
			return page, nil
		}
		lastErr = err

		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}
		if attempt >= c.maxAttempts {
			break
		}

		// jitter keeps synchronized schedulers from hammering the API in step.
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		c.logger.Debug("retrying page fetch",
			zap.String("dataset", q.Dataset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.maxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, q DatasetQuery, offset int) (*Page, error) {
	u, err := url.Parse(fmt.Sprintf("%s/catalog/datasets/%s/records", c.baseURL, q.Dataset))
	if err != nil {
		return nil, &FetchError{Class: ErrorClassFatal, Dataset: q.Dataset, Err: err}
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("order_by", q.TimeField+" ASC")
	if q.Watermark != nil {
		// the zoneless date literal is read as UTC upstream, so the
		// watermark must be rendered in UTC regardless of the zone the
		// store's driver attached to it.
		params.Set("where", fmt.Sprintf("%s >= date'%s'", q.TimeField, q.Watermark.UTC().Format("2006-01-02T15:04:05")))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Class: ErrorClassFatal, Dataset: q.Dataset, Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Class: ErrorClassTransient, Dataset: q.Dataset, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			Dataset:    q.Dataset,
			Err:        fmt.Errorf("unexpected status: %s", string(body)),
		}
	}

	page := &Page{}
	if err := json.NewDecoder(resp.Body).Decode(page); err != nil {
		// a garbled body on an otherwise-good response is worth one retry.
		return nil, &FetchError{Class: ErrorClassTransient, Dataset: q.Dataset, Err: err}
	}
	page.HasMore = offset+len(page.Results) < page.TotalCount

	return page, nil
}
