package melbourne

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return &Client{
		httpClient:     &http.Client{Timeout: time.Second},
		baseURL:        baseURL,
		pageSize:       100,
		maxAttempts:    3,
		initialBackoff: time.Millisecond,
		logger:         zaptest.NewLogger(t),
	}
}

func TestFetchPage_QueryShape(t *testing.T) {
	watermark := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/catalog/datasets/on-street-parking-bay-sensors/records", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "200", r.URL.Query().Get("offset"))
		assert.Equal(t, "status_timestamp ASC", r.URL.Query().Get("order_by"))
		assert.Equal(t, "status_timestamp >= date'2026-08-01T10:00:00'", r.URL.Query().Get("where"))
		fmt.Fprint(w, `{"total_count": 203, "results": [{}, {}, {}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	page, err := c.FetchPage(context.Background(), DatasetQuery{
		Dataset:   ParkingDataset,
		TimeField: ParkingTimeField,
		Watermark: &watermark,
	}, 200)
	require.NoError(t, err)
	require.NotEmpty(t, gotQuery)

	assert.Len(t, page.Results, 3)
	assert.Equal(t, 203, page.TotalCount)
	assert.False(t, page.HasMore, "offset 200 + 3 results covers total_count 203")
}

func TestFetchPage_WatermarkRenderedInUTC(t *testing.T) {
	// The store hands watermarks back in whatever zone its driver attached;
	// the zoneless date literal upstream is read as UTC, so the filter must
	// be converted before rendering or it lands hours past the real watermark.
	melb := time.FixedZone("AEST", 10*60*60)
	watermark := time.Date(2026, 8, 20, 9, 0, 0, 0, melb)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "status_timestamp >= date'2026-08-19T23:00:00'", r.URL.Query().Get("where"))
		fmt.Fprint(w, `{"total_count": 0, "results": []}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchPage(context.Background(), DatasetQuery{
		Dataset:   ParkingDataset,
		TimeField: ParkingTimeField,
		Watermark: &watermark,
	}, 0)
	require.NoError(t, err)
}

func TestFetchPage_NoWatermarkOmitsWhere(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("where"))
		fmt.Fprint(w, `{"total_count": 250, "results": [{}, {}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	page, err := c.FetchPage(context.Background(), DatasetQuery{Dataset: PedestrianDataset, TimeField: PedestrianTimeField}, 0)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
}

func TestFetchPage_APIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Apikey sekret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"total_count": 0, "results": []}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.apiKey = "sekret"
	_, err := c.FetchPage(context.Background(), DatasetQuery{Dataset: ParkingDataset, TimeField: ParkingTimeField}, 0)
	assert.NoError(t, err)
}

func TestFetchPage_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"total_count": 1, "results": [{}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	page, err := c.FetchPage(context.Background(), DatasetQuery{Dataset: ParkingDataset, TimeField: ParkingTimeField}, 0)
	require.NoError(t, err)
	assert.Len(t, page.Results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPage_FatalNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchPage(context.Background(), DatasetQuery{Dataset: ParkingDataset, TimeField: ParkingTimeField}, 0)
	require.Error(t, err)

	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load(), "4xx must fail immediately")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadRequest, fe.StatusCode)
}

func TestFetchPage_RetryExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchPage(context.Background(), DatasetQuery{Dataset: ParkingDataset, TimeField: ParkingTimeField}, 0)

	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.False(t, IsFatal(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPage_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening any more

	c := newTestClient(t, srv.URL)
	_, err := c.FetchPage(context.Background(), DatasetQuery{Dataset: ParkingDataset, TimeField: ParkingTimeField}, 0)

	assert.ErrorIs(t, err, ErrRetryExhausted)
}

func TestFetchPage_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.initialBackoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchPage(ctx, DatasetQuery{Dataset: ParkingDataset, TimeField: ParkingTimeField}, 0)
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("FetchPage did not honour cancellation during backoff")
	}
}
