package processor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payout-reconciler/core/apiclient"
	"payout-reconciler/core/reconcile"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, h http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	src, err := NewSource(Config{
		Config:       apiclient.Config{BaseURL: srv.URL, APIKey: "sk_test", Timeout: time.Second},
		PageSize:     2,
		LookbackDays: 7,
		Currency:     "USD",
	})
	require.NoError(t, err)
	src.now = func() time.Time { return time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC) }
	return src
}

func TestSource_FetchPage(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, payoutsPath, r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "cur_1", r.URL.Query().Get("cursor"))
		assert.Equal(t, "2025-03-03T00:00:00Z", r.URL.Query().Get("created_after"))
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		_, _ = io.WriteString(w, `{
			"data": [
				{"id": "po_1", "gross_amount": "103.20", "fees": "3.20", "net_amount": "100.00", "payout_date": "2025-03-01", "currency": "eur"},
				{"id": "po_2", "fees": 1.5, "net_amount": 48.5, "payout_date": 1740787200}
			],
			"next_cursor": "cur_2"
		}`)
	})

	page, err := src.FetchPage(context.Background(), "cur_1")
	require.NoError(t, err)
	assert.Equal(t, "cur_2", page.NextCursor)
	require.Len(t, page.Payouts, 2)

	p1 := page.Payouts[0]
	assert.Equal(t, "po_1", p1.ID)
	assert.True(t, p1.GrossAmount.Equal(decimal.RequireFromString("103.20")))
	assert.True(t, p1.NetAmount.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, "EUR", p1.Currency)
	assert.True(t, p1.PayoutDate.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))

	p2 := page.Payouts[1]
	assert.True(t, p2.GrossAmount.Equal(decimal.RequireFromString("50")), "gross is derived from net and fees")
	assert.Equal(t, "USD", p2.Currency)
	assert.True(t, p2.PayoutDate.Equal(p1.PayoutDate))
}

func TestSource_FirstPageHasNoCursor(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["cursor"]
		assert.False(t, ok)
		_, _ = io.WriteString(w, `{"data": []}`)
	})

	page, err := src.FetchPage(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, page.Payouts)
	assert.Empty(t, page.NextCursor)
}

func TestSource_StrictParsing(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"MissingID", `{"data":[{"net_amount":"1","payout_date":"2025-03-01"}]}`},
		{"MissingNet", `{"data":[{"id":"po_1","payout_date":"2025-03-01"}]}`},
		{"NullNet", `{"data":[{"id":"po_1","net_amount":null,"payout_date":"2025-03-01"}]}`},
		{"MissingDate", `{"data":[{"id":"po_1","net_amount":"1"}]}`},
		{"BadAmount", `{"data":[{"id":"po_1","net_amount":"1,00","payout_date":"2025-03-01"}]}`},
		{"BadFees", `{"data":[{"id":"po_1","net_amount":"1","fees":"x","payout_date":"2025-03-01"}]}`},
		{"BadDate", `{"data":[{"id":"po_1","net_amount":"1","payout_date":"yesterday"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.payload)
			})
			_, err := src.FetchPage(context.Background(), "")
			assert.ErrorIs(t, err, reconcile.ErrMalformedPayload)
		})
	}
}

func TestSource_RateLimitSurfacesAsExternalError(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := src.FetchPage(context.Background(), "")
	var ext *reconcile.ExternalError
	require.True(t, errors.As(err, &ext))
	assert.True(t, ext.RateLimited())
	assert.Equal(t, 2*time.Second, ext.RetryAfter)
}

func TestSource_StreamsAllPages(t *testing.T) {
	pages := map[string]string{
		"":   `{"data":[{"id":"po_1","net_amount":"1","payout_date":"2025-03-01"},{"id":"po_2","net_amount":"2","payout_date":"2025-03-01"}],"next_cursor":"c2"}`,
		"c2": `{"data":[{"id":"po_3","net_amount":"3","payout_date":"2025-03-01"}],"next_cursor":"c3"}`,
		"c3": `{"data":[],"next_cursor":""}`,
	}
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, pages[r.URL.Query().Get("cursor")])
	})

	stream := reconcile.NewPayoutStream(src, reconcile.NewBackoff(reconcile.RetryPolicy{MaxAttempts: 1}, nil, nil), "")
	var ids []string
	for stream.Next(context.Background()) {
		ids = append(ids, stream.Payout().ID)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"po_1", "po_2", "po_3"}, ids)
}
