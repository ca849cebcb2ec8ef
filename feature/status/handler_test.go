package status

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/store"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Find(ctx context.Context, id string) (*reconcile.Transaction, error) {
	args := m.Called(ctx, id)
	tx, _ := args.Get(0).(*reconcile.Transaction)
	return tx, args.Error(1)
}

func (m *mockStore) List(ctx context.Context, f store.Filter) (store.Page, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(store.Page), args.Error(1)
}

func (m *mockStore) Summary(ctx context.Context) (store.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(store.Summary), args.Error(1)
}

func (m *mockStore) Requeue(ctx context.Context, id string) (*reconcile.Transaction, error) {
	args := m.Called(ctx, id)
	tx, _ := args.Get(0).(*reconcile.Transaction)
	return tx, args.Error(1)
}

type fakeRuns struct {
	busy atomic.Bool
	last *reconcile.RunSummary
}

func (r *fakeRuns) Trigger() error {
	if !r.busy.CompareAndSwap(false, true) {
		return reconcile.ErrRunInProgress
	}
	return nil
}

func (r *fakeRuns) LastRun() *reconcile.RunSummary {
	return r.last
}

func (r *fakeRuns) Correct(_ context.Context, id string) (*reconcile.Transaction, error) {
	switch {
	case r.busy.Load():
		return nil, reconcile.ErrRunInProgress
	case id == "po_variance":
		tx := transaction(id, reconcile.StatusMatched)
		tx.VarianceAmount = decimal.NewNullDecimal(decimal.Zero)
		tx.CorrectionEntryID = "ADJ-1"
		return tx, nil
	case id == "po_missing":
		return nil, fmt.Errorf("%w: %s", reconcile.ErrNotFound, id)
	default:
		return nil, fmt.Errorf("%w: %s is MATCHED", reconcile.ErrNotCorrectable, id)
	}
}

func setupTestApp(t *testing.T) (*fiber.App, *mockStore, *fakeRuns) {
	t.Helper()
	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	st := new(mockStore)
	runs := &fakeRuns{}
	feature := NewFeature(NewService(context.Background(), st, runs, nil, nil), true)
	require.NoError(t, feature.Load(app))
	return app, st, runs
}

func transaction(id string, status reconcile.Status) *reconcile.Transaction {
	return &reconcile.Transaction{
		PayoutID:      id,
		Status:        status,
		NetAmount:     decimal.RequireFromString("98.50"),
		Currency:      "USD",
		PayoutDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		AttemptCount:  1,
		LastAttemptAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func decode(t *testing.T, body io.Reader, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(out))
}

func TestFeature(t *testing.T) {
	f := NewFeature(nil, false)
	assert.Equal(t, "status", f.Name())
	assert.False(t, f.IsEnabled())
}

func TestHandleList(t *testing.T) {
	app, st, _ := setupTestApp(t)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	st.On("List", mock.Anything, mock.MatchedBy(func(f store.Filter) bool {
		return f.Status == reconcile.StatusVariance && f.PayoutFrom.Equal(from) && f.PayoutTo.IsZero() &&
			f.After == "po_10" && f.Limit == 2
	})).Return(store.Page{
		Transactions: []reconcile.Transaction{*transaction("po_11", reconcile.StatusVariance)},
		NextCursor:   "po_11",
	}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions?status=variance&from=2025-03-01&cursor=po_10&limit=2", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Data       []map[string]any `json:"data"`
		NextCursor string           `json:"next_cursor"`
	}
	decode(t, resp.Body, &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "po_11", body.Data[0]["payout_id"])
	assert.Equal(t, "VARIANCE", body.Data[0]["status"])
	assert.Equal(t, "po_11", body.NextCursor)
	st.AssertExpectations(t)
}

func TestHandleList_BadQuery(t *testing.T) {
	app, st, _ := setupTestApp(t)

	for _, q := range []string{"status=settled", "from=yesterday", "limit=0", "limit=abc"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/transactions?"+q, nil))
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode, q)
	}
	st.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestHandleList_StoreFailure(t *testing.T) {
	app, st, _ := setupTestApp(t)
	st.On("List", mock.Anything, mock.Anything).Return(store.Page{}, reconcile.ErrPersistence)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestHandleGet(t *testing.T) {
	app, st, _ := setupTestApp(t)
	st.On("Find", mock.Anything, "po_1").Return(transaction("po_1", reconcile.StatusPending), nil)
	st.On("Find", mock.Anything, "po_404").Return(nil, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions/po_1", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var tx map[string]any
	decode(t, resp.Body, &tx)
	assert.Equal(t, "98.5", tx["net_amount"])

	resp, err = app.Test(httptest.NewRequest("GET", "/transactions/po_404", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHandleRequeue(t *testing.T) {
	app, st, _ := setupTestApp(t)
	st.On("Requeue", mock.Anything, "po_failed").Return(transaction("po_failed", reconcile.StatusPending), nil)
	st.On("Requeue", mock.Anything, "po_matched").Return(nil, fmt.Errorf("%w: po_matched is MATCHED", store.ErrNotRequeueable))
	st.On("Requeue", mock.Anything, "po_missing").Return(nil, fmt.Errorf("%w: po_missing", store.ErrNotFound))

	tests := []struct {
		id   string
		want int
	}{
		{"po_failed", 200},
		{"po_matched", 409},
		{"po_missing", 404},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest("POST", "/transactions/"+tt.id+"/requeue", nil))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, tt.id)
	}
}

func TestHandleCorrect(t *testing.T) {
	app, _, runs := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/transactions/po_variance/correct", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var body map[string]any
	decode(t, resp.Body, &body)
	assert.Equal(t, "MATCHED", body["status"])

	for id, want := range map[string]int{"po_matched": 409, "po_missing": 404} {
		resp, err := app.Test(httptest.NewRequest("POST", "/transactions/"+id+"/correct", nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, id)
	}

	runs.busy.Store(true)
	resp, err = app.Test(httptest.NewRequest("POST", "/transactions/po_variance/correct", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode, "a running reconciliation blocks manual corrections")
}

func TestHandleSummary(t *testing.T) {
	app, st, runs := setupTestApp(t)
	runs.last = &reconcile.RunSummary{RunID: "run-1", Processed: 3, Variance: 1}
	st.On("Summary", mock.Anything).Return(store.Summary{
		Total: 3,
		Statuses: []store.StatusTotal{
			{Status: reconcile.StatusMatched, Count: 2, VarianceTotal: decimal.Zero},
			{Status: reconcile.StatusVariance, Count: 1, VarianceTotal: decimal.RequireFromString("-1.25")},
		},
		TotalVariance:  decimal.RequireFromString("-1.25"),
		ActionRequired: true,
	}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions/summary", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	decode(t, resp.Body, &body)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, "-1.25", body["total_variance"])
	assert.Equal(t, true, body["action_required"])
	lastRun, ok := body["last_run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-1", lastRun["run_id"])
}

func TestHandleTrigger(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/runs", nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/runs", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestHandleLastRun(t *testing.T) {
	app, _, runs := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/runs/last", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	runs.last = &reconcile.RunSummary{RunID: "run-2", Matched: 4}
	resp, err = app.Test(httptest.NewRequest("GET", "/runs/last", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var body reconcile.RunSummary
	decode(t, resp.Body, &body)
	assert.Equal(t, "run-2", body.RunID)
	assert.Equal(t, 4, body.Matched)
}

func TestHandleExport(t *testing.T) {
	app, st, _ := setupTestApp(t)
	st.On("List", mock.Anything, mock.MatchedBy(func(f store.Filter) bool { return f.After == "" })).
		Return(store.Page{Transactions: []reconcile.Transaction{
			*transaction("po_1", reconcile.StatusPending),
			*transaction("po_2", reconcile.StatusPending),
		}}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions/export?status=pending", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "payout_id", records[0][0])
	assert.Equal(t, "po_2", records[2][0])
}

func TestHandleExports_Disabled(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/exports", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/exports", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}
