package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payout-reconciler/core/apiclient"
	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/utils"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const payoutsPath = "/v1/payouts"

// wirePayout is a payout as the processor API sends it. Amounts arrive as
// strings or numbers and are parsed without float rounding.
type wirePayout struct {
	ID          string          `json:"id"`
	GrossAmount json.RawMessage `json:"gross_amount"`
	Fees        json.RawMessage `json:"fees"`
	NetAmount   json.RawMessage `json:"net_amount"`
	PayoutDate  json.RawMessage `json:"payout_date"`
	Currency    string          `json:"currency"`
}

type wirePage struct {
	Data       []wirePayout `json:"data"`
	NextCursor string       `json:"next_cursor"`
}

// Source reads payouts from the processor API. It implements
// reconcile.PayoutSource.
type Source struct {
	client *apiclient.Client
	cfg    Config
	now    func() time.Time
}

var _ reconcile.PayoutSource = (*Source)(nil)

// NewSource creates a payout source for cfg.
func NewSource(cfg Config) (*Source, error) {
	client, err := apiclient.New(cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Source{client: client, cfg: cfg, now: time.Now}, nil
}

// FetchPage returns the page starting at cursor.
func (s *Source) FetchPage(ctx context.Context, cursor string) (reconcile.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(s.cfg.PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if s.cfg.LookbackDays > 0 {
		// Day granularity keeps the filter identical across the pages of a run.
		since := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -s.cfg.LookbackDays)
		q.Set("created_after", since.Format(time.RFC3339))
	}

	var page wirePage
	if err := s.client.Get(ctx, "fetch_payouts", payoutsPath, q, &page); err != nil {
		return reconcile.Page{}, err
	}

	out := reconcile.Page{
		Payouts:    make([]reconcile.Payout, 0, len(page.Data)),
		NextCursor: page.NextCursor,
	}
	for i, w := range page.Data {
		p, err := s.parse(w)
		if err != nil {
			return reconcile.Page{}, fmt.Errorf("%w: payout %d of page %q: %v", reconcile.ErrMalformedPayload, i, cursor, err)
		}
		out.Payouts = append(out.Payouts, p)
	}
	return out, nil
}

// parse converts a wire payout. id, net_amount and payout_date are
// required. A missing gross amount is derived as net + fees.
func (s *Source) parse(w wirePayout) (reconcile.Payout, error) {
	id := strings.TrimSpace(w.ID)
	if id == "" {
		return reconcile.Payout{}, fmt.Errorf("id is required")
	}

	net, err := utils.ToDecimal(w.NetAmount)
	if err != nil {
		return reconcile.Payout{}, fmt.Errorf("%s: net_amount: %w", id, err)
	}
	date, err := utils.ToTime(w.PayoutDate)
	if err != nil {
		return reconcile.Payout{}, fmt.Errorf("%s: payout_date: %w", id, err)
	}

	fees, err := optionalDecimal(w.Fees, decimal.Zero)
	if err != nil {
		return reconcile.Payout{}, fmt.Errorf("%s: fees: %w", id, err)
	}
	gross, err := optionalDecimal(w.GrossAmount, net.Add(fees))
	if err != nil {
		return reconcile.Payout{}, fmt.Errorf("%s: gross_amount: %w", id, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(w.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}

	return reconcile.Payout{
		ID:          id,
		GrossAmount: gross,
		Fees:        fees,
		NetAmount:   net,
		PayoutDate:  date,
		Currency:    currency,
	}, nil
}

func optionalDecimal(raw json.RawMessage, fallback decimal.Decimal) (decimal.Decimal, error) {
	d, err := utils.ToDecimal(raw)
	if errors.Is(err, utils.ErrEmpty) {
		return fallback, nil
	}
	return d, err
}
