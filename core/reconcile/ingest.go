package reconcile

import (
	"context"
	"fmt"
)

// Page is one page of payouts returned by a PayoutSource.
type Page struct {
	Payouts []Payout
	// NextCursor is empty on the last page.
	NextCursor string
}

// PayoutSource reads payouts from the payment processor.
type PayoutSource interface {
	// FetchPage returns the page starting at cursor. The empty cursor
	// selects the first page.
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// PayoutStream walks a PayoutSource one page at a time, holding at most one
// page in memory. It follows the bufio.Scanner shape:
//
//	stream := NewPayoutStream(source, backoff, "")
//	for stream.Next(ctx) {
//	    p := stream.Payout()
//	}
//	if err := stream.Err(); err != nil { ... }
type PayoutStream struct {
	source  PayoutSource
	backoff *Backoff

	next    string // cursor of the page to fetch next
	cursor  string // cursor of the page in buf
	buf     []Payout
	pos     int
	started bool
	current Payout
	err     error
	pages   int
}

// NewPayoutStream starts a stream at cursor. Pass the empty cursor to start
// from the beginning or a value from Cursor to resume.
func NewPayoutStream(source PayoutSource, backoff *Backoff, cursor string) *PayoutStream {
	return &PayoutStream{source: source, backoff: backoff, next: cursor}
}

// Next advances to the next payout, fetching pages as needed. Empty pages
// that are not the last are skipped.
func (s *PayoutStream) Next(ctx context.Context) bool {
	for {
		if s.err != nil {
			return false
		}
		if s.pos < len(s.buf) {
			s.current = s.buf[s.pos]
			s.pos++
			return true
		}
		if s.started && s.next == "" {
			return false
		}

		cursor := s.next
		page, err := Retry(ctx, s.backoff, Call{Op: "fetch_payouts", Idempotent: true}, func(ctx context.Context) (Page, error) {
			return s.source.FetchPage(ctx, cursor)
		})
		if err != nil {
			s.err = fmt.Errorf("fetch payouts at cursor %q: %w", cursor, err)
			return false
		}
		if page.NextCursor != "" && page.NextCursor == cursor {
			s.err = fmt.Errorf("%w: payout cursor %q did not advance", ErrDataIntegrity, cursor)
			return false
		}

		s.started = true
		s.cursor = cursor
		s.next = page.NextCursor
		s.buf = page.Payouts
		s.pos = 0
		s.pages++
	}
}

// Payout returns the payout read by the last successful Next.
func (s *PayoutStream) Payout() Payout {
	return s.current
}

// Err returns the error that stopped the stream, if any.
func (s *PayoutStream) Err() error {
	return s.err
}

// Cursor returns the cursor of the page holding the last payout returned
// by Next. Resuming from it replays that page, so no payout is lost.
func (s *PayoutStream) Cursor() string {
	return s.cursor
}

// Pages returns how many pages have been fetched.
func (s *PayoutStream) Pages() int {
	return s.pages
}
