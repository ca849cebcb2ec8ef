package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/singleflight"
)

const payoutIDPlaceholder = "{payout_id}"

// ReferenceRule maps payout ids to ledger references and back.
type ReferenceRule struct {
	prefix  string
	suffix  string
	pattern *regexp.Regexp
	group   int
}

// NewReferenceRule compiles a rule. template must contain {payout_id}
// exactly once. pattern is optional and, when set, must declare a named
// group payout_id.
func NewReferenceRule(template, pattern string) (*ReferenceRule, error) {
	if strings.Count(template, payoutIDPlaceholder) != 1 {
		return nil, fmt.Errorf("%w: reference_template %q must contain %s exactly once", ErrInvalidConfig, template, payoutIDPlaceholder)
	}
	prefix, suffix, _ := strings.Cut(template, payoutIDPlaceholder)
	rule := &ReferenceRule{prefix: prefix, suffix: suffix}

	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: reference_pattern: %v", ErrInvalidConfig, err)
		}
		group := re.SubexpIndex("payout_id")
		if group < 0 {
			return nil, fmt.Errorf("%w: reference_pattern must declare a named group payout_id", ErrInvalidConfig)
		}
		rule.pattern = re
		rule.group = group
	}
	return rule, nil
}

// Key returns the ledger reference expected for a payout.
func (r *ReferenceRule) Key(payoutID string) string {
	return r.prefix + payoutID + r.suffix
}

// PayoutID extracts the payout id from a ledger reference.
func (r *ReferenceRule) PayoutID(reference string) (string, bool) {
	if r.pattern != nil {
		m := r.pattern.FindStringSubmatch(reference)
		if m == nil || m[r.group] == "" {
			return "", false
		}
		return m[r.group], true
	}
	if len(reference) <= len(r.prefix)+len(r.suffix) ||
		!strings.HasPrefix(reference, r.prefix) || !strings.HasSuffix(reference, r.suffix) {
		return "", false
	}
	return reference[len(r.prefix) : len(reference)-len(r.suffix)], true
}

// CorrectionReference is the reference used for the correction entry of a
// payout with the given idempotency key.
func CorrectionReference(key string) string {
	return "ADJ-" + key
}

// LedgerSource is the accounting ledger.
type LedgerSource interface {
	// FindEntries returns every entry whose reference equals reference.
	FindEntries(ctx context.Context, reference string) ([]LedgerEntry, error)
	// CreateEntriesBatch posts entries in one call. Results are aligned with
	// entries by index.
	CreateEntriesBatch(ctx context.Context, entries []CorrectionEntry, idempotencyKey string) ([]EntryResult, error)
	// MaxBatchSize is the largest batch the ledger accepts.
	MaxBatchSize() int
}

// Matcher finds the ledger entry of a payout by exact reference lookup.
type Matcher struct {
	ledger  LedgerSource
	rule    *ReferenceRule
	backoff *Backoff
	lookups singleflight.Group
}

// NewMatcher creates a Matcher.
func NewMatcher(ledger LedgerSource, rule *ReferenceRule, backoff *Backoff) *Matcher {
	return &Matcher{ledger: ledger, rule: rule, backoff: backoff}
}

// Match returns the ledger entry of p, or nil when the ledger has none yet.
// More than one entry, or an entry whose reference does not resolve back to
// p, is a data integrity error.
func (m *Matcher) Match(ctx context.Context, p Payout) (*LedgerEntry, error) {
	key := m.rule.Key(p.ID)
	v, err, _ := m.lookups.Do(key, func() (any, error) {
		return Retry(ctx, m.backoff, Call{Op: "find_entries", Idempotent: true}, func(ctx context.Context) ([]LedgerEntry, error) {
			return m.ledger.FindEntries(ctx, key)
		})
	})
	if err != nil {
		return nil, err
	}
	entries := v.([]LedgerEntry)

	for _, e := range entries {
		id, ok := m.rule.PayoutID(e.Reference)
		if !ok {
			return nil, fmt.Errorf("%w: ledger entry %s has malformed reference %q", ErrDataIntegrity, e.ID, e.Reference)
		}
		if id != p.ID {
			return nil, fmt.Errorf("%w: ledger entry %s reference %q resolves to payout %s, not %s", ErrDataIntegrity, e.ID, e.Reference, id, p.ID)
		}
	}

	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
		e := entries[0]
		return &e, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return nil, fmt.Errorf("%w: %d ledger entries reference %q: %s", ErrDataIntegrity, len(entries), key, strings.Join(ids, ", "))
}
