package reconcile

import "github.com/shopspring/decimal"

// Variance is the result of comparing a payout with its ledger entry.
type Variance struct {
	Status Status
	Amount decimal.Decimal
	Kind   VarianceKind
}

// CalculateVariance compares the ledger amount with the payout net amount.
// A difference within tolerance is a match and is recorded as zero.
func CalculateVariance(p Payout, e LedgerEntry, tolerance decimal.Decimal) Variance {
	diff := e.Amount.Sub(p.NetAmount)
	if diff.Abs().LessThanOrEqual(tolerance) {
		return Variance{Status: StatusMatched, Amount: decimal.Zero}
	}
	return Variance{Status: StatusVariance, Amount: diff, Kind: classifyVariance(p, e, diff, tolerance)}
}

func classifyVariance(p Payout, e LedgerEntry, diff, tolerance decimal.Decimal) VarianceKind {
	if !p.GrossAmount.IsZero() && !p.GrossAmount.Equal(p.NetAmount) &&
		e.Amount.Sub(p.GrossAmount).Abs().LessThanOrEqual(tolerance) {
		return VarianceGrossRecorded
	}
	if !p.Fees.IsZero() && diff.Abs().LessThanOrEqual(p.Fees.Abs().Add(tolerance)) {
		return VarianceFeeMismatch
	}
	return VarianceOther
}
