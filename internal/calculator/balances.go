package calculator

import (
	"github.com/shopspring/decimal"
)

// PaymentForSummary is the minimal view of a payment needed for a group summary.
type PaymentForSummary struct {
	Amount string
	Paid   bool
}

// GroupSummary describes how far a group is toward its total.
type GroupSummary struct {
	PaidCount   int
	UnpaidCount int
	Collected   string // Sum of paid amounts
	Outstanding string // Sum of unpaid amounts
}

// SummarizePayments aggregates paid and unpaid amounts across payments.
// Unparseable amounts are counted but contribute nothing to the sums.
//
// Algorithm:
// - paid payments add to Collected
// - unpaid payments add to Outstanding
// - both sums are rounded to 2 decimals once, at the end
func SummarizePayments(payments []PaymentForSummary) GroupSummary {
	collected := decimal.Zero
	outstanding := decimal.Zero
	var summary GroupSummary

	for _, p := range payments {
		amount, err := ParseAmount(p.Amount)
		if err != nil {
			amount = decimal.Zero
		}
		if p.Paid {
			summary.PaidCount++
			collected = collected.Add(amount)
		} else {
			summary.UnpaidCount++
			outstanding = outstanding.Add(amount)
		}
	}

	summary.Collected = Format(Round2(collected))
	summary.Outstanding = Format(Round2(outstanding))
	return summary
}
