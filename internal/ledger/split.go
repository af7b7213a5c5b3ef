// Package ledger implements the shared-expense computation engine: share
// allocation, balance aggregation, settlement planning, recurrence date
// projection, and recurring-expense materialization. The four computation
// pieces are pure functions taking all context as explicit arguments, safe
// to call concurrently with no locking; the Materializer is the only part
// that performs I/O.
package ledger

import (
	"fmt"

	"github.com/splitledger/splitledger/internal/models"
)

// Shares computes how much each beneficiary owes for one expense, in minor
// units, keyed by participant id. One entry is produced per PaidFor row.
//
// All four split modes use the same formula: each row owes
// round(amount × weight / totalWeight), rounded half away from zero,
// with the weight read according to the expense's split mode (EVENLY rows
// weigh 1 regardless of their stored weight).
//
// Rounding is applied independently per row. No remainder redistribution is
// performed, so the owed amounts can sum to less than the expense amount by
// up to n−1 minor units when the weights do not divide it exactly. Balance
// consumers tolerate that drift; do not compensate for it here, since doing
// so would change observable settlement amounts.
func Shares(expense *models.Expense) (map[string]int64, error) {
	if len(expense.PaidFor) == 0 {
		return nil, fmt.Errorf("expense %s has no beneficiaries", expense.ID)
	}

	var totalWeight int64
	weights := make([]int64, len(expense.PaidFor))
	for i, share := range expense.PaidFor {
		w := share.Weight
		if expense.SplitMode == models.SplitEvenly {
			w = 1
		}
		weights[i] = w
		totalWeight += w
	}
	if totalWeight == 0 {
		return nil, fmt.Errorf("expense %s has zero total weight", expense.ID)
	}

	owed := make(map[string]int64, len(expense.PaidFor))
	for i, share := range expense.PaidFor {
		owed[share.ParticipantID] = roundDiv(expense.Amount*weights[i], totalWeight)
	}
	return owed, nil
}

// roundDiv divides num by den rounding half away from zero (ties round to
// the larger magnitude). Integer arithmetic throughout so results are exact
// and deterministic.
func roundDiv(num, den int64) int64 {
	if den < 0 {
		num, den = -num, -den
	}
	q := num / den
	r := num % den
	if r < 0 {
		r = -r
	}
	if 2*r >= den {
		if num < 0 {
			return q - 1
		}
		return q + 1
	}
	return q
}
