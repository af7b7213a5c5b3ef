package ledger

import (
	"sort"
)

// Reimbursement is a suggested payment from a net-negative participant to a
// net-positive one. Applying every suggested reimbursement as a credit to
// From and a debit to To drives all nets to zero, within the tolerance
// accumulated from per-expense rounding.
type Reimbursement struct {
	// From is the participant who should pay.
	From string

	// To is the participant who should be paid.
	To string

	// Amount is the suggested payment in minor units, always > 0.
	Amount int64
}

// settleEpsilon is the tolerance below which a balance counts as settled:
// one minor unit, so nobody is asked to transfer a single cent.
const settleEpsilon int64 = 1

// Settlements plans a small set of point-to-point payments that zero out
// the given balance map. Only Net is consulted. The plan is deterministic:
// the same balances always produce the same ordered list.
//
// The heuristic runs in two phases. An exact-match pass first pairs any two
// participants whose nets cancel exactly, so a clean one-to-one debt is
// never fragmented across several partial payments. A greedy two-pointer
// pass then walks the remaining entries, positives ordered before
// non-positives, repeatedly paying the head creditor from the tail debtor
// until everyone is exhausted. The result is near-optimal, not guaranteed
// minimal (true minimality is a partition problem and out of scope).
func Settlements(balances map[string]Balance) []Reimbursement {
	type entry struct {
		id    string
		total int64
	}

	// Deterministic base order: ascending participant id.
	all := make([]*entry, 0, len(balances))
	for id, b := range balances {
		all = append(all, &entry{id: id, total: b.Net})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })

	// Drop anyone already settled.
	entries := all[:0]
	for _, e := range all {
		if abs64(e.total) > settleEpsilon {
			entries = append(entries, e)
		}
	}

	var plan []Reimbursement

	// Exact-match pass: first-match-wins scan for pairs whose totals
	// cancel. O(n²), fine for the small groups this serves.
	settled := make([]bool, len(entries))
	for i := 0; i < len(entries); i++ {
		if settled[i] {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if settled[j] {
				continue
			}
			if abs64(entries[i].total+entries[j].total) > settleEpsilon {
				continue
			}
			creditor, debtor := entries[i], entries[j]
			if creditor.total < 0 {
				creditor, debtor = debtor, creditor
			}
			plan = append(plan, Reimbursement{
				From:   debtor.id,
				To:     creditor.id,
				Amount: creditor.total,
			})
			settled[i], settled[j] = true, true
			break
		}
	}

	// Greedy pass over whoever is left: positives ahead of non-positives,
	// otherwise keeping the id order. Not a sort by magnitude.
	var work []*entry
	for i, e := range entries {
		if !settled[i] {
			work = append(work, e)
		}
	}
	sort.SliceStable(work, func(i, j int) bool {
		return work[i].total > 0 && work[j].total <= 0
	})

	for len(work) > 1 {
		first, last := work[0], work[len(work)-1]
		if abs64(first.total) <= settleEpsilon {
			work = work[1:]
			continue
		}
		if abs64(last.total) <= settleEpsilon {
			work = work[:len(work)-1]
			continue
		}
		if first.total > -last.total {
			// Creditor needs more than the tail debtor owes: drain the
			// debtor entirely and keep the creditor at the head.
			plan = append(plan, Reimbursement{From: last.id, To: first.id, Amount: -last.total})
			first.total += last.total
			work = work[:len(work)-1]
		} else {
			// Debtor covers the creditor (possibly exactly): satisfy the
			// creditor and drop them.
			plan = append(plan, Reimbursement{From: last.id, To: first.id, Amount: first.total})
			last.total += first.total
			work = work[1:]
		}
	}

	// Rounding can produce zero-amount suggestions; nobody should see those.
	filtered := plan[:0]
	for _, r := range plan {
		if r.Amount != 0 {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
