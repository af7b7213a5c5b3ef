package models

import (
	"fmt"
	"time"
)

// SplitMode determines how an expense's amount is divided among the
// beneficiaries in PaidFor. The meaning of Share.Weight depends on it.
type SplitMode string

const (
	// SplitEvenly divides the amount equally; every share carries an
	// implicit weight of 1 and any explicit weight is ignored.
	SplitEvenly SplitMode = "EVENLY"

	// SplitByShares divides proportionally to an arbitrary positive
	// integer share count per beneficiary.
	SplitByShares SplitMode = "BY_SHARES"

	// SplitByPercentage divides by basis points (10000 = 100%).
	SplitByPercentage SplitMode = "BY_PERCENTAGE"

	// SplitByAmount treats each weight as that beneficiary's owed amount
	// in minor units. Callers normally make the weights sum to the
	// expense amount; the engine does not assume they do.
	SplitByAmount SplitMode = "BY_AMOUNT"
)

// ParseSplitMode converts a stored or client-supplied string into a
// SplitMode, rejecting unknown values.
func ParseSplitMode(s string) (SplitMode, error) {
	switch SplitMode(s) {
	case SplitEvenly, SplitByShares, SplitByPercentage, SplitByAmount:
		return SplitMode(s), nil
	}
	return "", fmt.Errorf("unknown split mode: %q", s)
}

// RecurrenceRule is the schedule on which a recurring expense repeats.
type RecurrenceRule string

const (
	RecurrenceNone    RecurrenceRule = "NONE"
	RecurrenceDaily   RecurrenceRule = "DAILY"
	RecurrenceWeekly  RecurrenceRule = "WEEKLY"
	RecurrenceMonthly RecurrenceRule = "MONTHLY"
)

// ParseRecurrenceRule converts a stored or client-supplied string into a
// RecurrenceRule. The empty string means no recurrence.
func ParseRecurrenceRule(s string) (RecurrenceRule, error) {
	if s == "" {
		return RecurrenceNone, nil
	}
	switch RecurrenceRule(s) {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return RecurrenceRule(s), nil
	}
	return "", fmt.Errorf("unknown recurrence rule: %q", s)
}

// Payment records one payer's contribution to an expense. An expense may
// have several simultaneous payers.
type Payment struct {
	// ParticipantID is the group member who paid.
	ParticipantID string

	// Amount is how much they paid, in minor units.
	Amount int64
}

// Share records one beneficiary of an expense together with their
// allocation weight. How the weight is read depends on the expense's
// SplitMode (count for BY_SHARES, basis points for BY_PERCENTAGE, minor
// units for BY_AMOUNT, ignored for EVENLY).
type Share struct {
	// ParticipantID is the group member who owes part of the expense.
	ParticipantID string

	// Weight is the proportional allocation key for this beneficiary.
	Weight int64
}

// Expense represents one shared expense in a group's history.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group this expense belongs to.
	GroupID string

	// Title is the human-readable name of the expense.
	Title string

	// Category is a free-form label (e.g., "Groceries"). Informational.
	Category string

	// Date is when the expense occurred, in UTC.
	Date time.Time

	// Amount is the total expense amount in minor units.
	Amount int64

	// SplitMode selects how Amount is divided across PaidFor.
	SplitMode SplitMode

	// IsReimbursement marks a recorded payment between members. It is
	// informational for display; balance aggregation treats flagged
	// expenses exactly like any other.
	IsReimbursement bool

	// PaidBy lists who paid, in order. Never empty for a valid expense.
	PaidBy []Payment

	// PaidFor lists who owes, in order. Never empty for a valid expense.
	PaidFor []Share

	// Recurrence is the repeat schedule, RecurrenceNone for one-off
	// expenses.
	Recurrence RecurrenceRule

	// RecurringLinkID points at the RecurringLink that schedules this
	// expense's next occurrence. Empty for non-recurring expenses.
	RecurringLinkID string

	// Notes is an optional free-form description.
	Notes string

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64
}

// RecurringLink schedules the next occurrence of a recurring expense.
// Each materialized clone owns a fresh link pointing at the occurrence
// after it, so the links form a forward chain through time.
type RecurringLink struct {
	// ID is the unique identifier for the link (UUID format).
	ID string

	// GroupID is the group the chain belongs to.
	GroupID string

	// ExpenseID is the template expense this link was attached to.
	ExpenseID string

	// NextExpenseDate is the date the next clone should carry.
	NextExpenseDate time.Time

	// NextExpenseCreatedAt is the claim token: nil means the next
	// occurrence has not been materialized yet, non-nil means some
	// caller already claimed it. Set at most once, via conditional
	// update.
	NextExpenseCreatedAt *time.Time
}
