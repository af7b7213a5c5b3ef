package ledger

import (
	"fmt"

	"github.com/splitledger/splitledger/internal/models"
)

// Balance is one participant's position across a group's expense history.
// All fields are minor-unit integers; a negative-zero can never appear.
type Balance struct {
	// Paid is the total this participant paid across all expenses.
	Paid int64

	// Owed is the total of this participant's shares across all expenses.
	Owed int64

	// Net is Paid − Owed. Positive means the group owes them, negative
	// means they owe the group.
	Net int64
}

// Balances aggregates the full expense history of a group into a per-
// participant balance map. Callers must have materialized any overdue
// recurring expenses first so the history is current.
//
// Reimbursement-flagged expenses participate exactly like any other
// expense: the payment shows up as paid for the payer and owed for the
// recipient, which is what nets the pair's balances toward zero.
//
// Single linear pass over all payer and share rows.
func Balances(expenses []*models.Expense) (map[string]Balance, error) {
	balances := make(map[string]Balance)

	for _, expense := range expenses {
		for _, payment := range expense.PaidBy {
			b := balances[payment.ParticipantID]
			b.Paid += payment.Amount
			balances[payment.ParticipantID] = b
		}

		owed, err := Shares(expense)
		if err != nil {
			return nil, fmt.Errorf("aggregate expense %s: %w", expense.ID, err)
		}
		for participantID, amount := range owed {
			b := balances[participantID]
			b.Owed += amount
			balances[participantID] = b
		}
	}

	for participantID, b := range balances {
		b.Net = b.Paid - b.Owed
		balances[participantID] = b
	}
	return balances, nil
}
