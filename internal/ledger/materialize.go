package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/splitledger/splitledger/internal/models"
)

// ErrLinkClaimed is returned by RecurringStore.MaterializeRecurringExpense
// when the conditional claim update matched zero rows: another caller
// already materialized this occurrence. The loser stops without side
// effects; this is an expected race, not a failure.
var ErrLinkClaimed = errors.New("recurring link already claimed")

// RecurringStore is the slice of the storage layer the Materializer needs.
// MaterializeRecurringExpense must, inside a single transaction, create the
// expense, create its follow-on link, and set the claimed link's
// next-expense-created-at timestamp only if it is still unset, returning
// ErrLinkClaimed when that conditional update matches nothing.
type RecurringStore interface {
	ListDueRecurringLinks(ctx context.Context, groupID string, now time.Time) ([]*models.RecurringLink, error)
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)
	MaterializeRecurringExpense(ctx context.Context, expense *models.Expense, newLink *models.RecurringLink, claimLinkID string, claimedAt time.Time) error
}

var (
	materializedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_recurring_expenses_materialized_total",
		Help: "Recurring expense instances created by catch-up materialization.",
	})
	claimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_recurring_claim_conflicts_total",
		Help: "Materialization attempts that lost the claim race to a concurrent caller.",
	})
	materializeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_recurring_materialize_failures_total",
		Help: "Materialization transactions aborted by storage errors.",
	})
)

// Materializer turns overdue recurrences into concrete dated expenses.
// It runs opportunistically on the read path — callers invoke CatchUp for a
// group before listing expenses or computing balances — and relies on the
// store's conditional claim update for mutual exclusion, so any number of
// concurrent callers is safe: exactly one wins each occurrence, the rest
// abort harmlessly.
type Materializer struct {
	store RecurringStore
}

// NewMaterializer creates a Materializer over the given store.
func NewMaterializer(store RecurringStore) *Materializer {
	return &Materializer{store: store}
}

// CatchUp materializes every missed occurrence for every due recurring link
// in the group, as of now. It is best-effort by design: a failure on one
// link aborts that link's catch-up loop, is logged, and never surfaces to
// the caller — the read that triggered it must still succeed with whatever
// expense data exists.
func (m *Materializer) CatchUp(ctx context.Context, groupID string, now time.Time) {
	now = now.UTC().Truncate(time.Minute)

	links, err := m.store.ListDueRecurringLinks(ctx, groupID, now)
	if err != nil {
		slog.Warn("CatchUp: failed to list due recurring links", "group_id", groupID, "error", err)
		return
	}

	for _, link := range links {
		m.catchUpLink(ctx, link, now)
	}
}

// catchUpLink walks one link's chain forward until the next occurrence lies
// in the future, creating one expense + link pair per missed occurrence.
func (m *Materializer) catchUpLink(ctx context.Context, link *models.RecurringLink, now time.Time) {
	template, err := m.store.GetExpense(ctx, link.ExpenseID)
	if err != nil {
		slog.Warn("CatchUp: failed to load template expense", "link_id", link.ID, "expense_id", link.ExpenseID, "error", err)
		materializeFailuresTotal.Inc()
		return
	}

	cursor := link.NextExpenseDate.UTC()
	for cursor.Before(now) {
		next, err := NextDate(template.Recurrence, cursor)
		if err != nil {
			slog.Warn("CatchUp: cannot project next date", "link_id", link.ID, "rule", template.Recurrence, "error", err)
			materializeFailuresTotal.Inc()
			return
		}

		clone := cloneExpense(template, cursor)
		newLink := &models.RecurringLink{
			GroupID:         link.GroupID,
			NextExpenseDate: next,
		}

		err = m.store.MaterializeRecurringExpense(ctx, clone, newLink, link.ID, now)
		if errors.Is(err, ErrLinkClaimed) {
			// Another caller won this occurrence; stop without retrying.
			slog.Debug("CatchUp: link already claimed", "link_id", link.ID)
			claimConflictsTotal.Inc()
			return
		}
		if err != nil {
			slog.Warn("CatchUp: materialization failed", "link_id", link.ID, "error", err)
			materializeFailuresTotal.Inc()
			return
		}

		materializedTotal.Inc()
		slog.Info("Materialized recurring expense",
			"group_id", link.GroupID,
			"expense_id", clone.ID,
			"date", cursor.Format(time.RFC3339),
			"next", next.Format(time.RFC3339),
		)

		// The chain advances: the clone is the new template and its link
		// is the next claim target.
		template = clone
		link = newLink
		cursor = next
	}
}

// cloneExpense copies the template's split configuration onto a new expense
// dated at the given occurrence. The store assigns the new ID.
func cloneExpense(template *models.Expense, date time.Time) *models.Expense {
	clone := &models.Expense{
		GroupID:         template.GroupID,
		Title:           template.Title,
		Category:        template.Category,
		Date:            date,
		Amount:          template.Amount,
		SplitMode:       template.SplitMode,
		IsReimbursement: template.IsReimbursement,
		PaidBy:          make([]models.Payment, len(template.PaidBy)),
		PaidFor:         make([]models.Share, len(template.PaidFor)),
		Recurrence:      template.Recurrence,
		Notes:           template.Notes,
	}
	copy(clone.PaidBy, template.PaidBy)
	copy(clone.PaidFor, template.PaidFor)
	return clone
}
