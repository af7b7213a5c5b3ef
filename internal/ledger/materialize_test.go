package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/splitledger/splitledger/internal/models"
)

// fakeRecurringStore is an in-memory RecurringStore with the same claim
// semantics as the real store: the conditional update succeeds at most once
// per link, under a lock standing in for transaction isolation.
type fakeRecurringStore struct {
	mu       sync.Mutex
	nextID   int
	expenses map[string]*models.Expense
	links    map[string]*models.RecurringLink
	failNext bool
}

func newFakeRecurringStore() *fakeRecurringStore {
	return &fakeRecurringStore{
		expenses: make(map[string]*models.Expense),
		links:    make(map[string]*models.RecurringLink),
	}
}

func (f *fakeRecurringStore) seed(expense *models.Expense, link *models.RecurringLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	expense.RecurringLinkID = link.ID
	link.ExpenseID = expense.ID
	f.expenses[expense.ID] = expense
	f.links[link.ID] = link
}

func (f *fakeRecurringStore) ListDueRecurringLinks(_ context.Context, groupID string, now time.Time) ([]*models.RecurringLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*models.RecurringLink
	for _, link := range f.links {
		if link.GroupID == groupID && link.NextExpenseCreatedAt == nil && !link.NextExpenseDate.After(now) {
			cp := *link
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (f *fakeRecurringStore) GetExpense(_ context.Context, expenseID string) (*models.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	expense, ok := f.expenses[expenseID]
	if !ok {
		return nil, fmt.Errorf("expense not found: %s", expenseID)
	}
	cp := *expense
	return &cp, nil
}

func (f *fakeRecurringStore) MaterializeRecurringExpense(_ context.Context, expense *models.Expense, newLink *models.RecurringLink, claimLinkID string, claimedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext {
		f.failNext = false
		return errors.New("storage unavailable")
	}

	claimed, ok := f.links[claimLinkID]
	if !ok {
		return fmt.Errorf("link not found: %s", claimLinkID)
	}
	if claimed.NextExpenseCreatedAt != nil {
		return ErrLinkClaimed
	}

	f.nextID++
	expense.ID = fmt.Sprintf("exp-%d", f.nextID)
	newLink.ID = fmt.Sprintf("link-%d", f.nextID)
	newLink.ExpenseID = expense.ID
	expense.RecurringLinkID = newLink.ID

	expenseCopy := *expense
	linkCopy := *newLink
	f.expenses[expenseCopy.ID] = &expenseCopy
	f.links[linkCopy.ID] = &linkCopy

	at := claimedAt
	claimed.NextExpenseCreatedAt = &at
	return nil
}

func (f *fakeRecurringStore) expenseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.expenses)
}

func seedDailyTemplate(store *fakeRecurringStore, firstDue time.Time) {
	template := &models.Expense{
		ID:        "exp-template",
		GroupID:   "g1",
		Title:     "Rent",
		Amount:    120000,
		SplitMode: models.SplitEvenly,
		PaidBy:    []models.Payment{{ParticipantID: "alice", Amount: 120000}},
		PaidFor: []models.Share{
			{ParticipantID: "alice", Weight: 1},
			{ParticipantID: "bob", Weight: 1},
		},
		Recurrence: models.RecurrenceDaily,
	}
	link := &models.RecurringLink{
		ID:              "link-template",
		GroupID:         "g1",
		NextExpenseDate: firstDue,
	}
	store.seed(template, link)
}

func TestMaterializerCatchesUpMissedOccurrences(t *testing.T) {
	store := newFakeRecurringStore()
	firstDue := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	seedDailyTemplate(store, firstDue)

	now := time.Date(2025, time.May, 4, 0, 0, 0, 0, time.UTC)
	NewMaterializer(store).CatchUp(context.Background(), "g1", now)

	// Three missed days: May 1, 2, 3. May 4 is not yet due (cursor == now).
	if got := store.expenseCount(); got != 4 {
		t.Fatalf("expense count = %d, want 4 (template + 3 clones)", got)
	}

	// Every clone carries the template's split configuration and its own
	// forward link; exactly one link remains unclaimed, dated in the future.
	var unclaimed []*models.RecurringLink
	for _, link := range store.links {
		if link.NextExpenseCreatedAt == nil {
			unclaimed = append(unclaimed, link)
		}
	}
	if len(unclaimed) != 1 {
		t.Fatalf("unclaimed links = %d, want 1", len(unclaimed))
	}
	if !unclaimed[0].NextExpenseDate.Equal(now) {
		t.Errorf("tail link date = %v, want %v", unclaimed[0].NextExpenseDate, now)
	}

	for id, expense := range store.expenses {
		if id == "exp-template" {
			continue
		}
		if expense.Amount != 120000 || len(expense.PaidBy) != 1 || len(expense.PaidFor) != 2 {
			t.Errorf("clone %s lost the template configuration: %+v", id, expense)
		}
		if expense.RecurringLinkID == "" {
			t.Errorf("clone %s has no forward link", id)
		}
	}
}

func TestMaterializerIsIdempotent(t *testing.T) {
	store := newFakeRecurringStore()
	firstDue := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	seedDailyTemplate(store, firstDue)

	now := time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC)
	m := NewMaterializer(store)
	m.CatchUp(context.Background(), "g1", now)
	first := store.expenseCount()

	m.CatchUp(context.Background(), "g1", now)
	if got := store.expenseCount(); got != first {
		t.Fatalf("second catch-up created expenses: %d -> %d", first, got)
	}
}

func TestMaterializerConcurrentCallersCreateExactlyOnce(t *testing.T) {
	store := newFakeRecurringStore()
	firstDue := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	seedDailyTemplate(store, firstDue)

	now := time.Date(2025, time.May, 4, 0, 0, 0, 0, time.UTC)
	m := NewMaterializer(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.CatchUp(context.Background(), "g1", now)
		}()
	}
	wg.Wait()

	if got := store.expenseCount(); got != 4 {
		t.Fatalf("expense count = %d, want 4: concurrent callers must not duplicate occurrences", got)
	}
}

func TestMaterializerAbortsLinkOnStorageFailure(t *testing.T) {
	store := newFakeRecurringStore()
	firstDue := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	seedDailyTemplate(store, firstDue)
	store.failNext = true

	now := time.Date(2025, time.May, 4, 0, 0, 0, 0, time.UTC)
	m := NewMaterializer(store)

	// First pass hits the injected failure on the first occurrence and
	// aborts without creating anything or surfacing an error.
	m.CatchUp(context.Background(), "g1", now)
	if got := store.expenseCount(); got != 1 {
		t.Fatalf("expense count after failure = %d, want 1", got)
	}

	// The next invocation finds the link unclaimed and catches up fully.
	m.CatchUp(context.Background(), "g1", now)
	if got := store.expenseCount(); got != 4 {
		t.Fatalf("expense count after retry pass = %d, want 4", got)
	}
}
