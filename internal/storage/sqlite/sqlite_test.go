package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "splitledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Roommates", Members: []string{"alice", "bob"}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if group.ID == "" {
		t.Fatal("Expected group ID to be generated")
	}

	t.Run("GetGroup retrieves members in order", func(t *testing.T) {
		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != "Roommates" || got.Currency != "USD" {
			t.Errorf("unexpected group: %+v", got)
		}
		if len(got.Members) != 2 || got.Members[0] != "alice" || got.Members[1] != "bob" {
			t.Errorf("unexpected members: %v", got.Members)
		}
	})

	t.Run("AddGroupMembers skips duplicates", func(t *testing.T) {
		if err := store.AddGroupMembers(ctx, group.ID, []string{"bob", "carol"}); err != nil {
			t.Fatalf("AddGroupMembers failed: %v", err)
		}
		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if len(got.Members) != 3 || got.Members[2] != "carol" {
			t.Errorf("unexpected members: %v", got.Members)
		}
	})

	t.Run("CreateExpense round-trips payers and shares", func(t *testing.T) {
		expense := &models.Expense{
			GroupID:   group.ID,
			Title:     "Groceries",
			Date:      time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
			Amount:    4200,
			SplitMode: models.SplitByShares,
			PaidBy: []models.Payment{
				{ParticipantID: "alice", Amount: 4000},
				{ParticipantID: "bob", Amount: 200},
			},
			PaidFor: []models.Share{
				{ParticipantID: "alice", Weight: 1},
				{ParticipantID: "bob", Weight: 2},
			},
		}
		if err := store.CreateExpense(ctx, expense); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		if expense.ID == "" || expense.CreatedAt == 0 {
			t.Fatal("Expected ID and CreatedAt to be generated")
		}

		got, err := store.GetExpense(ctx, expense.ID)
		if err != nil {
			t.Fatalf("GetExpense failed: %v", err)
		}
		if got.Title != "Groceries" || got.Amount != 4200 || got.SplitMode != models.SplitByShares {
			t.Errorf("unexpected expense: %+v", got)
		}
		if !got.Date.Equal(expense.Date) {
			t.Errorf("date = %v, want %v", got.Date, expense.Date)
		}
		if len(got.PaidBy) != 2 || got.PaidBy[0].ParticipantID != "alice" || got.PaidBy[1].Amount != 200 {
			t.Errorf("unexpected payers: %v", got.PaidBy)
		}
		if len(got.PaidFor) != 2 || got.PaidFor[1].Weight != 2 {
			t.Errorf("unexpected shares: %v", got.PaidFor)
		}
	})

	t.Run("UpdateExpense replaces rows", func(t *testing.T) {
		expense := &models.Expense{
			GroupID:   group.ID,
			Title:     "Dinner",
			Date:      time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
			Amount:    3000,
			SplitMode: models.SplitEvenly,
			PaidBy:    []models.Payment{{ParticipantID: "alice", Amount: 3000}},
			PaidFor: []models.Share{
				{ParticipantID: "alice", Weight: 1},
				{ParticipantID: "bob", Weight: 1},
			},
		}
		if err := store.CreateExpense(ctx, expense); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		expense.Title = "Dinner out"
		expense.Amount = 3600
		expense.PaidFor = append(expense.PaidFor, models.Share{ParticipantID: "carol", Weight: 1})
		if err := store.UpdateExpense(ctx, expense); err != nil {
			t.Fatalf("UpdateExpense failed: %v", err)
		}

		got, err := store.GetExpense(ctx, expense.ID)
		if err != nil {
			t.Fatalf("GetExpense failed: %v", err)
		}
		if got.Title != "Dinner out" || got.Amount != 3600 || len(got.PaidFor) != 3 {
			t.Errorf("update not applied: %+v", got)
		}
	})

	t.Run("DeleteExpense removes history entry", func(t *testing.T) {
		expense := &models.Expense{
			GroupID:   group.ID,
			Title:     "Mistake",
			Date:      time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC),
			Amount:    100,
			SplitMode: models.SplitEvenly,
			PaidBy:    []models.Payment{{ParticipantID: "bob", Amount: 100}},
			PaidFor:   []models.Share{{ParticipantID: "bob", Weight: 1}},
		}
		if err := store.CreateExpense(ctx, expense); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		if err := store.DeleteExpense(ctx, expense.ID); err != nil {
			t.Fatalf("DeleteExpense failed: %v", err)
		}
		if _, err := store.GetExpense(ctx, expense.ID); err == nil {
			t.Fatal("expected deleted expense to be gone")
		}
		if err := store.DeleteExpense(ctx, expense.ID); err == nil {
			t.Fatal("expected error deleting a missing expense")
		}
	})

	t.Run("ListExpensesByGroup orders newest first", func(t *testing.T) {
		expenses, err := store.ListExpensesByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListExpensesByGroup failed: %v", err)
		}
		if len(expenses) < 2 {
			t.Fatalf("expected at least 2 expenses, got %d", len(expenses))
		}
		for i := 1; i < len(expenses); i++ {
			if expenses[i].Date.After(expenses[i-1].Date) {
				t.Errorf("expenses out of order at %d: %v after %v", i, expenses[i].Date, expenses[i-1].Date)
			}
		}
	})

	t.Run("Users round-trip and missing users return nil", func(t *testing.T) {
		user := models.NewUser("alice@example.com", "Alice", "hash")
		if err := store.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		byEmail, err := store.GetUserByEmail(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("GetUserByEmail failed: %v", err)
		}
		if byEmail == nil || byEmail.ID != user.ID {
			t.Errorf("unexpected user: %+v", byEmail)
		}
		missing, err := store.GetUserByID(ctx, "nope")
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if missing != nil {
			t.Errorf("expected nil for missing user, got %+v", missing)
		}
	})
}

func TestSQLiteStoreRecurring(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Flat", Members: []string{"alice", "bob"}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	template := &models.Expense{
		GroupID:    group.ID,
		Title:      "Rent",
		Date:       time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		Amount:     120000,
		SplitMode:  models.SplitEvenly,
		Recurrence: models.RecurrenceMonthly,
		PaidBy:     []models.Payment{{ParticipantID: "alice", Amount: 120000}},
		PaidFor: []models.Share{
			{ParticipantID: "alice", Weight: 1},
			{ParticipantID: "bob", Weight: 1},
		},
	}
	if err := store.CreateExpense(ctx, template); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if template.RecurringLinkID == "" {
		t.Fatal("expected a recurring link to be created with the expense")
	}

	t.Run("initial link is scheduled one period out", func(t *testing.T) {
		links, err := store.ListDueRecurringLinks(ctx, group.ID, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("ListDueRecurringLinks failed: %v", err)
		}
		if len(links) != 1 {
			t.Fatalf("due links = %d, want 1", len(links))
		}
		want := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
		if !links[0].NextExpenseDate.Equal(want) {
			t.Errorf("next date = %v, want %v", links[0].NextExpenseDate, want)
		}
		if links[0].ExpenseID != template.ID {
			t.Errorf("link expense = %s, want %s", links[0].ExpenseID, template.ID)
		}
	})

	t.Run("link is not due before its date", func(t *testing.T) {
		links, err := store.ListDueRecurringLinks(ctx, group.ID, time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("ListDueRecurringLinks failed: %v", err)
		}
		if len(links) != 0 {
			t.Fatalf("due links = %d, want 0", len(links))
		}
	})

	t.Run("claim succeeds once and only once", func(t *testing.T) {
		now := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

		clone := &models.Expense{
			GroupID:   group.ID,
			Title:     template.Title,
			Date:      time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
			Amount:    template.Amount,
			SplitMode: template.SplitMode,
			PaidBy:    template.PaidBy,
			PaidFor:   template.PaidFor,
			Recurrence: template.Recurrence,
		}
		newLink := &models.RecurringLink{
			GroupID:         group.ID,
			NextExpenseDate: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		}

		err := store.MaterializeRecurringExpense(ctx, clone, newLink, template.RecurringLinkID, now)
		if err != nil {
			t.Fatalf("MaterializeRecurringExpense failed: %v", err)
		}
		if clone.ID == "" || newLink.ID == "" {
			t.Fatal("expected clone and link IDs to be generated")
		}
		if clone.RecurringLinkID != newLink.ID || newLink.ExpenseID != clone.ID {
			t.Errorf("clone/link not cross-wired: %+v %+v", clone, newLink)
		}

		// Second claim of the same link must lose and leave no trace.
		loser := &models.Expense{
			GroupID:   group.ID,
			Title:     template.Title,
			Date:      clone.Date,
			Amount:    template.Amount,
			SplitMode: template.SplitMode,
			PaidBy:    template.PaidBy,
			PaidFor:   template.PaidFor,
		}
		loserLink := &models.RecurringLink{GroupID: group.ID, NextExpenseDate: newLink.NextExpenseDate}
		err = store.MaterializeRecurringExpense(ctx, loser, loserLink, template.RecurringLinkID, now)
		if !errors.Is(err, ledger.ErrLinkClaimed) {
			t.Fatalf("expected ErrLinkClaimed, got %v", err)
		}
		if _, err := store.GetExpense(ctx, loser.ID); err == nil {
			t.Fatal("losing transaction must not persist its expense")
		}

		expenses, err := store.ListExpensesByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListExpensesByGroup failed: %v", err)
		}
		if len(expenses) != 2 {
			t.Fatalf("expense count = %d, want 2 (template + one clone)", len(expenses))
		}

		// The claimed link is no longer due; the follow-on link is.
		links, err := store.ListDueRecurringLinks(ctx, group.ID, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("ListDueRecurringLinks failed: %v", err)
		}
		if len(links) != 1 || links[0].ID != newLink.ID {
			t.Fatalf("expected only the follow-on link to be due, got %+v", links)
		}
	})
}

func TestSQLiteStoreMaterializerEndToEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Flat", Members: []string{"alice", "bob"}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	template := &models.Expense{
		GroupID:    group.ID,
		Title:      "Coffee run",
		Date:       time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		Amount:     900,
		SplitMode:  models.SplitEvenly,
		Recurrence: models.RecurrenceDaily,
		PaidBy:     []models.Payment{{ParticipantID: "alice", Amount: 900}},
		PaidFor: []models.Share{
			{ParticipantID: "alice", Weight: 1},
			{ParticipantID: "bob", Weight: 1},
		},
	}
	if err := store.CreateExpense(ctx, template); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	m := ledger.NewMaterializer(store)
	now := time.Date(2025, time.May, 5, 12, 0, 0, 0, time.UTC)
	m.CatchUp(ctx, group.ID, now)

	expenses, err := store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListExpensesByGroup failed: %v", err)
	}
	// Template May 1 plus clones for May 2–5 (May 5 00:00 is before noon).
	if len(expenses) != 5 {
		t.Fatalf("expense count = %d, want 5", len(expenses))
	}

	// Running again changes nothing.
	m.CatchUp(ctx, group.ID, now)
	expenses, err = store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListExpensesByGroup failed: %v", err)
	}
	if len(expenses) != 5 {
		t.Fatalf("expense count after rerun = %d, want 5", len(expenses))
	}
}
