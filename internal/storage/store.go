// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/splitledger/splitledger/internal/models"
)

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the service layer. It is a superset of
// ledger.RecurringStore, so any Store can back the Materializer directly.
type Store interface {
	// CreateGroup persists a new group and its member list. The
	// group.ID field will be populated by the store.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by its ID, members included.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups retrieves all groups.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// UpdateGroup replaces a group's name, currency, and member list.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// AddGroupMembers appends members to a group, ignoring duplicates.
	AddGroupMembers(ctx context.Context, groupID string, members []string) error

	// CreateExpense persists a new expense with its payers and shares.
	// For a repeating expense without a link, the store also creates the
	// initial recurring link, in the same transaction.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense by ID with paidBy/paidFor expanded.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense replaces an existing expense's fields, payers, and
	// shares. Returns an error if the expense is not found.
	UpdateExpense(ctx context.Context, expense *models.Expense) error

	// DeleteExpense removes an expense by ID.
	DeleteExpense(ctx context.Context, expenseID string) error

	// ListExpensesByGroup retrieves a group's full expense history with
	// paidBy/paidFor expanded, newest date first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// ListDueRecurringLinks returns the group's unclaimed links whose
	// next expense date is at or before now.
	ListDueRecurringLinks(ctx context.Context, groupID string, now time.Time) ([]*models.RecurringLink, error)

	// MaterializeRecurringExpense runs the materialization transaction:
	// create the expense, create its follow-on link, and claim the
	// current link's next-expense-created-at timestamp only if it is
	// still unset. Returns ledger.ErrLinkClaimed when the claim matches
	// zero rows because a concurrent caller got there first.
	MaterializeRecurringExpense(ctx context.Context, expense *models.Expense, newLink *models.RecurringLink, claimLinkID string, claimedAt time.Time) error

	// CreateUser persists a new user account.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves a user by email, or (nil, nil) if absent.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves a user by ID, or (nil, nil) if absent.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Close releases any resources held by the store.
	Close() error
}
