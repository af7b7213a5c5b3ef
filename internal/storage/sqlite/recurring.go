package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/models"
)

// ListDueRecurringLinks returns the group's unclaimed links due at or
// before now. RFC 3339 UTC strings compare lexicographically in date order,
// so the comparison happens in SQL against the indexed column.
func (s *SQLiteStore) ListDueRecurringLinks(ctx context.Context, groupID string, now time.Time) ([]*models.RecurringLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, expense_id, next_expense_date
		 FROM recurring_links
		 WHERE group_id = ? AND next_expense_created_at IS NULL AND next_expense_date <= ?
		 ORDER BY next_expense_date`,
		groupID, now.UTC().Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due recurring links: %w", err)
	}
	defer rows.Close()

	var links []*models.RecurringLink
	for rows.Next() {
		link := &models.RecurringLink{}
		var nextDate string
		if err := rows.Scan(&link.ID, &link.GroupID, &link.ExpenseID, &nextDate); err != nil {
			return nil, fmt.Errorf("failed to scan recurring link: %w", err)
		}
		link.NextExpenseDate, err = time.Parse(dateFormat, nextDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse link date: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recurring links: %w", err)
	}

	return links, nil
}

// MaterializeRecurringExpense creates one occurrence inside a single
// transaction: insert the cloned expense, insert its follow-on link, and
// claim the current link by setting next_expense_created_at — but only if
// it is still NULL. The conditional update is the concurrency primitive:
// when it matches zero rows a concurrent caller already claimed this
// occurrence, the whole transaction rolls back, and ledger.ErrLinkClaimed
// tells the caller to stop without side effects.
func (s *SQLiteStore) MaterializeRecurringExpense(ctx context.Context, expense *models.Expense, newLink *models.RecurringLink, claimLinkID string, claimedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if newLink.ID == "" {
		newLink.ID = uuid.New().String()
	}
	expense.RecurringLinkID = newLink.ID

	if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}
	newLink.ExpenseID = expense.ID
	if err := insertRecurringLink(ctx, tx, newLink); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE recurring_links SET next_expense_created_at = ? WHERE id = ? AND next_expense_created_at IS NULL",
		claimedAt.UTC().Format(dateFormat), claimLinkID,
	)
	if err != nil {
		return fmt.Errorf("failed to claim recurring link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claim result: %w", err)
	}
	if affected == 0 {
		return ledger.ErrLinkClaimed
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// insertRecurringLink writes a link row within tx.
func insertRecurringLink(ctx context.Context, tx *sql.Tx, link *models.RecurringLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}

	var createdAt any
	if link.NextExpenseCreatedAt != nil {
		createdAt = link.NextExpenseCreatedAt.UTC().Format(dateFormat)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO recurring_links (id, group_id, expense_id, next_expense_date, next_expense_created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		link.ID, link.GroupID, link.ExpenseID,
		link.NextExpenseDate.UTC().Format(dateFormat), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recurring link: %w", err)
	}

	return nil
}
