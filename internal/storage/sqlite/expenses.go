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

// dateFormat is how dates are stored. RFC 3339 in UTC keeps lexicographic
// and chronological order identical, which the due-link query relies on.
const dateFormat = time.RFC3339

// CreateExpense persists a new expense with its payers and shares. When the
// expense repeats and has no link yet, the initial recurring link is created
// in the same transaction, scheduled for the occurrence after the expense's
// own date.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if expense.Recurrence == "" {
		expense.Recurrence = models.RecurrenceNone
	}
	if expense.Recurrence != models.RecurrenceNone && expense.RecurringLinkID == "" {
		next, err := ledger.NextDate(expense.Recurrence, expense.Date)
		if err != nil {
			return fmt.Errorf("failed to schedule recurrence: %w", err)
		}
		link := &models.RecurringLink{
			ID:              uuid.New().String(),
			GroupID:         expense.GroupID,
			NextExpenseDate: next,
		}
		expense.RecurringLinkID = link.ID
		if err := insertExpense(ctx, tx, expense); err != nil {
			return err
		}
		link.ExpenseID = expense.ID
		if err := insertRecurringLink(ctx, tx, link); err != nil {
			return err
		}
	} else if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetExpense retrieves an expense by ID, with payers and shares expanded.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := scanExpense(s.db.QueryRowContext(ctx,
		`SELECT id, group_id, title, category, date, amount, split_mode,
		        is_reimbursement, recurrence, recurring_link_id, notes, created_at
		 FROM expenses WHERE id = ?`,
		expenseID,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense not found: %s", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := s.loadExpenseRows(ctx, expense); err != nil {
		return nil, err
	}

	return expense, nil
}

// UpdateExpense replaces an expense's fields, payers, and shares.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET title = ?, category = ?, date = ?, amount = ?,
		        split_mode = ?, is_reimbursement = ?, notes = ?
		 WHERE id = ?`,
		expense.Title, expense.Category, expense.Date.UTC().Format(dateFormat),
		expense.Amount, string(expense.SplitMode), expense.IsReimbursement,
		expense.Notes, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense not found: %s", expense.ID)
	}

	for _, table := range []string{"expense_payers", "expense_shares"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE expense_id = ?", expense.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := insertExpenseRows(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteExpense removes an expense; payers and shares cascade.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense not found: %s", expenseID)
	}
	return nil
}

// ListExpensesByGroup retrieves the full expense history for a group,
// newest date first, with payers and shares expanded.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, title, category, date, amount, split_mode,
		        is_reimbursement, recurrence, recurring_link_id, notes, created_at
		 FROM expenses WHERE group_id = ? ORDER BY date DESC, created_at DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for _, expense := range expenses {
		if err := s.loadExpenseRows(ctx, expense); err != nil {
			return nil, err
		}
	}

	return expenses, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*models.Expense, error) {
	expense := &models.Expense{}
	var date, splitMode, recurrence string
	var linkID sql.NullString

	err := row.Scan(&expense.ID, &expense.GroupID, &expense.Title, &expense.Category,
		&date, &expense.Amount, &splitMode, &expense.IsReimbursement,
		&recurrence, &linkID, &expense.Notes, &expense.CreatedAt)
	if err != nil {
		return nil, err
	}

	expense.Date, err = time.Parse(dateFormat, date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expense date: %w", err)
	}
	expense.SplitMode, err = models.ParseSplitMode(splitMode)
	if err != nil {
		return nil, err
	}
	expense.Recurrence, err = models.ParseRecurrenceRule(recurrence)
	if err != nil {
		return nil, err
	}
	if linkID.Valid {
		expense.RecurringLinkID = linkID.String
	}

	return expense, nil
}

// loadExpenseRows fills in an expense's payer and share lists.
func (s *SQLiteStore) loadExpenseRows(ctx context.Context, expense *models.Expense) error {
	payerRows, err := s.db.QueryContext(ctx,
		"SELECT participant_id, amount FROM expense_payers WHERE expense_id = ? ORDER BY position",
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get expense payers: %w", err)
	}
	defer payerRows.Close()

	for payerRows.Next() {
		var payment models.Payment
		if err := payerRows.Scan(&payment.ParticipantID, &payment.Amount); err != nil {
			return fmt.Errorf("failed to scan payer: %w", err)
		}
		expense.PaidBy = append(expense.PaidBy, payment)
	}
	if err := payerRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate payers: %w", err)
	}

	shareRows, err := s.db.QueryContext(ctx,
		"SELECT participant_id, weight FROM expense_shares WHERE expense_id = ? ORDER BY position",
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get expense shares: %w", err)
	}
	defer shareRows.Close()

	for shareRows.Next() {
		var share models.Share
		if err := shareRows.Scan(&share.ParticipantID, &share.Weight); err != nil {
			return fmt.Errorf("failed to scan share: %w", err)
		}
		expense.PaidFor = append(expense.PaidFor, share)
	}
	if err := shareRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate shares: %w", err)
	}

	return nil
}

// insertExpense writes the expense row plus its payers and shares within tx.
func insertExpense(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.Recurrence == "" {
		expense.Recurrence = models.RecurrenceNone
	}

	var linkID any
	if expense.RecurringLinkID != "" {
		linkID = expense.RecurringLinkID
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, title, category, date, amount, split_mode,
		                       is_reimbursement, recurrence, recurring_link_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Title, expense.Category,
		expense.Date.UTC().Format(dateFormat), expense.Amount, string(expense.SplitMode),
		expense.IsReimbursement, string(expense.Recurrence), linkID,
		expense.Notes, expense.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	return insertExpenseRows(ctx, tx, expense)
}

// insertExpenseRows writes the payer and share rows within tx.
func insertExpenseRows(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	for i, payment := range expense.PaidBy {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_payers (expense_id, position, participant_id, amount) VALUES (?, ?, ?, ?)",
			expense.ID, i, payment.ParticipantID, payment.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert payer: %w", err)
		}
	}
	for i, share := range expense.PaidFor {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_shares (expense_id, position, participant_id, weight) VALUES (?, ?, ?, ?)",
			expense.ID, i, share.ParticipantID, share.Weight,
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}
