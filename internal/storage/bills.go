package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

const billColumns = `id, user_id, name, amount_cents, due_date, frequency, paid, created_at, updated_at`

func scanBill(row interface{ Scan(...any) error }) (core.RecurringBill, error) {
	var (
		b                     core.RecurringBill
		paid                  int
		due, created, updated string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Amount.Cents, &due, &b.Frequency, &paid, &created, &updated)
	if err != nil {
		return core.RecurringBill{}, err
	}
	b.DueDate = core.Date{Time: parseDate(due)}
	b.Paid = paid != 0
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

func (r *SQLiteRepository) CreateBill(ctx context.Context, b core.RecurringBill) (core.RecurringBill, error) {
	b.ID = uuid.NewString()
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_bills (`+billColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Amount.Cents, fmtDate(b.DueDate.Time), b.Frequency,
		boolToInt(b.Paid), fmtTime(now), fmtTime(now))
	if err != nil {
		return core.RecurringBill{}, fmt.Errorf("insert bill: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) GetBill(ctx context.Context, id string) (core.RecurringBill, error) {
	b, err := scanBill(r.db.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM recurring_bills WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringBill{}, core.ErrNotFound
	}
	if err != nil {
		return core.RecurringBill{}, fmt.Errorf("get bill: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBills(ctx context.Context, userID string) ([]core.RecurringBill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM recurring_bills WHERE user_id = ? ORDER BY due_date, name`, userID)
}

// ListOverdueBills returns unpaid bills due strictly before today.
func (r *SQLiteRepository) ListOverdueBills(ctx context.Context, userID string, now time.Time) ([]core.RecurringBill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM recurring_bills
		 WHERE user_id = ? AND paid = 0 AND due_date < ? ORDER BY due_date`,
		userID, fmtDate(now))
}

// ListUpcomingBills returns unpaid bills due within the next `days` days,
// today included.
func (r *SQLiteRepository) ListUpcomingBills(ctx context.Context, userID string, now time.Time, days int) ([]core.RecurringBill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM recurring_bills
		 WHERE user_id = ? AND paid = 0 AND due_date >= ? AND due_date <= ? ORDER BY due_date`,
		userID, fmtDate(now), fmtDate(now.AddDate(0, 0, days)))
}

// ListPaidBillsDueBefore feeds the cycle advancer: paid bills whose due
// date has passed are ready to roll to the next period.
func (r *SQLiteRepository) ListPaidBillsDueBefore(ctx context.Context, cutoff time.Time) ([]core.RecurringBill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM recurring_bills WHERE paid = 1 AND due_date < ? ORDER BY due_date`,
		fmtDate(cutoff))
}

func (r *SQLiteRepository) queryBills(ctx context.Context, query string, args ...any) ([]core.RecurringBill, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringBill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateBill(ctx context.Context, b core.RecurringBill) (core.RecurringBill, error) {
	b.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_bills
		 SET name = ?, amount_cents = ?, due_date = ?, frequency = ?, paid = ?, updated_at = ?
		 WHERE id = ?`,
		b.Name, b.Amount.Cents, fmtDate(b.DueDate.Time), b.Frequency, boolToInt(b.Paid), fmtTime(b.UpdatedAt), b.ID)
	if err != nil {
		return core.RecurringBill{}, fmt.Errorf("update bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.RecurringBill{}, core.ErrNotFound
	}
	return b, nil
}

func (r *SQLiteRepository) DeleteBill(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_bills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetBillPaid(ctx context.Context, id string, paid bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_bills SET paid = ?, updated_at = ? WHERE id = ?`,
		boolToInt(paid), fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set bill paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// BulkSetPaid marks every one of the user's bills paid (or unpaid) and
// returns how many rows changed.
func (r *SQLiteRepository) BulkSetPaid(ctx context.Context, userID string, paid bool) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_bills SET paid = ?, updated_at = ? WHERE user_id = ? AND paid = ?`,
		boolToInt(paid), fmtTime(time.Now()), userID, boolToInt(!paid))
	if err != nil {
		return 0, fmt.Errorf("bulk set paid: %w", err)
	}
	return res.RowsAffected()
}

// AdvanceBill rolls a paid bill into its next cycle: due date stepped by
// one frequency interval, paid flag cleared.
func (r *SQLiteRepository) AdvanceBill(ctx context.Context, b core.RecurringBill) (core.RecurringBill, error) {
	b.DueDate = b.NextDueDate()
	b.Paid = false
	return r.UpdateBill(ctx, b)
}
