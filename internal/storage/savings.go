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

const accountColumns = `id, user_id, balance_cents, auto_save_percent, auto_save_enabled, created_at, updated_at`

const goalColumns = `id, user_id, name, description, target_cents, current_cents, status, priority,
	target_date, auto_allocate_enabled, auto_allocate_percent, created_at, updated_at, completed_at`

func scanAccount(row interface{ Scan(...any) error }) (core.SavingsAccount, error) {
	var (
		a                core.SavingsAccount
		percent          string
		enabled          int
		created, updated string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Balance.Cents, &percent, &enabled, &created, &updated)
	if err != nil {
		return core.SavingsAccount{}, err
	}
	a.AutoSavePercent = parsePercent(percent)
	a.AutoSaveEnabled = enabled != 0
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

func scanGoal(row interface{ Scan(...any) error }) (core.SavingsGoal, error) {
	var (
		g                     core.SavingsGoal
		percent               string
		enabled               int
		targetDate, completed sql.NullString
		created, updated      string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Description, &g.TargetAmount.Cents, &g.CurrentAmount.Cents,
		&g.Status, &g.Priority, &targetDate, &enabled, &percent, &created, &updated, &completed)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g.TargetDate = core.Date{Time: parseNullDate(targetDate)}
	g.AutoAllocateEnabled = enabled != 0
	g.AutoAllocatePercent = parsePercent(percent)
	g.CreatedAt = parseTime(created)
	g.UpdatedAt = parseTime(updated)
	g.CompletedAt = parseNullTime(completed)
	return g, nil
}

// GetOrCreateAccount returns the user's savings account, creating it
// with the default auto-save settings on first touch. Mirrors the lazy
// account creation on the first income transaction.
func (r *SQLiteRepository) GetOrCreateAccount(ctx context.Context, userID string) (core.SavingsAccount, error) {
	a, err := r.GetAccountByUser(ctx, userID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.SavingsAccount{}, err
	}

	now := time.Now()
	a = core.SavingsAccount{
		ID:              uuid.NewString(),
		UserID:          userID,
		AutoSavePercent: core.DefaultAutoSavePercent,
		AutoSaveEnabled: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO savings_accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		a.ID, a.UserID, 0, a.AutoSavePercent.String(), 1, fmtTime(now), fmtTime(now))
	if err != nil {
		return core.SavingsAccount{}, fmt.Errorf("create savings account: %w", err)
	}
	// Re-read in case a concurrent insert won the conflict.
	return r.GetAccountByUser(ctx, userID)
}

func (r *SQLiteRepository) GetAccountByUser(ctx context.Context, userID string) (core.SavingsAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM savings_accounts WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsAccount{}, core.ErrNotFound
	}
	if err != nil {
		return core.SavingsAccount{}, fmt.Errorf("get savings account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) UpdateAccountSettings(ctx context.Context, a core.SavingsAccount) (core.SavingsAccount, error) {
	a.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE savings_accounts SET auto_save_percent = ?, auto_save_enabled = ?, updated_at = ? WHERE id = ?`,
		a.AutoSavePercent.String(), boolToInt(a.AutoSaveEnabled), fmtTime(a.UpdatedAt), a.ID)
	if err != nil {
		return core.SavingsAccount{}, fmt.Errorf("update account settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.SavingsAccount{}, core.ErrNotFound
	}
	return a, nil
}

// DepositToAccount moves cents into the account and writes the ledger
// row with the balance on both sides, atomically.
func (r *SQLiteRepository) DepositToAccount(ctx context.Context, accountID string, cents int64, txType core.SavingsTxType, description, referenceTxID string) (core.SavingsTransaction, error) {
	return r.moveAccountFunds(ctx, accountID, cents, txType, description, referenceTxID)
}

// WithdrawFromAccount moves cents out, failing with ErrInsufficientFunds
// when the balance cannot cover it.
func (r *SQLiteRepository) WithdrawFromAccount(ctx context.Context, accountID string, cents int64, txType core.SavingsTxType, description string) (core.SavingsTransaction, error) {
	return r.moveAccountFunds(ctx, accountID, -cents, txType, description, "")
}

func (r *SQLiteRepository) moveAccountFunds(ctx context.Context, accountID string, delta int64, txType core.SavingsTxType, description, referenceTxID string) (core.SavingsTransaction, error) {
	if delta == 0 {
		return core.SavingsTransaction{}, core.ErrInvalidAmount
	}

	var ledger core.SavingsTransaction
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRowContext(ctx,
			`SELECT balance_cents FROM savings_accounts WHERE id = ?`, accountID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}

		after := balance + delta
		if after < 0 {
			return core.ErrInsufficientFunds
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE savings_accounts SET balance_cents = ?, updated_at = ? WHERE id = ?`,
			after, fmtTime(now), accountID); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		amount := delta
		if amount < 0 {
			amount = -amount
		}
		ledger = core.SavingsTransaction{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			Type:          txType,
			Amount:        core.Money{Cents: amount},
			Description:   description,
			BalanceBefore: core.Money{Cents: balance},
			BalanceAfter:  core.Money{Cents: after},
			ReferenceTxID: referenceTxID,
			CreatedAt:     now,
		}
		var ref sql.NullString
		if referenceTxID != "" {
			ref = sql.NullString{String: referenceTxID, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO savings_transactions (id, account_id, type, amount_cents, description,
			   balance_before_cents, balance_after_cents, reference_tx_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ledger.ID, accountID, txType, amount, description, balance, after, ref, fmtTime(now))
		if err != nil {
			return fmt.Errorf("insert savings transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.SavingsTransaction{}, err
	}
	return ledger, nil
}

func (r *SQLiteRepository) ListSavingsTransactions(ctx context.Context, accountID string, limit int) ([]core.SavingsTransaction, error) {
	query := `SELECT id, account_id, type, amount_cents, description, balance_before_cents,
		balance_after_cents, reference_tx_id, created_at
		FROM savings_transactions WHERE account_id = ? ORDER BY created_at DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list savings transactions: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsTransaction
	for rows.Next() {
		var (
			st  core.SavingsTransaction
			ref sql.NullString
			at  string
		)
		if err := rows.Scan(&st.ID, &st.AccountID, &st.Type, &st.Amount.Cents, &st.Description,
			&st.BalanceBefore.Cents, &st.BalanceAfter.Cents, &ref, &at); err != nil {
			return nil, fmt.Errorf("scan savings transaction: %w", err)
		}
		st.ReferenceTxID = ref.String
		st.CreatedAt = parseTime(at)
		out = append(out, st)
	}
	return out, rows.Err()
}

// SumAutoSaved totals auto_save ledger rows for a user inside [from, to].
func (r *SQLiteRepository) SumAutoSaved(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(t.amount_cents) FROM savings_transactions t
		 JOIN savings_accounts a ON a.id = t.account_id
		 WHERE a.user_id = ? AND t.type = 'auto_save' AND t.created_at >= ? AND t.created_at <= ?`,
		userID, fmtTime(from), fmtTime(to)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum auto saved: %w", err)
	}
	return total.Int64, nil
}

// --- goals ---

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	g.ID = uuid.NewString()
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_goals (`+goalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Description, g.TargetAmount.Cents, g.CurrentAmount.Cents,
		g.Status, g.Priority, fmtNullDate(g.TargetDate.Time), boolToInt(g.AutoAllocateEnabled),
		g.AutoAllocatePercent.String(), fmtTime(now), fmtTime(now), fmtNullTime(g.CompletedAt))
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("insert goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, core.ErrNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string, status core.Status) ([]core.SavingsGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	return r.queryGoals(ctx, query, args...)
}

// ListAutoAllocateGoals returns active goals participating in automatic
// allocation, ordered by priority then age so rounding leftovers land on
// the most urgent goal.
func (r *SQLiteRepository) ListAutoAllocateGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	return r.queryGoals(ctx,
		`SELECT `+goalColumns+` FROM savings_goals
		 WHERE user_id = ? AND status = 'active' AND auto_allocate_enabled = 1
		   AND CAST(auto_allocate_percent AS REAL) > 0
		 ORDER BY CASE priority
		   WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3
		 END, created_at`, userID)
}

func (r *SQLiteRepository) queryGoals(ctx context.Context, query string, args ...any) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	g.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE savings_goals
		 SET name = ?, description = ?, target_cents = ?, status = ?, priority = ?, target_date = ?,
		     auto_allocate_enabled = ?, auto_allocate_percent = ?, updated_at = ?
		 WHERE id = ?`,
		g.Name, g.Description, g.TargetAmount.Cents, g.Status, g.Priority, fmtNullDate(g.TargetDate.Time),
		boolToInt(g.AutoAllocateEnabled), g.AutoAllocatePercent.String(), fmtTime(g.UpdatedAt), g.ID)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.SavingsGoal{}, core.ErrNotFound
	}
	return g, nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM savings_goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// AddGoalFunds moves cents into a goal and flips it to completed when
// the target is reached, writing the allocation ledger row atomically.
func (r *SQLiteRepository) AddGoalFunds(ctx context.Context, goalID string, cents int64, source core.AllocationSource, allocType core.AllocationType, description string) (core.SavingsAllocation, error) {
	return r.moveGoalFunds(ctx, goalID, cents, source, allocType, description)
}

// WithdrawGoalFunds moves cents out of a goal; a completed goal dropping
// back under target returns to active.
func (r *SQLiteRepository) WithdrawGoalFunds(ctx context.Context, goalID string, cents int64, description string) (core.SavingsAllocation, error) {
	return r.moveGoalFunds(ctx, goalID, -cents, core.SourceManual, core.AllocWithdrawal, description)
}

func (r *SQLiteRepository) moveGoalFunds(ctx context.Context, goalID string, delta int64, source core.AllocationSource, allocType core.AllocationType, description string) (core.SavingsAllocation, error) {
	if delta == 0 {
		return core.SavingsAllocation{}, core.ErrInvalidAmount
	}

	var alloc core.SavingsAllocation
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var current, target int64
		var status core.Status
		err := tx.QueryRowContext(ctx,
			`SELECT current_cents, target_cents, status FROM savings_goals WHERE id = ?`, goalID).
			Scan(&current, &target, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read goal: %w", err)
		}

		after := current + delta
		if after < 0 {
			return core.ErrInsufficientFunds
		}

		now := time.Now()
		newStatus := status
		completedAt := sql.NullString{}
		switch {
		case status != core.StatusCompleted && after >= target:
			newStatus = core.StatusCompleted
			completedAt = sql.NullString{String: fmtTime(now), Valid: true}
		case status == core.StatusCompleted && after < target:
			newStatus = core.StatusActive
		}

		if newStatus != status {
			_, err = tx.ExecContext(ctx,
				`UPDATE savings_goals SET current_cents = ?, status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
				after, newStatus, completedAt, fmtTime(now), goalID)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE savings_goals SET current_cents = ?, updated_at = ? WHERE id = ?`,
				after, fmtTime(now), goalID)
		}
		if err != nil {
			return fmt.Errorf("update goal amount: %w", err)
		}

		amount := delta
		if amount < 0 {
			amount = -amount
		}
		alloc = core.SavingsAllocation{
			ID:            uuid.NewString(),
			GoalID:        goalID,
			Type:          allocType,
			Source:        source,
			Amount:        core.Money{Cents: amount},
			Description:   description,
			BalanceBefore: core.Money{Cents: current},
			BalanceAfter:  core.Money{Cents: after},
			CreatedAt:     now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO savings_allocations (id, goal_id, type, source, amount_cents, description,
			   balance_before_cents, balance_after_cents, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			alloc.ID, goalID, allocType, source, amount, description, current, after, fmtTime(now))
		if err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.SavingsAllocation{}, err
	}
	return alloc, nil
}

func (r *SQLiteRepository) ListAllocations(ctx context.Context, goalID string, limit int) ([]core.SavingsAllocation, error) {
	query := `SELECT id, goal_id, type, source, amount_cents, description, balance_before_cents,
		balance_after_cents, created_at
		FROM savings_allocations WHERE goal_id = ? ORDER BY created_at DESC`
	args := []any{goalID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsAllocation
	for rows.Next() {
		var (
			a  core.SavingsAllocation
			at string
		)
		if err := rows.Scan(&a.ID, &a.GoalID, &a.Type, &a.Source, &a.Amount.Cents, &a.Description,
			&a.BalanceBefore.Cents, &a.BalanceAfter.Cents, &at); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.CreatedAt = parseTime(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CountGoalsCompleted(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM savings_goals
		 WHERE user_id = ? AND status = 'completed' AND completed_at >= ? AND completed_at <= ?`,
		userID, fmtTime(from), fmtTime(to)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed goals: %w", err)
	}
	return n, nil
}

// --- savings templates ---

func (r *SQLiteRepository) UpsertSavingsTemplate(ctx context.Context, t core.SavingsTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_templates (id, name, description, suggested_cents, timeline_months, priority, category, is_default)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET description = excluded.description,
		   suggested_cents = excluded.suggested_cents, timeline_months = excluded.timeline_months,
		   priority = excluded.priority, category = excluded.category, is_default = excluded.is_default`,
		t.ID, t.Name, t.Description, t.SuggestedAmount.Cents, t.TimelineMonths, t.Priority, t.Category, boolToInt(t.Default))
	if err != nil {
		return fmt.Errorf("upsert savings template: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListSavingsTemplates(ctx context.Context) ([]core.SavingsTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, suggested_cents, timeline_months, priority, category, is_default
		 FROM savings_templates ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list savings templates: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsTemplate
	for rows.Next() {
		var (
			t         core.SavingsTemplate
			isDefault int
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.SuggestedAmount.Cents,
			&t.TimelineMonths, &t.Priority, &t.Category, &isDefault); err != nil {
			return nil, fmt.Errorf("scan savings template: %w", err)
		}
		t.Default = isDefault != 0
		out = append(out, t)
	}
	return out, rows.Err()
}
