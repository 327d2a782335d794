package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

const budgetColumns = `id, user_id, category, limit_cents, spent_cents, period, alert_threshold,
	status, period_start, period_end, last_alert_at, created_at, updated_at`

func scanBudget(row interface{ Scan(...any) error }) (core.Budget, error) {
	var (
		b                          core.Budget
		threshold, start, end      string
		created, updated           string
		lastAlert                  sql.NullString
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Category, &b.Limit.Cents, &b.Spent.Cents, &b.Period,
		&threshold, &b.Status, &start, &end, &lastAlert, &created, &updated)
	if err != nil {
		return core.Budget{}, err
	}
	b.AlertThreshold = parsePercent(threshold)
	b.PeriodStart = parseTime(start)
	b.PeriodEnd = parseTime(end)
	b.LastAlertAt = parseNullTime(lastAlert)
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = uuid.NewString()
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Category, b.Limit.Cents, b.Spent.Cents, b.Period,
		b.AlertThreshold.String(), b.Status, fmtTime(b.PeriodStart), fmtTime(b.PeriodEnd),
		fmtNullTime(b.LastAlertAt), fmtTime(now), fmtTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.Budget{}, core.ErrDuplicateBudget
		}
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// GetActiveBudget finds the single active budget for a user+category.
func (r *SQLiteRepository) GetActiveBudget(ctx context.Context, userID, category string) (core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets
		 WHERE user_id = ? AND category = ? AND status = 'active'`, userID, category))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get active budget: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	return r.queryBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListActiveBudgets returns one page of active budgets across users;
// the worker walks the pages for the periodic backup recalculation.
func (r *SQLiteRepository) ListActiveBudgets(ctx context.Context, limit, offset int) ([]core.Budget, error) {
	return r.queryBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE status = 'active' ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, offset)
}

// ListEndedActiveBudgets returns active budgets whose period has rolled
// over and need archiving.
func (r *SQLiteRepository) ListEndedActiveBudgets(ctx context.Context, now time.Time) ([]core.Budget, error) {
	return r.queryBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE status = 'active' AND period_end < ?`, fmtTime(now))
}

func (r *SQLiteRepository) queryBudgets(ctx context.Context, query string, args ...any) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets
		 SET category = ?, limit_cents = ?, period = ?, alert_threshold = ?, status = ?,
		     period_start = ?, period_end = ?, updated_at = ?
		 WHERE id = ?`,
		b.Category, b.Limit.Cents, b.Period, b.AlertThreshold.String(), b.Status,
		fmtTime(b.PeriodStart), fmtTime(b.PeriodEnd), fmtTime(b.UpdatedAt), b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// UpdateBudgetSpent writes the recomputed spent total.
func (r *SQLiteRepository) UpdateBudgetSpent(ctx context.Context, id string, spentCents int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET spent_cents = ?, updated_at = ? WHERE id = ?`,
		spentCents, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update budget spent: %w", err)
	}
	return nil
}

// AdvanceBudgetPeriod archives the ended period into history and moves
// the budget to the window containing now, atomically.
func (r *SQLiteRepository) AdvanceBudgetPeriod(ctx context.Context, b core.Budget, now time.Time) (core.Budget, error) {
	history := core.BudgetHistory{
		ID:               uuid.NewString(),
		BudgetID:         b.ID,
		PeriodStart:      b.PeriodStart,
		PeriodEnd:        b.PeriodEnd,
		Limit:            b.Limit,
		Spent:            b.Spent,
		PerformanceScore: b.PerformanceScore(),
		CreatedAt:        now,
	}
	b.AdvancePeriod(now)
	b.UpdatedAt = now

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO budget_history (id, budget_id, period_start, period_end, limit_cents, spent_cents, performance_score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			history.ID, history.BudgetID, fmtTime(history.PeriodStart), fmtTime(history.PeriodEnd),
			history.Limit.Cents, history.Spent.Cents, history.PerformanceScore.StringFixed(2), fmtTime(now))
		if err != nil {
			return fmt.Errorf("insert budget history: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE budgets SET spent_cents = 0, period_start = ?, period_end = ?, updated_at = ? WHERE id = ?`,
			fmtTime(b.PeriodStart), fmtTime(b.PeriodEnd), fmtTime(now), b.ID)
		if err != nil {
			return fmt.Errorf("advance budget period: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgetHistory(ctx context.Context, budgetID string) ([]core.BudgetHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, budget_id, period_start, period_end, limit_cents, spent_cents, performance_score, created_at
		 FROM budget_history WHERE budget_id = ? ORDER BY period_start DESC`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list budget history: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetHistory
	for rows.Next() {
		var (
			h                     core.BudgetHistory
			start, end, score, at string
		)
		if err := rows.Scan(&h.ID, &h.BudgetID, &start, &end, &h.Limit.Cents, &h.Spent.Cents, &score, &at); err != nil {
			return nil, fmt.Errorf("scan budget history: %w", err)
		}
		h.PeriodStart = parseTime(start)
		h.PeriodEnd = parseTime(end)
		h.PerformanceScore = parsePercent(score)
		h.CreatedAt = parseTime(at)
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- alerts ---

func (r *SQLiteRepository) CreateAlert(ctx context.Context, a core.BudgetAlert) (core.BudgetAlert, error) {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_alerts (id, budget_id, type, message, read, notified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BudgetID, a.Type, a.Message, boolToInt(a.Read), boolToInt(a.Notified), fmtTime(a.CreatedAt))
	if err != nil {
		return core.BudgetAlert{}, fmt.Errorf("insert alert: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE budgets SET last_alert_at = ? WHERE id = ?`, fmtTime(a.CreatedAt), a.BudgetID)
	if err != nil {
		return core.BudgetAlert{}, fmt.Errorf("stamp last alert: %w", err)
	}
	return a, nil
}

// HasRecentAlert reports whether a same-type alert exists for the budget
// since the given time. The engine's dedup check.
func (r *SQLiteRepository) HasRecentAlert(ctx context.Context, budgetID string, alertType core.AlertType, since time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM budget_alerts WHERE budget_id = ? AND type = ? AND created_at >= ?`,
		budgetID, alertType, fmtTime(since)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check recent alert: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]core.BudgetAlert, error) {
	query := `SELECT a.id, a.budget_id, a.type, a.message, a.read, a.notified, a.created_at
		 FROM budget_alerts a JOIN budgets b ON b.id = a.budget_id
		 WHERE b.user_id = ?`
	if unreadOnly {
		query += ` AND a.read = 0`
	}
	query += ` ORDER BY a.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetAlert
	for rows.Next() {
		var (
			a             core.BudgetAlert
			read, notified int
			at            string
		)
		if err := rows.Scan(&a.ID, &a.BudgetID, &a.Type, &a.Message, &read, &notified, &at); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Read = read != 0
		a.Notified = notified != 0
		a.CreatedAt = parseTime(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkAlertRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE budget_alerts SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkAlertNotified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE budget_alerts SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark alert notified: %w", err)
	}
	return nil
}

// DeleteReadAlertsBefore removes read alerts older than the cutoff and
// returns how many went.
func (r *SQLiteRepository) DeleteReadAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budget_alerts WHERE read = 1 AND created_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- templates ---

func (r *SQLiteRepository) UpsertBudgetTemplate(ctx context.Context, t core.BudgetTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO budget_templates (id, name, description, is_default) VALUES (?, ?, ?, ?)
			 ON CONFLICT (name) DO UPDATE SET description = excluded.description, is_default = excluded.is_default`,
			t.ID, t.Name, t.Description, boolToInt(t.Default))
		if err != nil {
			return fmt.Errorf("upsert budget template: %w", err)
		}

		var templateID string
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM budget_templates WHERE name = ?`, t.Name).Scan(&templateID); err != nil {
			return fmt.Errorf("resolve template id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM budget_template_items WHERE template_id = ?`, templateID); err != nil {
			return fmt.Errorf("clear template items: %w", err)
		}
		for _, item := range t.Items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO budget_template_items (template_id, category, limit_cents, period, alert_threshold)
				 VALUES (?, ?, ?, ?, ?)`,
				templateID, item.Category, item.Limit.Cents, item.Period, item.AlertThreshold.String())
			if err != nil {
				return fmt.Errorf("insert template item: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetBudgetTemplate(ctx context.Context, name string) (core.BudgetTemplate, error) {
	var (
		t         core.BudgetTemplate
		isDefault int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_default FROM budget_templates WHERE name = ?`, name).
		Scan(&t.ID, &t.Name, &t.Description, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetTemplate{}, core.ErrNotFound
	}
	if err != nil {
		return core.BudgetTemplate{}, fmt.Errorf("get budget template: %w", err)
	}
	t.Default = isDefault != 0

	rows, err := r.db.QueryContext(ctx,
		`SELECT category, limit_cents, period, alert_threshold
		 FROM budget_template_items WHERE template_id = ? ORDER BY category`, t.ID)
	if err != nil {
		return core.BudgetTemplate{}, fmt.Errorf("list template items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      core.BudgetTemplateItem
			threshold string
		)
		if err := rows.Scan(&item.Category, &item.Limit.Cents, &item.Period, &threshold); err != nil {
			return core.BudgetTemplate{}, fmt.Errorf("scan template item: %w", err)
		}
		item.AlertThreshold = parsePercent(threshold)
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}
