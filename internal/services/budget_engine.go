package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/notify"
	"fintrack/internal/storage"
)

// periodEndingDays is how many days before a period closes the
// period_ending alert fires.
const periodEndingDays = 3

// BudgetEngine owns the derived state of budgets: the spent totals and
// the alerts. Handlers never write spent; they create transactions and
// the engine recomputes here, either from a broker event or from the
// periodic backup scan.
type BudgetEngine struct {
	storage     *storage.SQLiteRepository
	notifier    notify.Notifier
	dedupWindow time.Duration
	retention   time.Duration
	batchSize   int
}

func NewBudgetEngine(storage *storage.SQLiteRepository, notifier notify.Notifier, dedupWindow, retention time.Duration, batchSize int) *BudgetEngine {
	if batchSize < 1 {
		batchSize = 50
	}
	return &BudgetEngine{
		storage:     storage,
		notifier:    notifier,
		dedupWindow: dedupWindow,
		retention:   retention,
		batchSize:   batchSize,
	}
}

// CreateBudget validates and stores a budget with its period window
// anchored to now, then computes the initial spent from existing
// transactions so a budget created mid-period starts correct.
func (e *BudgetEngine) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.Period == "" {
		b.Period = core.Monthly
	}
	if b.AlertThreshold.IsZero() {
		b.AlertThreshold = core.DefaultAlertThreshold
	}
	if b.Status == "" {
		b.Status = core.StatusActive
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b.PeriodStart, b.PeriodEnd = b.Period.Window(time.Now())

	created, err := e.storage.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	return e.Recalculate(ctx, created)
}

func (e *BudgetEngine) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	updated, err := e.storage.UpdateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	return e.Recalculate(ctx, updated)
}

func (e *BudgetEngine) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	return e.storage.GetBudget(ctx, id)
}

func (e *BudgetEngine) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	return e.storage.ListBudgets(ctx, userID)
}

func (e *BudgetEngine) DeleteBudget(ctx context.Context, id string) error {
	return e.storage.DeleteBudget(ctx, id)
}

func (e *BudgetEngine) ListHistory(ctx context.Context, budgetID string) ([]core.BudgetHistory, error) {
	return e.storage.ListBudgetHistory(ctx, budgetID)
}

func (e *BudgetEngine) ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]core.BudgetAlert, error) {
	return e.storage.ListAlerts(ctx, userID, unreadOnly)
}

func (e *BudgetEngine) MarkAlertRead(ctx context.Context, id string) error {
	return e.storage.MarkAlertRead(ctx, id)
}

// HandleTransactionEvent reacts to a transaction change. Every event
// type recomputes: an expense reclassified as income must drop out of
// spent just as a new expense must count into it.
func (e *BudgetEngine) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	b, err := e.storage.GetActiveBudget(ctx, msg.UserID, msg.Category)
	if errors.Is(err, core.ErrNotFound) {
		return nil // no budget watches this category
	}
	if err != nil {
		return err
	}

	_, err = e.Recalculate(ctx, b)
	return err
}

// Recalculate recomputes spent from the transaction table for the
// budget's current period and raises alerts as needed.
func (e *BudgetEngine) Recalculate(ctx context.Context, b core.Budget) (core.Budget, error) {
	spent, err := e.storage.SumExpenses(ctx, b.UserID, b.Category, b.PeriodStart, b.PeriodEnd)
	if err != nil {
		return core.Budget{}, fmt.Errorf("recompute spent: %w", err)
	}
	if err := e.storage.UpdateBudgetSpent(ctx, b.ID, spent); err != nil {
		return core.Budget{}, err
	}
	b.Spent.Cents = spent

	if err := e.checkSpendAlerts(ctx, b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

// RecalculateAll is the periodic backup for missed events: every active
// budget is recomputed from the transaction table, one batch at a time.
func (e *BudgetEngine) RecalculateAll(ctx context.Context) error {
	return e.forEachActiveBudget(ctx, func(b core.Budget) error {
		if _, err := e.Recalculate(ctx, b); err != nil {
			slog.ErrorContext(ctx, "Failed to recalculate budget",
				"budget_id", b.ID, "category", b.Category, "error", err)
		}
		return nil
	})
}

// forEachActiveBudget pages through active budgets in batchSize chunks.
func (e *BudgetEngine) forEachActiveBudget(ctx context.Context, fn func(core.Budget) error) error {
	for offset := 0; ; offset += e.batchSize {
		budgets, err := e.storage.ListActiveBudgets(ctx, e.batchSize, offset)
		if err != nil {
			return err
		}
		for _, b := range budgets {
			if err := fn(b); err != nil {
				return err
			}
		}
		if len(budgets) < e.batchSize {
			return nil
		}
	}
}

// ArchiveEnded rolls every active budget whose period has closed: the
// period is snapshotted into history with its performance score, spent
// resets, and the window moves to the one containing now.
func (e *BudgetEngine) ArchiveEnded(ctx context.Context, now time.Time) error {
	ended, err := e.storage.ListEndedActiveBudgets(ctx, now)
	if err != nil {
		return err
	}
	for _, b := range ended {
		advanced, err := e.storage.AdvanceBudgetPeriod(ctx, b, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to advance budget period",
				"budget_id", b.ID, "category", b.Category, "error", err)
			continue
		}
		slog.InfoContext(ctx, "Archived budget period",
			"budget_id", b.ID, "category", b.Category,
			"period_start", advanced.PeriodStart.Format("2006-01-02"))
		// Pick up expenses already recorded in the new window.
		if _, err := e.Recalculate(ctx, advanced); err != nil {
			slog.ErrorContext(ctx, "Failed to recalculate after archive",
				"budget_id", b.ID, "error", err)
		}
	}
	return nil
}

// CheckPeriodEnding raises a period_ending alert once per period when a
// budget has exactly periodEndingDays days left.
func (e *BudgetEngine) CheckPeriodEnding(ctx context.Context, now time.Time) error {
	return e.forEachActiveBudget(ctx, func(b core.Budget) error {
		if b.DaysRemaining(now) != periodEndingDays {
			return nil
		}
		// Once per period, not once per dedup window.
		recent, err := e.storage.HasRecentAlert(ctx, b.ID, core.AlertPeriodEnding, b.PeriodStart)
		if err != nil {
			return err
		}
		if recent {
			return nil
		}
		msg := fmt.Sprintf("Budget period for %q ends in %d days: %s of %s spent (%s%%)",
			b.Category, periodEndingDays,
			formatCents(b.Spent.Cents), formatCents(b.Limit.Cents), b.PercentUsed().StringFixed(1))
		e.raiseAlert(ctx, b, core.AlertPeriodEnding, msg)
		return nil
	})
}

// CleanupAlerts drops read alerts older than the retention window.
func (e *BudgetEngine) CleanupAlerts(ctx context.Context, now time.Time) error {
	n, err := e.storage.DeleteReadAlertsBefore(ctx, now.Add(-e.retention))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up old alerts", "deleted", n)
	}
	return nil
}

// checkSpendAlerts raises at most one alert per call: exceeded wins over
// threshold. A same-type alert inside the dedup window suppresses it.
func (e *BudgetEngine) checkSpendAlerts(ctx context.Context, b core.Budget) error {
	var (
		alertType core.AlertType
		message   string
	)
	switch {
	case b.IsOverBudget():
		alertType = core.AlertExceeded
		message = fmt.Sprintf("Budget for %q exceeded: %s spent of %s limit",
			b.Category, formatCents(b.Spent.Cents), formatCents(b.Limit.Cents))
	case b.IsThresholdReached():
		alertType = core.AlertThreshold
		message = fmt.Sprintf("Budget for %q at %s%%: %s spent of %s limit",
			b.Category, b.PercentUsed().StringFixed(1),
			formatCents(b.Spent.Cents), formatCents(b.Limit.Cents))
	default:
		return nil
	}

	recent, err := e.storage.HasRecentAlert(ctx, b.ID, alertType, time.Now().Add(-e.dedupWindow))
	if err != nil {
		return err
	}
	if recent {
		return nil
	}

	e.raiseAlert(ctx, b, alertType, message)
	return nil
}

func (e *BudgetEngine) raiseAlert(ctx context.Context, b core.Budget, alertType core.AlertType, message string) {
	alert, err := e.storage.CreateAlert(ctx, core.BudgetAlert{
		BudgetID: b.ID,
		Type:     alertType,
		Message:  message,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create alert",
			"budget_id", b.ID, "type", alertType, "error", err)
		return
	}
	slog.InfoContext(ctx, "Raised budget alert",
		"budget_id", b.ID, "type", alertType, "category", b.Category)

	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, message); err != nil {
		slog.ErrorContext(ctx, "Failed to deliver alert notification",
			"alert_id", alert.ID, "error", err)
		return
	}
	if err := e.storage.MarkAlertNotified(ctx, alert.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark alert notified",
			"alert_id", alert.ID, "error", err)
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
