package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type fakePublisher struct {
	messages []*amqp.TransactionEventMessage
	err      error
}

func (p *fakePublisher) PublishTransactionEvent(_ context.Context, msg *amqp.TransactionEventMessage) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, message string) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

func newTestStorage(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func expense(userID, category string, cents int64, date core.Date) core.Transaction {
	return core.Transaction{
		UserID:      userID,
		Amount:      core.Money{Cents: cents},
		Description: "test expense",
		Category:    category,
		Type:        core.Expense,
		Date:        date,
	}
}

func today() core.Date {
	now := time.Now()
	return core.NewDate(now.Year(), int(now.Month()), now.Day())
}

func TestTransactionServicePublishesEvents(t *testing.T) {
	repo := newTestStorage(t)
	pub := &fakePublisher{}
	svc := NewTransactionService(repo, pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, expense("alice", "groceries", 1500, today()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(pub.messages) != 1 || pub.messages[0].Action != amqp.ActionCreated {
		t.Fatalf("messages after create = %+v", pub.messages)
	}

	created.Category = "dining"
	if _, err := svc.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Category changed: one event for the new category, one for the old.
	if len(pub.messages) != 3 {
		t.Fatalf("messages after update = %d, want 3", len(pub.messages))
	}
	if pub.messages[1].Category != "dining" || pub.messages[2].Category != "groceries" {
		t.Errorf("update events = %s, %s", pub.messages[1].Category, pub.messages[2].Category)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	last := pub.messages[len(pub.messages)-1]
	if last.Action != amqp.ActionDeleted || last.Category != "dining" {
		t.Errorf("delete event = %+v", last)
	}
}

func TestTransactionServiceToleratesPublishFailure(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewTransactionService(repo, &fakePublisher{err: errors.New("broker down")})
	ctx := context.Background()

	created, err := svc.Create(ctx, expense("alice", "groceries", 1500, today()))
	if err != nil {
		t.Fatalf("Create should not fail on publish error: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, created.ID); err != nil {
		t.Errorf("transaction not saved: %v", err)
	}
}

func TestTransactionServiceRejectsInvalid(t *testing.T) {
	svc := NewTransactionService(newTestStorage(t), &fakePublisher{})

	bad := expense("", "groceries", 1500, today())
	if _, err := svc.Create(context.Background(), bad); !errors.Is(err, core.ErrEmptyUser) {
		t.Errorf("Create: %v, want ErrEmptyUser", err)
	}
}

func newTestEngine(t *testing.T, notifier *fakeNotifier) (*BudgetEngine, *storage.SQLiteRepository) {
	t.Helper()
	repo := newTestStorage(t)
	var n = notifier
	if n == nil {
		n = &fakeNotifier{}
	}
	return NewBudgetEngine(repo, n, 6*time.Hour, 30*24*time.Hour, 50), repo
}

func TestCreateBudgetComputesInitialSpent(t *testing.T) {
	engine, repo := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := repo.CreateTransaction(ctx, expense("alice", "groceries", 12000, today())); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	b, err := engine.CreateBudget(ctx, core.Budget{
		UserID:   "alice",
		Category: "groceries",
		Limit:    core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	if b.Spent.Cents != 12000 {
		t.Errorf("initial spent = %d, want 12000", b.Spent.Cents)
	}
	if b.Period != core.Monthly || !b.AlertThreshold.Equal(core.DefaultAlertThreshold) {
		t.Errorf("defaults not applied: %+v", b)
	}
}

func TestHandleTransactionEventRaisesThresholdAlert(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, repo := newTestEngine(t, notifier)
	ctx := context.Background()

	b, err := engine.CreateBudget(ctx, core.Budget{
		UserID:   "alice",
		Category: "groceries",
		Limit:    core.Money{Cents: 10000},
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	tx, err := repo.CreateTransaction(ctx, expense("alice", "groceries", 8500, today()))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	msg := amqp.NewTransactionEventMessage(tx, amqp.ActionCreated)
	if err := engine.HandleTransactionEvent(ctx, msg); err != nil {
		t.Fatalf("HandleTransactionEvent: %v", err)
	}

	got, err := engine.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if got.Spent.Cents != 8500 {
		t.Errorf("spent = %d, want 8500", got.Spent.Cents)
	}

	alerts, err := engine.ListAlerts(ctx, "alice", false)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != core.AlertThreshold {
		t.Fatalf("alerts = %+v", alerts)
	}
	if !alerts[0].Notified {
		t.Error("alert should be marked notified after delivery")
	}
	if len(notifier.messages) != 1 {
		t.Errorf("notifications = %d, want 1", len(notifier.messages))
	}

	// Same state again inside the dedup window: no second alert.
	if err := engine.HandleTransactionEvent(ctx, msg); err != nil {
		t.Fatalf("second HandleTransactionEvent: %v", err)
	}
	alerts, err = engine.ListAlerts(ctx, "alice", false)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("alerts after duplicate = %d, want 1", len(alerts))
	}
}

func TestExceededAlertWinsOverThreshold(t *testing.T) {
	engine, repo := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.CreateBudget(ctx, core.Budget{
		UserID:   "alice",
		Category: "groceries",
		Limit:    core.Money{Cents: 10000},
	}); err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	tx, err := repo.CreateTransaction(ctx, expense("alice", "groceries", 12000, today()))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := engine.HandleTransactionEvent(ctx, amqp.NewTransactionEventMessage(tx, amqp.ActionCreated)); err != nil {
		t.Fatalf("HandleTransactionEvent: %v", err)
	}

	alerts, err := engine.ListAlerts(ctx, "alice", false)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != core.AlertExceeded {
		t.Errorf("alerts = %+v, want one exceeded", alerts)
	}
}

func TestEventsForUnbudgetedCategoriesAreIgnored(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	msg := &amqp.TransactionEventMessage{
		ID: "tx-1", UserID: "alice", Category: "salary",
		Type: core.Income, Action: amqp.ActionCreated,
	}
	if err := engine.HandleTransactionEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleTransactionEvent: %v", err)
	}
}

func TestReclassifiedExpenseDropsOutOfSpent(t *testing.T) {
	engine, repo := newTestEngine(t, nil)
	ctx := context.Background()

	b, err := engine.CreateBudget(ctx, core.Budget{
		UserID:   "alice",
		Category: "groceries",
		Limit:    core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	tx, err := repo.CreateTransaction(ctx, expense("alice", "groceries", 12000, today()))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := engine.HandleTransactionEvent(ctx, amqp.NewTransactionEventMessage(tx, amqp.ActionCreated)); err != nil {
		t.Fatalf("HandleTransactionEvent: %v", err)
	}

	got, err := engine.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if got.Spent.Cents != 12000 {
		t.Fatalf("spent = %d, want 12000", got.Spent.Cents)
	}

	// Same category, but no longer an expense: the update event must
	// recompute and drop it from spent.
	tx.Type = core.Income
	updated, err := repo.UpdateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if err := engine.HandleTransactionEvent(ctx, amqp.NewTransactionEventMessage(updated, amqp.ActionUpdated)); err != nil {
		t.Fatalf("HandleTransactionEvent after reclassify: %v", err)
	}

	got, err = engine.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if got.Spent.Cents != 0 {
		t.Errorf("spent after reclassify = %d, want 0", got.Spent.Cents)
	}
}

func TestRecalculateAllPagesThroughBudgets(t *testing.T) {
	repo := newTestStorage(t)
	engine := NewBudgetEngine(repo, nil, 6*time.Hour, 30*24*time.Hour, 2)
	ctx := context.Background()

	// More budgets than one batch holds.
	categories := []string{"groceries", "dining", "transport", "utilities", "fun"}
	ids := make(map[string]string, len(categories))
	for _, c := range categories {
		b, err := engine.CreateBudget(ctx, core.Budget{
			UserID:   "alice",
			Category: c,
			Limit:    core.Money{Cents: 50000},
		})
		if err != nil {
			t.Fatalf("CreateBudget %s: %v", c, err)
		}
		ids[c] = b.ID
	}
	for _, c := range categories {
		if _, err := repo.CreateTransaction(ctx, expense("alice", c, 1000, today())); err != nil {
			t.Fatalf("CreateTransaction %s: %v", c, err)
		}
	}

	if err := engine.RecalculateAll(ctx); err != nil {
		t.Fatalf("RecalculateAll: %v", err)
	}
	for _, c := range categories {
		b, err := engine.GetBudget(ctx, ids[c])
		if err != nil {
			t.Fatalf("GetBudget %s: %v", c, err)
		}
		if b.Spent.Cents != 1000 {
			t.Errorf("spent for %s = %d, want 1000", c, b.Spent.Cents)
		}
	}
}

func TestNotifierFailureDoesNotFailRecalculation(t *testing.T) {
	engine, repo := newTestEngine(t, &fakeNotifier{err: errors.New("telegram down")})
	ctx := context.Background()

	if _, err := engine.CreateBudget(ctx, core.Budget{
		UserID:   "alice",
		Category: "groceries",
		Limit:    core.Money{Cents: 10000},
	}); err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	tx, err := repo.CreateTransaction(ctx, expense("alice", "groceries", 9500, today()))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := engine.HandleTransactionEvent(ctx, amqp.NewTransactionEventMessage(tx, amqp.ActionCreated)); err != nil {
		t.Fatalf("HandleTransactionEvent: %v", err)
	}

	alerts, err := engine.ListAlerts(ctx, "alice", false)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Notified {
		t.Error("alert must not be marked notified when delivery failed")
	}
}

func TestArchiveEndedRollsBudgetForward(t *testing.T) {
	engine, repo := newTestEngine(t, nil)
	ctx := context.Background()

	b, err := engine.CreateBudget(ctx, core.Budget{
		UserID:   "alice",
		Category: "groceries",
		Limit:    core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	// Force the period into the past.
	b.PeriodStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.PeriodEnd = time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	if _, err := repo.UpdateBudget(ctx, b); err != nil {
		t.Fatalf("UpdateBudget: %v", err)
	}

	now := time.Now()
	if err := engine.ArchiveEnded(ctx, now); err != nil {
		t.Fatalf("ArchiveEnded: %v", err)
	}

	got, err := engine.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if !got.IsCurrentPeriod(now) {
		t.Errorf("budget not in current period: %v .. %v", got.PeriodStart, got.PeriodEnd)
	}

	history, err := engine.ListHistory(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history rows = %d, want 1", len(history))
	}
}

func TestCheckPeriodEndingFiresOncePerPeriod(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, repo := newTestEngine(t, notifier)
	ctx := context.Background()

	b, err := engine.CreateBudget(ctx, core.Budget{
		UserID:   "alice",
		Category: "groceries",
		Limit:    core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	// Pin the window so "now" sits exactly three days before the end.
	b.PeriodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b.PeriodEnd = time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	if _, err := repo.UpdateBudget(ctx, b); err != nil {
		t.Fatalf("UpdateBudget: %v", err)
	}

	now := time.Date(2026, 3, 28, 12, 0, 0, 0, time.UTC)
	if err := engine.CheckPeriodEnding(ctx, now); err != nil {
		t.Fatalf("CheckPeriodEnding: %v", err)
	}
	if err := engine.CheckPeriodEnding(ctx, now.Add(time.Hour)); err != nil {
		t.Fatalf("second CheckPeriodEnding: %v", err)
	}

	alerts, err := engine.ListAlerts(ctx, "alice", false)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	var periodEnding int
	for _, a := range alerts {
		if a.Type == core.AlertPeriodEnding {
			periodEnding++
		}
	}
	if periodEnding != 1 {
		t.Errorf("period_ending alerts = %d, want 1", periodEnding)
	}
}

func TestProcessIncomeAutoSavesAndAllocates(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewSavingsService(repo)
	ctx := context.Background()

	mkGoal := func(name string, percent int64, priority core.Priority) core.SavingsGoal {
		g, err := svc.CreateGoal(ctx, core.SavingsGoal{
			UserID:              "alice",
			Name:                name,
			TargetAmount:        core.Money{Cents: 100000},
			Priority:            priority,
			AutoAllocateEnabled: true,
			AutoAllocatePercent: decimal.NewFromInt(percent),
		})
		if err != nil {
			t.Fatalf("CreateGoal %s: %v", name, err)
		}
		return g
	}
	emergency := mkGoal("emergency", 60, core.PriorityUrgent)
	vacation := mkGoal("vacation", 40, core.PriorityLow)

	income := core.Transaction{
		ID:          "tx-income",
		UserID:      "alice",
		Amount:      core.Money{Cents: 300000},
		Description: "March salary",
		Category:    "salary",
		Type:        core.Income,
		Date:        today(),
	}
	stored, err := repo.CreateTransaction(ctx, income)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := svc.ProcessIncome(ctx, stored); err != nil {
		t.Fatalf("ProcessIncome: %v", err)
	}

	// 20% of 300000 = 60000 auto-saved, fully allocated 60/40.
	e, err := repo.GetGoal(ctx, emergency.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if e.CurrentAmount.Cents != 36000 {
		t.Errorf("emergency = %d, want 36000", e.CurrentAmount.Cents)
	}
	v, err := repo.GetGoal(ctx, vacation.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if v.CurrentAmount.Cents != 24000 {
		t.Errorf("vacation = %d, want 24000", v.CurrentAmount.Cents)
	}

	a, err := repo.GetAccountByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccountByUser: %v", err)
	}
	if a.Balance.Cents != 0 {
		t.Errorf("account balance = %d, want 0 after full allocation", a.Balance.Cents)
	}
}

func TestProcessIncomeRespectsDisabledAutoSave(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewSavingsService(repo)
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, "alice", decimal.NewFromInt(20), false); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	income := core.Transaction{
		UserID:      "alice",
		Amount:      core.Money{Cents: 100000},
		Description: "salary",
		Category:    "salary",
		Type:        core.Income,
		Date:        today(),
	}
	stored, err := repo.CreateTransaction(ctx, income)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := svc.ProcessIncome(ctx, stored); err != nil {
		t.Fatalf("ProcessIncome: %v", err)
	}

	a, err := repo.GetAccountByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccountByUser: %v", err)
	}
	if a.Balance.Cents != 0 {
		t.Errorf("balance = %d, want 0 with auto-save disabled", a.Balance.Cents)
	}
}

func TestGoalTransfersMoveThroughAccount(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewSavingsService(repo)
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, "alice", 50000, "initial"); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	g, err := svc.CreateGoal(ctx, core.SavingsGoal{
		UserID:       "alice",
		Name:         "laptop",
		TargetAmount: core.Money{Cents: 100000},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	if _, err := svc.AddToGoal(ctx, g.ID, 30000, "saving up"); err != nil {
		t.Fatalf("AddToGoal: %v", err)
	}
	a, _ := repo.GetAccountByUser(ctx, "alice")
	if a.Balance.Cents != 20000 {
		t.Errorf("account after transfer = %d, want 20000", a.Balance.Cents)
	}

	// Cannot fund a goal beyond the account balance.
	if _, err := svc.AddToGoal(ctx, g.ID, 50000, "too much"); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Errorf("AddToGoal overdraw: %v, want ErrInsufficientFunds", err)
	}

	if _, err := svc.WithdrawFromGoal(ctx, g.ID, 10000, "changed my mind"); err != nil {
		t.Fatalf("WithdrawFromGoal: %v", err)
	}
	a, _ = repo.GetAccountByUser(ctx, "alice")
	if a.Balance.Cents != 30000 {
		t.Errorf("account after goal withdrawal = %d, want 30000", a.Balance.Cents)
	}
}

func TestMonthlyReport(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewSavingsService(repo)
	ctx := context.Background()

	now := time.Now()
	income := core.Transaction{
		UserID:      "alice",
		Amount:      core.Money{Cents: 200000},
		Description: "salary",
		Category:    "salary",
		Type:        core.Income,
		Date:        today(),
	}
	stored, err := repo.CreateTransaction(ctx, income)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, expense("alice", "groceries", 30000, today())); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := svc.ProcessIncome(ctx, stored); err != nil {
		t.Fatalf("ProcessIncome: %v", err)
	}

	report, err := svc.MonthlyReport(ctx, "alice", now.Year(), int(now.Month()))
	if err != nil {
		t.Fatalf("MonthlyReport: %v", err)
	}
	if report.Income.Cents != 200000 || report.Expenses.Cents != 30000 || report.Net.Cents != 170000 {
		t.Errorf("report = %+v", report)
	}
	if report.AutoSaved.Cents != 40000 {
		t.Errorf("auto saved = %d, want 40000", report.AutoSaved.Cents)
	}
}

func TestBillServiceAdvancePaid(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewBillService(repo)
	ctx := context.Background()

	bill, err := svc.Create(ctx, core.RecurringBill{
		UserID:  "alice",
		Name:    "rent",
		Amount:  core.Money{Cents: 90000},
		DueDate: core.NewDate(2026, 3, 1),
		Paid:    true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.AdvancePaid(ctx, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("AdvancePaid: %v", err)
	}

	got, err := svc.Get(ctx, bill.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Paid {
		t.Error("bill should be unpaid after advancing")
	}
	if !got.DueDate.Equal(core.NewDate(2026, 4, 1).Time) {
		t.Errorf("due date = %v, want 2026-04-01", got.DueDate)
	}
}

func TestBillServiceStats(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewBillService(repo)
	ctx := context.Background()

	mk := func(name string, cents int64, freq core.BillFrequency) {
		t.Helper()
		if _, err := svc.Create(ctx, core.RecurringBill{
			UserID:    "alice",
			Name:      name,
			Amount:    core.Money{Cents: cents},
			DueDate:   core.NewDate(2026, 4, 1),
			Frequency: freq,
		}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}
	mk("rent", 90000, core.MonthlyBill)
	mk("gym", 1000, core.WeeklyBill)
	mk("insurance", 120000, core.YearlyBill)

	stats, err := svc.Stats(ctx, "alice", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	// 90000 + 1000*4.33 + 120000/12 = 90000 + 4330 + 10000
	if stats.MonthlyEquivalent.Cents != 104330 {
		t.Errorf("monthly equivalent = %d, want 104330", stats.MonthlyEquivalent.Cents)
	}
	if stats.TotalCount != 3 || stats.UnpaidCount != 3 {
		t.Errorf("counts = %+v", stats)
	}
}
