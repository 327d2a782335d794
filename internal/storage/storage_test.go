package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedTransaction(t *testing.T, repo *SQLiteRepository, userID, category string, txType core.TransactionType, cents int64, date core.Date) core.Transaction {
	t.Helper()
	tx, err := repo.CreateTransaction(context.Background(), core.Transaction{
		UserID:      userID,
		Amount:      core.Money{Cents: cents},
		Description: "seed",
		Category:    category,
		Type:        txType,
		Date:        date,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return tx
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := seedTransaction(t, repo, "alice", "groceries", core.Expense, 4250, core.NewDate(2026, 3, 10))

	got, err := repo.GetTransaction(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Amount.Cents != 4250 || got.Category != "groceries" || got.Type != core.Expense {
		t.Errorf("got %+v", got)
	}
	if !got.Date.Equal(core.NewDate(2026, 3, 10).Time) {
		t.Errorf("date = %v", got.Date)
	}

	got.Amount.Cents = 5000
	if _, err := repo.UpdateTransaction(ctx, got); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	deleted, err := repo.DeleteTransaction(ctx, got.ID)
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if deleted.Amount.Cents != 5000 {
		t.Errorf("deleted amount = %d, want 5000", deleted.Amount.Cents)
	}
	if _, err := repo.GetTransaction(ctx, got.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("get after delete: %v, want ErrNotFound", err)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedTransaction(t, repo, "alice", "groceries", core.Expense, 1000, core.NewDate(2026, 3, 1))
	seedTransaction(t, repo, "alice", "rent", core.Expense, 90000, core.NewDate(2026, 3, 5))
	seedTransaction(t, repo, "alice", "salary", core.Income, 300000, core.NewDate(2026, 3, 25))
	seedTransaction(t, repo, "bob", "groceries", core.Expense, 2000, core.NewDate(2026, 3, 2))

	all, err := repo.ListTransactions(ctx, TransactionFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	expenses, err := repo.ListTransactions(ctx, TransactionFilter{UserID: "alice", Type: core.Expense})
	if err != nil {
		t.Fatalf("ListTransactions type filter: %v", err)
	}
	if len(expenses) != 2 {
		t.Errorf("expenses = %d, want 2", len(expenses))
	}

	ranged, err := repo.ListTransactions(ctx, TransactionFilter{
		UserID: "alice",
		From:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ListTransactions range filter: %v", err)
	}
	if len(ranged) != 1 || ranged[0].Category != "rent" {
		t.Errorf("ranged = %+v", ranged)
	}
}

func TestSumExpenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedTransaction(t, repo, "alice", "groceries", core.Expense, 1500, core.NewDate(2026, 3, 1))
	seedTransaction(t, repo, "alice", "groceries", core.Expense, 2500, core.NewDate(2026, 3, 15))
	seedTransaction(t, repo, "alice", "groceries", core.Income, 9999, core.NewDate(2026, 3, 16))
	seedTransaction(t, repo, "alice", "groceries", core.Expense, 7777, core.NewDate(2026, 4, 1))
	seedTransaction(t, repo, "alice", "rent", core.Expense, 90000, core.NewDate(2026, 3, 5))

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	total, err := repo.SumExpenses(ctx, "alice", "groceries", from, to)
	if err != nil {
		t.Fatalf("SumExpenses: %v", err)
	}
	if total != 4000 {
		t.Errorf("total = %d, want 4000", total)
	}

	empty, err := repo.SumExpenses(ctx, "alice", "travel", from, to)
	if err != nil {
		t.Fatalf("SumExpenses empty: %v", err)
	}
	if empty != 0 {
		t.Errorf("empty category total = %d, want 0", empty)
	}
}

func TestMonthSummary(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedTransaction(t, repo, "alice", "salary", core.Income, 300000, core.NewDate(2026, 3, 25))
	seedTransaction(t, repo, "alice", "groceries", core.Expense, 40000, core.NewDate(2026, 3, 10))
	seedTransaction(t, repo, "alice", "rent", core.Expense, 90000, core.NewDate(2026, 3, 1))

	s, err := repo.MonthSummary(ctx, "alice", 2026, 3)
	if err != nil {
		t.Fatalf("MonthSummary: %v", err)
	}
	if s.Income.Cents != 300000 || s.Expenses.Cents != 130000 || s.Net.Cents != 170000 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.ByCategory) != 2 || s.ByCategory[0].Name != "rent" {
		t.Errorf("by category = %+v", s.ByCategory)
	}
}

func testStoredBudget(userID, category string) core.Budget {
	start, end := core.Monthly.Window(time.Now())
	return core.Budget{
		UserID:         userID,
		Category:       category,
		Limit:          core.Money{Cents: 50000},
		Period:         core.Monthly,
		AlertThreshold: core.DefaultAlertThreshold,
		Status:         core.StatusActive,
		PeriodStart:    start,
		PeriodEnd:      end,
	}
}

func TestBudgetCRUDAndDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b, err := repo.CreateBudget(ctx, testStoredBudget("alice", "groceries"))
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	if _, err := repo.CreateBudget(ctx, testStoredBudget("alice", "groceries")); !errors.Is(err, core.ErrDuplicateBudget) {
		t.Errorf("duplicate create: %v, want ErrDuplicateBudget", err)
	}

	got, err := repo.GetActiveBudget(ctx, "alice", "groceries")
	if err != nil {
		t.Fatalf("GetActiveBudget: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("active budget id = %s, want %s", got.ID, b.ID)
	}

	if err := repo.UpdateBudgetSpent(ctx, b.ID, 32000); err != nil {
		t.Fatalf("UpdateBudgetSpent: %v", err)
	}
	got, err = repo.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if got.Spent.Cents != 32000 {
		t.Errorf("spent = %d, want 32000", got.Spent.Cents)
	}
}

func TestAdvanceBudgetPeriodWritesHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := testStoredBudget("alice", "groceries")
	b.PeriodStart = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	b.PeriodEnd = time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)
	b, err := repo.CreateBudget(ctx, b)
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	if err := repo.UpdateBudgetSpent(ctx, b.ID, 45000); err != nil {
		t.Fatalf("UpdateBudgetSpent: %v", err)
	}
	b.Spent.Cents = 45000

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	advanced, err := repo.AdvanceBudgetPeriod(ctx, b, now)
	if err != nil {
		t.Fatalf("AdvanceBudgetPeriod: %v", err)
	}
	if advanced.Spent.Cents != 0 {
		t.Errorf("spent after advance = %d, want 0", advanced.Spent.Cents)
	}
	wantStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !advanced.PeriodStart.Equal(wantStart) {
		t.Errorf("period start = %v, want %v", advanced.PeriodStart, wantStart)
	}

	history, err := repo.ListBudgetHistory(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListBudgetHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].Spent.Cents != 45000 {
		t.Errorf("history spent = %d, want 45000", history[0].Spent.Cents)
	}
	// 45000/50000 = 90% used, score 100 - (90-80)*5 = 50.
	if !history[0].PerformanceScore.Equal(decimal.NewFromInt(50)) {
		t.Errorf("performance score = %s, want 50", history[0].PerformanceScore)
	}
}

func TestAlertDedupAndCleanup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b, err := repo.CreateBudget(ctx, testStoredBudget("alice", "groceries"))
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	alert, err := repo.CreateAlert(ctx, core.BudgetAlert{
		BudgetID: b.ID,
		Type:     core.AlertThreshold,
		Message:  "groceries at 85% of budget",
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	recent, err := repo.HasRecentAlert(ctx, b.ID, core.AlertThreshold, time.Now().Add(-6*time.Hour))
	if err != nil {
		t.Fatalf("HasRecentAlert: %v", err)
	}
	if !recent {
		t.Error("expected a recent threshold alert")
	}

	otherType, err := repo.HasRecentAlert(ctx, b.ID, core.AlertExceeded, time.Now().Add(-6*time.Hour))
	if err != nil {
		t.Fatalf("HasRecentAlert other type: %v", err)
	}
	if otherType {
		t.Error("exceeded alert should not dedup against threshold")
	}

	unread, err := repo.ListAlerts(ctx, "alice", true)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("unread = %d, want 1", len(unread))
	}

	if err := repo.MarkAlertRead(ctx, alert.ID); err != nil {
		t.Fatalf("MarkAlertRead: %v", err)
	}
	n, err := repo.DeleteReadAlertsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteReadAlertsBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestGetOrCreateAccountIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.GetOrCreateAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateAccount: %v", err)
	}
	if !first.AutoSavePercent.Equal(core.DefaultAutoSavePercent) || !first.AutoSaveEnabled {
		t.Errorf("defaults = %+v", first)
	}

	second, err := repo.GetOrCreateAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("second GetOrCreateAccount: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created a new account: %s != %s", second.ID, first.ID)
	}
}

func TestAccountDepositWithdraw(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.GetOrCreateAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateAccount: %v", err)
	}

	ledger, err := repo.DepositToAccount(ctx, a.ID, 60000, core.SavingsAutoSave, "auto-save from salary", "tx-1")
	if err != nil {
		t.Fatalf("DepositToAccount: %v", err)
	}
	if ledger.BalanceBefore.Cents != 0 || ledger.BalanceAfter.Cents != 60000 {
		t.Errorf("ledger = %+v", ledger)
	}

	if _, err := repo.WithdrawFromAccount(ctx, a.ID, 70000, core.SavingsWithdrawal, "too much"); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Errorf("overdraw: %v, want ErrInsufficientFunds", err)
	}

	if _, err := repo.WithdrawFromAccount(ctx, a.ID, 10000, core.SavingsWithdrawal, "cash out"); err != nil {
		t.Fatalf("WithdrawFromAccount: %v", err)
	}

	a, err = repo.GetAccountByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccountByUser: %v", err)
	}
	if a.Balance.Cents != 50000 {
		t.Errorf("balance = %d, want 50000", a.Balance.Cents)
	}

	rows, err := repo.ListSavingsTransactions(ctx, a.ID, 0)
	if err != nil {
		t.Fatalf("ListSavingsTransactions: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("ledger rows = %d, want 2", len(rows))
	}
}

func TestGoalFundsCompletionFlip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	g, err := repo.CreateGoal(ctx, core.SavingsGoal{
		UserID:       "alice",
		Name:         "Emergency fund",
		TargetAmount: core.Money{Cents: 100000},
		Status:       core.StatusActive,
		Priority:     core.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	if _, err := repo.AddGoalFunds(ctx, g.ID, 100000, core.SourceManual, core.AllocDeposit, "lump sum"); err != nil {
		t.Fatalf("AddGoalFunds: %v", err)
	}

	got, err := repo.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if got.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed_at not set")
	}

	if _, err := repo.WithdrawGoalFunds(ctx, g.ID, 30000, "partial withdrawal"); err != nil {
		t.Fatalf("WithdrawGoalFunds: %v", err)
	}
	got, err = repo.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGoal after withdraw: %v", err)
	}
	if got.Status != core.StatusActive {
		t.Errorf("status after withdraw = %s, want active", got.Status)
	}
	if got.CurrentAmount.Cents != 70000 {
		t.Errorf("current = %d, want 70000", got.CurrentAmount.Cents)
	}

	if _, err := repo.WithdrawGoalFunds(ctx, g.ID, 999999, "overdraw"); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Errorf("overdraw: %v, want ErrInsufficientFunds", err)
	}
}

func TestListAutoAllocateGoalsOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mk := func(name string, priority core.Priority, percent int64, enabled bool) {
		t.Helper()
		_, err := repo.CreateGoal(ctx, core.SavingsGoal{
			UserID:              "alice",
			Name:                name,
			TargetAmount:        core.Money{Cents: 100000},
			Status:              core.StatusActive,
			Priority:            priority,
			AutoAllocateEnabled: enabled,
			AutoAllocatePercent: decimal.NewFromInt(percent),
		})
		if err != nil {
			t.Fatalf("CreateGoal %s: %v", name, err)
		}
	}
	mk("vacation", core.PriorityLow, 30, true)
	mk("emergency", core.PriorityUrgent, 50, true)
	mk("laptop", core.PriorityHigh, 0, true)
	mk("disabled", core.PriorityUrgent, 40, false)

	goals, err := repo.ListAutoAllocateGoals(ctx, "alice")
	if err != nil {
		t.Fatalf("ListAutoAllocateGoals: %v", err)
	}
	if len(goals) != 2 {
		t.Fatalf("len = %d, want 2", len(goals))
	}
	if goals[0].Name != "emergency" || goals[1].Name != "vacation" {
		t.Errorf("order = %s, %s", goals[0].Name, goals[1].Name)
	}
}

func TestBillsLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	mk := func(name string, due core.Date, paid bool) core.RecurringBill {
		t.Helper()
		b, err := repo.CreateBill(ctx, core.RecurringBill{
			UserID:    "alice",
			Name:      name,
			Amount:    core.Money{Cents: 5000},
			DueDate:   due,
			Frequency: core.MonthlyBill,
			Paid:      paid,
		})
		if err != nil {
			t.Fatalf("CreateBill %s: %v", name, err)
		}
		return b
	}
	mk("electricity", core.NewDate(2026, 3, 10), false) // overdue
	mk("internet", core.NewDate(2026, 3, 18), false)    // upcoming
	paid := mk("rent", core.NewDate(2026, 3, 1), true)  // paid, due passed
	mk("insurance", core.NewDate(2026, 5, 1), false)    // far out

	overdue, err := repo.ListOverdueBills(ctx, "alice", now)
	if err != nil {
		t.Fatalf("ListOverdueBills: %v", err)
	}
	if len(overdue) != 1 || overdue[0].Name != "electricity" {
		t.Errorf("overdue = %+v", overdue)
	}

	upcoming, err := repo.ListUpcomingBills(ctx, "alice", now, 7)
	if err != nil {
		t.Fatalf("ListUpcomingBills: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].Name != "internet" {
		t.Errorf("upcoming = %+v", upcoming)
	}

	ready, err := repo.ListPaidBillsDueBefore(ctx, now)
	if err != nil {
		t.Fatalf("ListPaidBillsDueBefore: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != paid.ID {
		t.Errorf("ready to advance = %+v", ready)
	}

	advanced, err := repo.AdvanceBill(ctx, ready[0])
	if err != nil {
		t.Fatalf("AdvanceBill: %v", err)
	}
	if advanced.Paid {
		t.Error("advanced bill should be unpaid")
	}
	if !advanced.DueDate.Equal(core.NewDate(2026, 4, 1).Time) {
		t.Errorf("advanced due date = %v", advanced.DueDate)
	}

	n, err := repo.BulkSetPaid(ctx, "alice", true)
	if err != nil {
		t.Fatalf("BulkSetPaid: %v", err)
	}
	if n != 4 {
		t.Errorf("bulk paid = %d, want 4", n)
	}
}

func TestBudgetTemplateUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tmpl := core.BudgetTemplate{
		Name:        "starter",
		Description: "A basic monthly split",
		Default:     true,
		Items: []core.BudgetTemplateItem{
			{Category: "groceries", Limit: core.Money{Cents: 40000}, Period: core.Monthly, AlertThreshold: core.DefaultAlertThreshold},
			{Category: "rent", Limit: core.Money{Cents: 90000}, Period: core.Monthly, AlertThreshold: core.DefaultAlertThreshold},
		},
	}
	if err := repo.UpsertBudgetTemplate(ctx, tmpl); err != nil {
		t.Fatalf("UpsertBudgetTemplate: %v", err)
	}

	tmpl.Items = tmpl.Items[:1]
	tmpl.Items[0].Limit.Cents = 45000
	if err := repo.UpsertBudgetTemplate(ctx, tmpl); err != nil {
		t.Fatalf("second UpsertBudgetTemplate: %v", err)
	}

	got, err := repo.GetBudgetTemplate(ctx, "starter")
	if err != nil {
		t.Fatalf("GetBudgetTemplate: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Limit.Cents != 45000 {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestTimeFormatOrdersLexicographically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(500 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + 42*time.Nanosecond),
	}
	for i := 1; i < len(times); i++ {
		prev, cur := fmtTime(times[i-1]), fmtTime(times[i])
		if len(prev) != len(cur) {
			t.Errorf("widths differ: %q vs %q", prev, cur)
		}
		if prev >= cur {
			t.Errorf("string order broken: %q >= %q", prev, cur)
		}
		if got := parseTime(cur); !got.Equal(times[i]) {
			t.Errorf("round trip: got %v, want %v", got, times[i])
		}
	}
}
