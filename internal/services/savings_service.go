package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// SavingsService manages the per-user savings account, the goals funded
// from it, and the automatic saving that skims a slice off every income.
type SavingsService struct {
	storage *storage.SQLiteRepository
}

func NewSavingsService(storage *storage.SQLiteRepository) *SavingsService {
	return &SavingsService{storage: storage}
}

func (s *SavingsService) GetAccount(ctx context.Context, userID string) (core.SavingsAccount, error) {
	return s.storage.GetOrCreateAccount(ctx, userID)
}

// UpdateSettings changes the auto-save percentage and switch.
func (s *SavingsService) UpdateSettings(ctx context.Context, userID string, percent decimal.Decimal, enabled bool) (core.SavingsAccount, error) {
	if err := core.ValidatePercent(percent); err != nil {
		return core.SavingsAccount{}, err
	}
	a, err := s.storage.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return core.SavingsAccount{}, err
	}
	a.AutoSavePercent = percent
	a.AutoSaveEnabled = enabled
	return s.storage.UpdateAccountSettings(ctx, a)
}

// Deposit moves cents into the savings account by hand.
func (s *SavingsService) Deposit(ctx context.Context, userID string, cents int64, description string) (core.SavingsTransaction, error) {
	if cents <= 0 {
		return core.SavingsTransaction{}, core.ErrInvalidAmount
	}
	a, err := s.storage.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return core.SavingsTransaction{}, err
	}
	return s.storage.DepositToAccount(ctx, a.ID, cents, core.SavingsDeposit, description, "")
}

// Withdraw moves cents out of the savings account.
func (s *SavingsService) Withdraw(ctx context.Context, userID string, cents int64, description string) (core.SavingsTransaction, error) {
	if cents <= 0 {
		return core.SavingsTransaction{}, core.ErrInvalidAmount
	}
	a, err := s.storage.GetAccountByUser(ctx, userID)
	if err != nil {
		return core.SavingsTransaction{}, err
	}
	return s.storage.WithdrawFromAccount(ctx, a.ID, cents, core.SavingsWithdrawal, description)
}

func (s *SavingsService) ListAccountTransactions(ctx context.Context, userID string, limit int) ([]core.SavingsTransaction, error) {
	a, err := s.storage.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.storage.ListSavingsTransactions(ctx, a.ID, limit)
}

// HandleTransactionEvent skims the auto-save cut off newly created
// income and spreads it across auto-allocate goals. Updates and deletes
// do not claw savings back.
func (s *SavingsService) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	if msg.Type != core.Income || msg.Action != amqp.ActionCreated {
		return nil
	}
	t, err := s.storage.GetTransaction(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		return nil // deleted before we got here
	}
	if err != nil {
		return err
	}
	return s.ProcessIncome(ctx, t)
}

// ProcessIncome applies the account's auto-save percentage to an income
// transaction: the cut lands in the account, then gets allocated across
// active auto-allocate goals proportionally to their percentages.
func (s *SavingsService) ProcessIncome(ctx context.Context, t core.Transaction) error {
	if t.Type != core.Income {
		return nil
	}

	a, err := s.storage.GetOrCreateAccount(ctx, t.UserID)
	if err != nil {
		return err
	}
	if !a.AutoSaveEnabled || !a.AutoSavePercent.IsPositive() {
		return nil
	}

	cut := core.ApplyPercent(t.Amount.Cents, a.AutoSavePercent)
	if cut <= 0 {
		return nil
	}

	desc := fmt.Sprintf("Auto-save %s%% of %q", a.AutoSavePercent.String(), t.Description)
	if _, err := s.storage.DepositToAccount(ctx, a.ID, cut, core.SavingsAutoSave, desc, t.ID); err != nil {
		return fmt.Errorf("auto-save deposit: %w", err)
	}
	slog.InfoContext(ctx, "Auto-saved from income",
		"user_id", t.UserID, "transaction_id", t.ID, "cents", cut)

	return s.allocateToGoals(ctx, a.ID, t.UserID, cut)
}

func (s *SavingsService) allocateToGoals(ctx context.Context, accountID, userID string, pot int64) error {
	goals, err := s.storage.ListAutoAllocateGoals(ctx, userID)
	if err != nil {
		return err
	}
	shares := core.PlanAllocations(pot, goals)
	for _, share := range shares {
		if _, err := s.storage.WithdrawFromAccount(ctx, accountID, share.Cents, core.SavingsTransfer, "Auto allocation to goal"); err != nil {
			return fmt.Errorf("transfer to goal %s: %w", share.GoalID, err)
		}
		if _, err := s.storage.AddGoalFunds(ctx, share.GoalID, share.Cents, core.SourceAutoSave, core.AllocAuto, "Automatic allocation"); err != nil {
			return fmt.Errorf("allocate to goal %s: %w", share.GoalID, err)
		}
		slog.InfoContext(ctx, "Allocated savings to goal",
			"goal_id", share.GoalID, "cents", share.Cents)
	}
	return nil
}

// --- goals ---

func (s *SavingsService) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if g.Status == "" {
		g.Status = core.StatusActive
	}
	if g.Priority == "" {
		g.Priority = core.PriorityMedium
	}
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	return s.storage.CreateGoal(ctx, g)
}

func (s *SavingsService) GetGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	return s.storage.GetGoal(ctx, id)
}

func (s *SavingsService) ListGoals(ctx context.Context, userID string, status core.Status) ([]core.SavingsGoal, error) {
	return s.storage.ListGoals(ctx, userID, status)
}

func (s *SavingsService) UpdateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	return s.storage.UpdateGoal(ctx, g)
}

func (s *SavingsService) DeleteGoal(ctx context.Context, id string) error {
	return s.storage.DeleteGoal(ctx, id)
}

// AddToGoal moves cents from the savings account into a goal.
func (s *SavingsService) AddToGoal(ctx context.Context, goalID string, cents int64, description string) (core.SavingsAllocation, error) {
	if cents <= 0 {
		return core.SavingsAllocation{}, core.ErrInvalidAmount
	}
	g, err := s.storage.GetGoal(ctx, goalID)
	if err != nil {
		return core.SavingsAllocation{}, err
	}
	a, err := s.storage.GetOrCreateAccount(ctx, g.UserID)
	if err != nil {
		return core.SavingsAllocation{}, err
	}
	if _, err := s.storage.WithdrawFromAccount(ctx, a.ID, cents, core.SavingsTransfer, "Transfer to goal "+g.Name); err != nil {
		return core.SavingsAllocation{}, err
	}
	return s.storage.AddGoalFunds(ctx, goalID, cents, core.SourceManual, core.AllocDeposit, description)
}

// WithdrawFromGoal moves cents from a goal back into the account.
func (s *SavingsService) WithdrawFromGoal(ctx context.Context, goalID string, cents int64, description string) (core.SavingsAllocation, error) {
	if cents <= 0 {
		return core.SavingsAllocation{}, core.ErrInvalidAmount
	}
	g, err := s.storage.GetGoal(ctx, goalID)
	if err != nil {
		return core.SavingsAllocation{}, err
	}
	alloc, err := s.storage.WithdrawGoalFunds(ctx, goalID, cents, description)
	if err != nil {
		return core.SavingsAllocation{}, err
	}
	a, err := s.storage.GetOrCreateAccount(ctx, g.UserID)
	if err != nil {
		return core.SavingsAllocation{}, err
	}
	if _, err := s.storage.DepositToAccount(ctx, a.ID, cents, core.SavingsTransfer, "Transfer from goal "+g.Name, ""); err != nil {
		return core.SavingsAllocation{}, err
	}
	return alloc, nil
}

func (s *SavingsService) ListAllocations(ctx context.Context, goalID string, limit int) ([]core.SavingsAllocation, error) {
	return s.storage.ListAllocations(ctx, goalID, limit)
}

// MonthlyReport assembles a user's month: cash flow, auto-saved total
// and goals completed.
func (s *SavingsService) MonthlyReport(ctx context.Context, userID string, year, month int) (core.MonthlyReport, error) {
	summary, err := s.storage.MonthSummary(ctx, userID, year, month)
	if err != nil {
		return core.MonthlyReport{}, err
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)

	autoSaved, err := s.storage.SumAutoSaved(ctx, userID, from, to)
	if err != nil {
		return core.MonthlyReport{}, err
	}
	completed, err := s.storage.CountGoalsCompleted(ctx, userID, from, to)
	if err != nil {
		return core.MonthlyReport{}, err
	}

	return core.MonthlyReport{
		UserID:         userID,
		Year:           year,
		Month:          month,
		Income:         summary.Income,
		Expenses:       summary.Expenses,
		Net:            summary.Net,
		AutoSaved:      core.Money{Cents: autoSaved},
		GoalsCompleted: completed,
	}, nil
}
