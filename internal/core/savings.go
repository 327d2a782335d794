package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SavingsDeposit    SavingsTxType = "deposit"
	SavingsWithdrawal SavingsTxType = "withdrawal"
	SavingsAutoSave   SavingsTxType = "auto_save"
	SavingsTransfer   SavingsTxType = "transfer"
)

const (
	AllocDeposit    AllocationType = "deposit"
	AllocWithdrawal AllocationType = "withdrawal"
	AllocAuto       AllocationType = "auto_allocation"
	AllocTransfer   AllocationType = "transfer"
)

const (
	SourceManual   AllocationSource = "manual"
	SourceAutoSave AllocationSource = "auto_save"
	SourceTransfer AllocationSource = "transfer"
	SourceInterest AllocationSource = "interest"
)

// DefaultAutoSavePercent is applied when an account is created lazily on
// the first income transaction.
var DefaultAutoSavePercent = decimal.NewFromInt(20)

type (
	SavingsTxType string

	AllocationType string

	AllocationSource string

	// SavingsAccount is the per-user pot automatic savings land in
	// before being allocated to goals. One per user.
	SavingsAccount struct {
		ID              string
		UserID          string
		Balance         Money
		AutoSavePercent decimal.Decimal
		AutoSaveEnabled bool
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	SavingsGoal struct {
		ID                   string
		UserID               string
		Name                 string
		Description          string
		TargetAmount         Money
		CurrentAmount        Money
		Status               Status
		Priority             Priority
		TargetDate           Date
		AutoAllocateEnabled  bool
		AutoAllocatePercent  decimal.Decimal
		CreatedAt            time.Time
		UpdatedAt            time.Time
		CompletedAt          time.Time
	}

	// SavingsTransaction is an account ledger row with the balance on
	// both sides of the movement.
	SavingsTransaction struct {
		ID            string
		AccountID     string
		Type          SavingsTxType
		Amount        Money
		Description   string
		BalanceBefore Money
		BalanceAfter  Money
		ReferenceTxID string
		CreatedAt     time.Time
	}

	// SavingsAllocation is a goal ledger row.
	SavingsAllocation struct {
		ID            string
		GoalID        string
		Type          AllocationType
		Source        AllocationSource
		Amount        Money
		Description   string
		BalanceBefore Money
		BalanceAfter  Money
		CreatedAt     time.Time
	}

	SavingsTemplate struct {
		ID              string
		Name            string
		Description     string
		SuggestedAmount Money
		TimelineMonths  int
		Priority        Priority
		Category        string
		Default         bool
	}

	// AllocationShare is one goal's cut of an auto-save pot.
	AllocationShare struct {
		GoalID string
		Cents  int64
	}
)

func (a SavingsAccount) CanWithdraw(cents int64) bool {
	return cents > 0 && a.Balance.Cents >= cents
}

func (a SavingsAccount) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return ErrEmptyUser
	}
	return ValidatePercent(a.AutoSavePercent)
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.UserID) == "" {
		return ErrEmptyUser
	}
	if len(strings.TrimSpace(g.Name)) == 0 {
		return ErrEmptyDescription
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return err
	}
	if err := g.Status.Validate(); err != nil {
		return err
	}
	if err := g.Priority.Validate(); err != nil {
		return err
	}
	return ValidatePercent(g.AutoAllocatePercent)
}

// Remaining never goes negative even if an allocation overshot.
func (g SavingsGoal) Remaining() int64 {
	if g.CurrentAmount.Cents >= g.TargetAmount.Cents {
		return 0
	}
	return g.TargetAmount.Cents - g.CurrentAmount.Cents
}

// ProgressPercent is capped at 100. A zero target counts as complete.
func (g SavingsGoal) ProgressPercent() decimal.Decimal {
	if g.TargetAmount.Cents == 0 {
		return hundred
	}
	return decimal.Min(hundred, PercentOf(g.CurrentAmount.Cents, g.TargetAmount.Cents))
}

func (g SavingsGoal) IsCompleted() bool {
	return g.CurrentAmount.Cents >= g.TargetAmount.Cents
}

func (g SavingsGoal) CanWithdraw(cents int64) bool {
	return cents > 0 && g.CurrentAmount.Cents >= cents
}

// DaysRemaining returns days to the target date, zero when past it and
// -1 when no target date is set.
func (g SavingsGoal) DaysRemaining(now time.Time) int {
	if g.TargetDate.IsEmpty() {
		return -1
	}
	if !g.TargetDate.After(now) {
		return 0
	}
	return int(g.TargetDate.Sub(now).Hours() / 24)
}

// DailySavingRequired is the flat daily amount that would hit the target
// by the target date.
func (g SavingsGoal) DailySavingRequired(now time.Time) int64 {
	if g.TargetDate.IsEmpty() || g.IsCompleted() {
		return 0
	}
	days := g.DaysRemaining(now)
	if days <= 0 {
		return 0
	}
	return decimal.NewFromInt(g.Remaining()).Div(decimal.NewFromInt(int64(days))).Round(0).IntPart()
}

// PlanAllocations splits pot cents across goals proportionally to their
// auto-allocate percentages. Each share is clamped to the goal's
// remaining headroom and to what is left of the pot, so a goal is never
// pushed past its target. Goals must already be filtered to active +
// auto-allocate enabled; order decides who absorbs rounding leftovers.
func PlanAllocations(pot int64, goals []SavingsGoal) []AllocationShare {
	if pot <= 0 || len(goals) == 0 {
		return nil
	}

	total := decimal.Zero
	for _, g := range goals {
		total = total.Add(g.AutoAllocatePercent)
	}
	if !total.IsPositive() {
		return nil
	}

	var shares []AllocationShare
	remaining := pot
	for _, g := range goals {
		if remaining <= 0 {
			break
		}
		share := decimal.NewFromInt(pot).
			Mul(g.AutoAllocatePercent).
			Div(total).
			Round(0).
			IntPart()
		if share > g.Remaining() {
			share = g.Remaining()
		}
		if share > remaining {
			share = remaining
		}
		if share <= 0 {
			continue
		}
		shares = append(shares, AllocationShare{GoalID: g.ID, Cents: share})
		remaining -= share
	}
	return shares
}
