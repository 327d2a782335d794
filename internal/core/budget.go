package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly   Period = "monthly"
	Quarterly Period = "quarterly"
	Yearly    Period = "yearly"
)

const (
	AlertThreshold    AlertType = "threshold"
	AlertExceeded     AlertType = "exceeded"
	AlertPeriodEnding AlertType = "period_ending"
)

// DefaultAlertThreshold is the percent-used level that raises a
// threshold alert when no explicit threshold is configured.
var DefaultAlertThreshold = decimal.NewFromInt(80)

type (
	Period string

	AlertType string

	// Budget caps spending for one category of one user over a
	// recurring period. Spent is derived from transactions and
	// recomputed by the engine; it is never written by handlers.
	Budget struct {
		ID             string
		UserID         string
		Category       string
		Limit          Money
		Spent          Money
		Period         Period
		AlertThreshold decimal.Decimal
		Status         Status
		PeriodStart    time.Time
		PeriodEnd      time.Time
		LastAlertAt    time.Time
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	BudgetAlert struct {
		ID        string
		BudgetID  string
		Type      AlertType
		Message   string
		Read      bool
		Notified  bool
		CreatedAt time.Time
	}

	// BudgetHistory is an archived period snapshot, written when a
	// budget rolls over.
	BudgetHistory struct {
		ID               string
		BudgetID         string
		PeriodStart      time.Time
		PeriodEnd        time.Time
		Limit            Money
		Spent            Money
		PerformanceScore decimal.Decimal
		CreatedAt        time.Time
	}

	BudgetTemplate struct {
		ID          string
		Name        string
		Description string
		Default     bool
		Items       []BudgetTemplateItem
	}

	BudgetTemplateItem struct {
		Category       string
		Limit          Money
		Period         Period
		AlertThreshold decimal.Decimal
	}
)

func (p Period) Validate() error {
	switch p {
	case Monthly, Quarterly, Yearly:
		return nil
	}
	return ErrInvalidPeriod
}

// Window returns the period bounds containing now. Start is the first
// instant of the window, end the last second before the next one.
func (p Period) Window(now time.Time) (start, end time.Time) {
	switch p {
	case Quarterly:
		quarterStart := time.Month((int(now.Month())-1)/3*3 + 1)
		start = time.Date(now.Year(), quarterStart, 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 3, 0).Add(-time.Second)
	case Yearly:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(1, 0, 0).Add(-time.Second)
	default: // monthly
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0).Add(-time.Second)
	}
	return start, end
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := b.Limit.Validate(); err != nil {
		return err
	}
	if err := b.Period.Validate(); err != nil {
		return err
	}
	if err := ValidatePercent(b.AlertThreshold); err != nil {
		return err
	}
	return b.Status.Validate()
}

// Remaining may be negative when the budget is exceeded.
func (b Budget) Remaining() int64 {
	return b.Limit.Cents - b.Spent.Cents
}

func (b Budget) PercentUsed() decimal.Decimal {
	return PercentOf(b.Spent.Cents, b.Limit.Cents)
}

// IsOverBudget is a flag, never an error: spending past the limit is
// recorded and alerted on, not rejected.
func (b Budget) IsOverBudget() bool {
	return b.Spent.Cents > b.Limit.Cents
}

func (b Budget) IsThresholdReached() bool {
	return b.PercentUsed().GreaterThanOrEqual(b.AlertThreshold)
}

func (b Budget) IsCurrentPeriod(now time.Time) bool {
	return !now.Before(b.PeriodStart) && !now.After(b.PeriodEnd)
}

// DaysRemaining returns whole days left in the current period, zero if
// the period has ended.
func (b Budget) DaysRemaining(now time.Time) int {
	if !b.IsCurrentPeriod(now) {
		return 0
	}
	return int(b.PeriodEnd.Sub(now).Hours() / 24)
}

// PerformanceScore grades the period 0-100: full marks up to 80% used,
// a steep penalty between 80% and the limit, and a shallower one past it.
func (b Budget) PerformanceScore() decimal.Decimal {
	if b.Limit.Cents == 0 {
		return hundred
	}
	used := b.PercentUsed()
	switch {
	case used.LessThanOrEqual(DefaultAlertThreshold):
		return hundred
	case used.LessThanOrEqual(hundred):
		score := hundred.Sub(used.Sub(DefaultAlertThreshold).Mul(decimal.NewFromInt(5)))
		return decimal.Max(decimal.Zero, score)
	default:
		score := decimal.NewFromInt(50).Sub(used.Sub(hundred))
		return decimal.Max(decimal.Zero, score)
	}
}

// AdvancePeriod resets spent and moves the window to the one containing
// now.
func (b *Budget) AdvancePeriod(now time.Time) {
	b.Spent = Money{}
	b.PeriodStart, b.PeriodEnd = b.Period.Window(now)
}
