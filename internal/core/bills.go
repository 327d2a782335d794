package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	WeeklyBill  BillFrequency = "weekly"
	MonthlyBill BillFrequency = "monthly"
	YearlyBill  BillFrequency = "yearly"
)

// weeksPerMonth converts weekly amounts to a monthly equivalent.
var weeksPerMonth = decimal.NewFromFloat(4.33)

type (
	BillFrequency string

	RecurringBill struct {
		ID        string
		UserID    string
		Name      string
		Amount    Money
		DueDate   Date
		Frequency BillFrequency
		Paid      bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// BillStats is the aggregate the dashboard and the stats endpoint
	// serve.
	BillStats struct {
		MonthlyTotal      Money
		WeeklyTotal       Money
		YearlyTotal       Money
		MonthlyEquivalent Money
		PaidCount         int
		UnpaidCount       int
		OverdueCount      int
		TotalCount        int
	}
)

func (f BillFrequency) Validate() error {
	switch f {
	case WeeklyBill, MonthlyBill, YearlyBill:
		return nil
	}
	return ErrInvalidFrequency
}

func (b RecurringBill) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUser
	}
	if len(strings.TrimSpace(b.Name)) == 0 {
		return ErrEmptyDescription
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if err := b.DueDate.Validate(); err != nil {
		return err
	}
	return b.Frequency.Validate()
}

func (b RecurringBill) IsOverdue(now time.Time) bool {
	return !b.Paid && b.DueDate.Before(startOfDay(now))
}

// NextDueDate steps the due date forward by one frequency interval.
func (b RecurringBill) NextDueDate() Date {
	switch b.Frequency {
	case WeeklyBill:
		return Date{Time: b.DueDate.AddDate(0, 0, 7)}
	case YearlyBill:
		return Date{Time: b.DueDate.AddDate(1, 0, 0)}
	default:
		return Date{Time: b.DueDate.AddDate(0, 1, 0)}
	}
}

// MonthlyEquivalent normalizes the bill amount to a per-month figure:
// weekly bills count 4.33 times, yearly bills a twelfth.
func (b RecurringBill) MonthlyEquivalent() int64 {
	amount := decimal.NewFromInt(b.Amount.Cents)
	switch b.Frequency {
	case WeeklyBill:
		return amount.Mul(weeksPerMonth).Round(0).IntPart()
	case YearlyBill:
		return amount.Div(decimal.NewFromInt(12)).Round(0).IntPart()
	default:
		return b.Amount.Cents
	}
}

// ComputeBillStats aggregates a user's bills the way the stats endpoint
// reports them.
func ComputeBillStats(bills []RecurringBill, now time.Time) BillStats {
	var s BillStats
	s.TotalCount = len(bills)
	for _, b := range bills {
		switch b.Frequency {
		case WeeklyBill:
			s.WeeklyTotal.Cents += b.Amount.Cents
		case YearlyBill:
			s.YearlyTotal.Cents += b.Amount.Cents
		default:
			s.MonthlyTotal.Cents += b.Amount.Cents
		}
		s.MonthlyEquivalent.Cents += b.MonthlyEquivalent()
		if b.Paid {
			s.PaidCount++
		} else {
			s.UnpaidCount++
		}
		if b.IsOverdue(now) {
			s.OverdueCount++
		}
	}
	return s
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
