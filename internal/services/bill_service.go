package services

import (
	"context"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// BillService manages recurring bills and their payment cycle.
type BillService struct {
	storage *storage.SQLiteRepository
}

func NewBillService(storage *storage.SQLiteRepository) *BillService {
	return &BillService{storage: storage}
}

func (s *BillService) Create(ctx context.Context, b core.RecurringBill) (core.RecurringBill, error) {
	if b.Frequency == "" {
		b.Frequency = core.MonthlyBill
	}
	if err := b.Validate(); err != nil {
		return core.RecurringBill{}, err
	}
	return s.storage.CreateBill(ctx, b)
}

func (s *BillService) Get(ctx context.Context, id string) (core.RecurringBill, error) {
	return s.storage.GetBill(ctx, id)
}

func (s *BillService) List(ctx context.Context, userID string) ([]core.RecurringBill, error) {
	return s.storage.ListBills(ctx, userID)
}

func (s *BillService) Update(ctx context.Context, b core.RecurringBill) (core.RecurringBill, error) {
	if err := b.Validate(); err != nil {
		return core.RecurringBill{}, err
	}
	return s.storage.UpdateBill(ctx, b)
}

func (s *BillService) Delete(ctx context.Context, id string) error {
	return s.storage.DeleteBill(ctx, id)
}

func (s *BillService) SetPaid(ctx context.Context, id string, paid bool) error {
	return s.storage.SetBillPaid(ctx, id, paid)
}

// PayAll marks every unpaid bill of the user paid.
func (s *BillService) PayAll(ctx context.Context, userID string) (int64, error) {
	return s.storage.BulkSetPaid(ctx, userID, true)
}

// ResetAll marks every paid bill of the user unpaid, for starting a new
// month by hand.
func (s *BillService) ResetAll(ctx context.Context, userID string) (int64, error) {
	return s.storage.BulkSetPaid(ctx, userID, false)
}

func (s *BillService) Overdue(ctx context.Context, userID string, now time.Time) ([]core.RecurringBill, error) {
	return s.storage.ListOverdueBills(ctx, userID, now)
}

func (s *BillService) Upcoming(ctx context.Context, userID string, now time.Time, days int) ([]core.RecurringBill, error) {
	return s.storage.ListUpcomingBills(ctx, userID, now, days)
}

// Stats aggregates the user's bills into per-frequency totals, the
// monthly equivalent and paid/overdue counts.
func (s *BillService) Stats(ctx context.Context, userID string, now time.Time) (core.BillStats, error) {
	bills, err := s.storage.ListBills(ctx, userID)
	if err != nil {
		return core.BillStats{}, err
	}
	return core.ComputeBillStats(bills, now), nil
}

// AdvancePaid rolls paid bills whose due date has passed into their next
// cycle: due date stepped one interval forward, paid flag cleared. The
// worker calls this on a timer.
func (s *BillService) AdvancePaid(ctx context.Context, now time.Time) error {
	bills, err := s.storage.ListPaidBillsDueBefore(ctx, now)
	if err != nil {
		return err
	}
	for _, b := range bills {
		advanced, err := s.storage.AdvanceBill(ctx, b)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to advance bill",
				"bill_id", b.ID, "name", b.Name, "error", err)
			continue
		}
		slog.InfoContext(ctx, "Advanced bill to next cycle",
			"bill_id", b.ID, "name", b.Name,
			"due_date", advanced.DueDate.Format("2006-01-02"))
	}
	return nil
}
