// Package worker runs the background side of the system: the AMQP
// consumer that reacts to transaction events and the periodic jobs that
// act as a backup for missed messages.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
)

type Intervals struct {
	Recalc  time.Duration
	Archive time.Duration
	Bills   time.Duration
}

// EventWorker fans one transaction event out to the budget engine and
// the savings processor, and drives the periodic maintenance jobs.
type EventWorker struct {
	engine    *services.BudgetEngine
	savings   *services.SavingsService
	bills     *services.BillService
	client    *amqp.Client
	intervals Intervals
}

func NewEventWorker(engine *services.BudgetEngine, savings *services.SavingsService, bills *services.BillService, client *amqp.Client, intervals Intervals) *EventWorker {
	return &EventWorker{
		engine:    engine,
		savings:   savings,
		bills:     bills,
		client:    client,
		intervals: intervals,
	}
}

// HandleTransactionEvent processes one event from the queue. An error
// from either consumer nacks the delivery for redelivery.
func (w *EventWorker) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	if err := w.engine.HandleTransactionEvent(ctx, msg); err != nil {
		return err
	}
	return w.savings.HandleTransactionEvent(ctx, msg)
}

// Run blocks until ctx is cancelled, consuming events and running the
// periodic jobs. A startup recalculation catches anything missed while
// the worker was down.
func (w *EventWorker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Performing startup recalculation")
	if err := w.engine.RecalculateAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup recalculation failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if w.client != nil {
		g.Go(func() error {
			err := w.client.ConsumeTransactionEvents(ctx, func(msg *amqp.TransactionEventMessage) error {
				return w.HandleTransactionEvent(ctx, msg)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		slog.InfoContext(ctx, "No AMQP client, running on periodic recalculation only")
	}

	g.Go(func() error {
		return w.runTicker(ctx, w.intervals.Recalc, "recalculate budgets", w.engine.RecalculateAll)
	})
	g.Go(func() error {
		return w.runTicker(ctx, w.intervals.Archive, "archive and maintain budgets", func(ctx context.Context) error {
			now := time.Now()
			if err := w.engine.ArchiveEnded(ctx, now); err != nil {
				return err
			}
			if err := w.engine.CheckPeriodEnding(ctx, now); err != nil {
				return err
			}
			return w.engine.CleanupAlerts(ctx, now)
		})
	})
	g.Go(func() error {
		return w.runTicker(ctx, w.intervals.Bills, "advance paid bills", func(ctx context.Context) error {
			return w.bills.AdvancePaid(ctx, time.Now())
		})
	})

	return g.Wait()
}

// runTicker loops a job on an interval until ctx ends. Job errors are
// logged, never fatal.
func (w *EventWorker) runTicker(ctx context.Context, interval time.Duration, name string, job func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := job(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic job failed", "job", name, "error", err)
			}
		}
	}
}
