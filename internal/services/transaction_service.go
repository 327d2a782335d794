// Package services orchestrates storage, messaging and notifications
// behind the HTTP handlers and the worker.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// EventPublisher decouples the service from the broker so handlers can
// be tested without a running RabbitMQ.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error
}

// TransactionService persists transactions and announces every change so
// the budget engine and the savings processor can react.
type TransactionService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
}

func NewTransactionService(storage *storage.SQLiteRepository, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		storage:   storage,
		publisher: publisher,
	}
}

// Create saves a transaction and publishes a created event. The save is
// the source of truth; a failed publish is logged, not surfaced, because
// the periodic recalculation will catch up.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.storage.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publish(ctx, created, amqp.ActionCreated)
	return created, nil
}

// Update rewrites a transaction. When the category changes, an event is
// published for the old category too so its budget gets recomputed.
func (s *TransactionService) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	previous, err := s.storage.GetTransaction(ctx, t.ID)
	if err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.storage.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.publish(ctx, updated, amqp.ActionUpdated)
	if previous.Category != updated.Category {
		s.publish(ctx, previous, amqp.ActionUpdated)
	}
	return updated, nil
}

// Delete removes a transaction and publishes a deleted event carrying
// the category that was affected.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	deleted, err := s.storage.DeleteTransaction(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, deleted, amqp.ActionDeleted)
	return nil
}

func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	return s.storage.GetTransaction(ctx, id)
}

func (s *TransactionService) List(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	return s.storage.ListTransactions(ctx, f)
}

func (s *TransactionService) MonthSummary(ctx context.Context, userID string, year, month int) (core.MonthSummary, error) {
	return s.storage.MonthSummary(ctx, userID, year, month)
}

func (s *TransactionService) publish(ctx context.Context, t core.Transaction, action string) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping transaction event",
			"id", t.ID, "action", action)
		return
	}
	msg := amqp.NewTransactionEventMessage(t, action)
	if err := s.publisher.PublishTransactionEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"id", t.ID, "action", action, "error", err)
	}
}
