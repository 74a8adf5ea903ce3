package worker

import (
	"context"
	"fmt"

	"minimart/internal/broker"
	"minimart/internal/models"
	"minimart/internal/util"

	"go.uber.org/zap"
)

// AuditStore records which events the audit trail has already seen.
type AuditStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// AuditWorker consumes order events and writes an audit log entry for
// each one, exactly once per event ID.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        AuditStore
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, store AuditStore) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.HandleOrderCreated)
	w.eventHandler = eventHandler

	return w
}

// HandleOrderCreated records one order-created event, skipping events
// already processed (consumer group rebalances can redeliver).
func (w *AuditWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Info("Order audit",
		zap.String("event_id", event.EventID),
		zap.Int64("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.Int64("total_cents", event.TotalCents),
		zap.Int("items", len(event.Items)))

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping audit worker")
	return w.consumer.Close()
}
