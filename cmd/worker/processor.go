package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"

	idempotency "github.com/imrishuroy/go-idempotency"
	"github.com/imrishuroy/go-idempotency/internal/aws"
)

// Processor consumes order messages and runs each order at most once. SQS
// delivers at least once, so the idempotency manager is what turns
// redeliveries into replays instead of duplicate work.
type Processor struct {
	manager *idempotency.Manager
	emitter *aws.MetricEmitter
	logger  *slog.Logger
}

// processResult is the stored outcome of one processed order.
type processResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// NewProcessor builds a processor deduplicating on the message's order_id.
// emitter may be nil to disable CloudWatch metrics.
func NewProcessor(store idempotency.Store, emitter *aws.MetricEmitter, logger *slog.Logger) (*Processor, error) {
	manager, err := idempotency.New(store,
		idempotency.WithKeyQuery("order_id"),
		idempotency.WithFailOnMissingKey(),
		idempotency.WithTTL(48*time.Hour),
		idempotency.WithLocalCache(),
		idempotency.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("build idempotency manager: %w", err)
	}
	return &Processor{
		manager: manager,
		emitter: emitter,
		logger:  logger,
	}, nil
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, the message goes to the DLQ.
			p.logger.Error("worker error", "error", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg OrderMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	p.logger.Info("received order",
		"order_id", msg.OrderID,
		"idempotency_key", msg.IdempotencyKey,
		"correlation_id", msg.CorrelationID)

	result, err := idempotency.Do(ctx, p.manager, msg, func(ctx context.Context) (processResult, error) {
		return p.processOrder(ctx, msg)
	})
	if errors.Is(err, idempotency.ErrAlreadyInProgress) {
		// another worker holds the order; swallow the duplicate delivery
		p.logger.Info("order already being processed", "order_id", msg.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("process order %s: %w", msg.OrderID, err)
	}

	p.logger.Info("order processed", "order_id", result.OrderID, "status", result.Status)
	return nil
}

func (p *Processor) processOrder(ctx context.Context, msg OrderMessage) (processResult, error) {
	p.logger.Info("processing business logic", "order_id", msg.OrderID)
	time.Sleep(200 * time.Millisecond) // simulate processing work

	if p.emitter != nil {
		err := p.emitter.EmitCount(ctx, "OrdersProcessed", 1, map[string]string{"status": "completed"})
		if err != nil {
			// the metric is best-effort; the order itself succeeded
			p.logger.Warn("metric emission failed", "order_id", msg.OrderID, "error", err)
		}
	}

	return processResult{OrderID: msg.OrderID, Status: "COMPLETED"}, nil
}
