package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	idempotency "github.com/imrishuroy/go-idempotency"
	"github.com/imrishuroy/go-idempotency/internal/aws"
	"github.com/imrishuroy/go-idempotency/internal/validation"
	"github.com/imrishuroy/go-idempotency/metrics"
)

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Store     idempotency.Store
	SQSClient aws.SQSAPI
	QueueURL  string
	TTLWindow time.Duration
	Logger    *slog.Logger
	Metrics   metrics.Metrics
}

// orderPayload is what the idempotency manager hashes: the header key
// identifies the attempt, the order body is fingerprinted so a reused key
// with a different order is rejected instead of replayed.
type orderPayload struct {
	IdempotencyKey string                        `json:"idempotency_key"`
	Order          validation.CreateOrderRequest `json:"order"`
}

// orderResponse is the stored and replayed response for POST /orders.
type orderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) error {
	v := validation.New()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := aws.NewPublisher(cfg.SQSClient, cfg.QueueURL)

	opts := []idempotency.Option{
		idempotency.WithKeyQuery("idempotency_key"),
		idempotency.WithValidationQuery("order"),
		idempotency.WithFailOnMissingKey(),
		idempotency.WithLocalCache(),
		idempotency.WithLogger(logger),
	}
	if cfg.TTLWindow > 0 {
		opts = append(opts, idempotency.WithTTL(cfg.TTLWindow))
	}
	if cfg.Metrics != nil {
		opts = append(opts, idempotency.WithMetrics(cfg.Metrics))
	}
	manager, err := idempotency.New(cfg.Store, opts...)
	if err != nil {
		return fmt.Errorf("build idempotency manager: %w", err)
	}

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		payload := orderPayload{IdempotencyKey: idempKey, Order: req}

		rec, err := manager.BeginAttempt(ctx, payload)
		switch {
		case errors.Is(err, idempotency.ErrAlreadyInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
			return
		case errors.Is(err, idempotency.ErrValidationMismatch):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payload_mismatch"})
			return
		case err != nil:
			logger.Error("idempotency check failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return
		}

		if rec != nil {
			// duplicate of a completed request: serve the stored response
			var stored orderResponse
			if err := rec.UnmarshalResponse(&stored); err != nil {
				logger.Error("stored response unreadable", "key", rec.Key, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "stored_response_unreadable"})
				return
			}
			c.Header("Location", fmt.Sprintf("/orders/%s", stored.OrderID))
			c.JSON(http.StatusOK, stored)
			return
		}

		orderID := uuid.NewString()

		msgPayload := map[string]string{
			"order_id":        orderID,
			"idempotency_key": idempKey,
		}
		body, _ := json.Marshal(msgPayload)

		attrs := map[string]string{
			"idempotency_key": idempKey,
			"order_id":        orderID,
		}
		// SQS rejects empty attribute values, so correlation is optional
		if corr := c.GetHeader("X-Request-Id"); corr != "" {
			attrs["correlation_id"] = corr
		}

		if err := publisher.SendOrderMessage(ctx, string(body), attrs); err != nil {
			logger.Error("enqueue failed", "order_id", orderID, "error", err)
			// release the key so the client can retry cleanly
			if derr := manager.ReportFailure(ctx, payload); derr != nil {
				logger.Error("failed to release idempotency key", "key", idempKey, "error", derr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}

		resp := orderResponse{OrderID: orderID, Status: "PENDING"}
		if err := manager.ReportSuccess(ctx, payload, resp); err != nil {
			// the order is enqueued but not recorded; the client must treat it as unconfirmed
			logger.Error("failed to record completion", "order_id", orderID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "record_completion_failed"})
			return
		}

		c.Header("Location", fmt.Sprintf("/orders/%s", orderID))
		c.JSON(http.StatusCreated, resp)
	})

	return nil
}
