package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	idempotency "github.com/imrishuroy/go-idempotency"
	"github.com/imrishuroy/go-idempotency/internal/aws"
	"github.com/imrishuroy/go-idempotency/internal/handlers"
	prommetrics "github.com/imrishuroy/go-idempotency/metrics/prometheus"
	dynamostore "github.com/imrishuroy/go-idempotency/store/dynamodb"
	memorystore "github.com/imrishuroy/go-idempotency/store/memory"
)

func setupRouter(cfg handlers.HandlerConfig) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := handlers.RegisterOrdersRoutes(r, cfg); err != nil {
		return nil, err
	}
	return r, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	var store idempotency.Store
	if os.Getenv("IDEMPOTENCY_BACKEND") == "memory" {
		// dev rig: records live only as long as the process
		logger.Info("using in-memory idempotency store")
		store = memorystore.NewStore()
	} else {
		store = dynamostore.NewStore(clients.DynamoDB, requireEnv(logger, "IDEMPOTENCY_TABLE"))
	}

	ttl := 48 * time.Hour
	if raw := os.Getenv("IDEMPOTENCY_TTL"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			logger.Error("invalid IDEMPOTENCY_TTL", "value", raw, "error", err)
			os.Exit(1)
		}
	}

	cfg := handlers.HandlerConfig{
		Store:     store,
		SQSClient: clients.SQS,
		QueueURL:  requireEnv(logger, "ORDERS_QUEUE_URL"),
		TTLWindow: ttl,
		Logger:    logger,
		Metrics:   prommetrics.New(prommetrics.DefaultConfig()),
	}

	r, err := setupRouter(cfg)
	if err != nil {
		logger.Error("failed to set up router", "error", err)
		os.Exit(1)
	}

	// if environment variable RUN_LOCAL is set to "true", run a local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		logger.Info("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			logger.Error("local server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func requireEnv(logger *slog.Logger, name string) string {
	v := os.Getenv(name)
	if v == "" {
		logger.Error("required environment variable not set", "name", name)
		os.Exit(1)
	}
	return v
}
