package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-idempotency/internal/aws"
	dynamostore "github.com/imrishuroy/go-idempotency/store/dynamodb"
	memorystore "github.com/imrishuroy/go-idempotency/store/memory"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// If RUN_LOCAL=true, simulate a single SQS event instead of starting the
	// Lambda runtime. The in-memory store means no AWS access is needed.
	if os.Getenv("RUN_LOCAL") == "true" {
		p, err := NewProcessor(memorystore.NewStore(), nil, logger)
		if err != nil {
			logger.Error("failed to build processor", "error", err)
			os.Exit(1)
		}

		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"order_id":"local-order-1","idempotency_key":"local-key-1"}`
		}
		ev := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: body},
			},
		}
		if err := p.Handle(context.Background(), ev); err != nil {
			logger.Error("local handler error", "error", err)
			os.Exit(1)
		}
		return
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	table := os.Getenv("IDEMPOTENCY_TABLE")
	if table == "" {
		logger.Error("required environment variable not set", "name", "IDEMPOTENCY_TABLE")
		os.Exit(1)
	}
	namespace := os.Getenv("METRICS_NAMESPACE")
	if namespace == "" {
		namespace = "OrderFlow"
	}

	store := dynamostore.NewStore(clients.DynamoDB, table)
	emitter := aws.NewMetricEmitter(clients.CloudWatch, namespace)

	p, err := NewProcessor(store, emitter, logger)
	if err != nil {
		logger.Error("failed to build processor", "error", err)
		os.Exit(1)
	}

	lambda.Start(p.Handle)
}
