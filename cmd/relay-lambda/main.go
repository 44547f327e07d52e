package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/payment-sms-relay/cmd/mainconfig"
	"github.com/wolfman30/payment-sms-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/payment-sms-relay/internal/config"
	"github.com/wolfman30/payment-sms-relay/internal/delivery"
	"github.com/wolfman30/payment-sms-relay/internal/queue"
	"github.com/wolfman30/payment-sms-relay/internal/worker/relay"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// messageHandler is satisfied by *relay.Handler.
type messageHandler interface {
	Handle(ctx context.Context, qm queue.Message) (delivery.Outcome, bool)
}

// acker is satisfied by *queue.SQSQueue.
type acker interface {
	Delete(ctx context.Context, receiptHandle string) error
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	// A memory store would lose settings between invocations.
	if cfg.SettingsBackend == appconfig.SettingsBackendMemory {
		logger.Error("relay lambda needs SETTINGS_BACKEND=redis or postgres")
		os.Exit(1)
	}
	store, closeStore, err := bootstrap.BuildSettingsStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build settings store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if cfg.SMSQueueURL == "" {
		logger.Error("relay lambda needs SMS_QUEUE_URL to acknowledge records")
		os.Exit(1)
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	sqsQueue := queue.NewSQSQueue(mainconfig.NewSQSClient(awsCfg, cfg), cfg.SMSQueueURL)

	var sesClient *sesv2.Client
	if cfg.AlertEmailTo != "" && cfg.AlertProvider == appconfig.AlertProviderSES {
		sesClient = mainconfig.NewSESClient(awsCfg, cfg)
	}
	alerter, err := bootstrap.BuildAlerter(cfg, sesClient, logger)
	if err != nil {
		logger.Error("failed to build alerter", "error", err)
		os.Exit(1)
	}

	var alert relay.Alerter
	if alerter != nil {
		alert = alerter
	}
	h := relay.NewHandler(store, delivery.NewAgent(store, logger), alert, logger)

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, h, sqsQueue, evt, logger), nil
	})
}

// handle deletes each record from the queue before handling it, so a
// function timeout or crash mid-batch cannot redrive a record that was
// already POSTed. Only records that could not be acknowledged, and so were
// never attempted, are reported as batch item failures.
func handle(ctx context.Context, h messageHandler, ack acker, evt events.SQSEvent, logger *logging.Logger) events.SQSEventResponse {
	var resp events.SQSEventResponse
	var payments, delivered int
	for _, record := range evt.Records {
		if err := ack.Delete(ctx, record.ReceiptHandle); err != nil {
			logger.Error("failed to acknowledge sqs record; leaving it for redrive", "error", err, "msg_id", record.MessageId)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		outcome, payment := h.Handle(ctx, queue.Message{ID: record.MessageId, Body: record.Body})
		if !payment {
			continue
		}
		payments++
		if outcome.Delivered() {
			delivered++
		}
	}
	logger.Info("sqs batch handled",
		"records", len(evt.Records),
		"unacknowledged", len(resp.BatchItemFailures),
		"payments", payments,
		"delivered", delivered,
	)
	return resp
}
