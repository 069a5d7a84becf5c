package queue

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/everspan/cognita/pkg/cognify"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/logger"
)

// CognifyJob is the queue message enqueuing one pipeline run.
type CognifyJob struct {
	TenantID   uuid.UUID   `json:"tenant_id"`
	UserID     uuid.UUID   `json:"user_id"`
	DatasetIDs []uuid.UUID `json:"dataset_ids"`

	ChunkSize    int      `json:"chunk_size,omitempty"`
	ChunkOverlap int      `json:"chunk_overlap,omitempty"`
	GraphModel   string   `json:"graph_model,omitempty"`
	EntityTypes  []string `json:"entity_types,omitempty"`
	Validation   *bool    `json:"validation,omitempty"`
	Resolution   *bool    `json:"resolution,omitempty"`
}

// Consume processes cognify jobs until the context is cancelled. A job
// failing with a retryable kind is redelivered through the retry queue;
// anything else lands in the dead-letter queue.
func Consume(ctx context.Context, ch *amqp091.Channel, service *cognify.Service) error {
	deliveries, err := ch.Consume(CognifyQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			handleDelivery(ctx, ch, service, delivery)
		}
	}
}

func handleDelivery(ctx context.Context, ch *amqp091.Channel, service *cognify.Service, delivery amqp091.Delivery) {
	var job CognifyJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		logger.Error("[Queue] Undecodable job dropped", "err", err)
		deadLetter(ch, delivery)
		return
	}

	runID, err := service.Cognify(ctx, job.DatasetIDs, cognify.User{ID: job.UserID, TenantID: job.TenantID}, cognify.Options{
		ChunkSize:    job.ChunkSize,
		ChunkOverlap: job.ChunkOverlap,
		GraphModel:   job.GraphModel,
		EntityTypes:  job.EntityTypes,
		Validation:   job.Validation,
		Resolution:   job.Resolution,
	})
	if err != nil {
		if errs.Retryable(err) {
			logger.Warn("[Queue] Job failed, scheduling retry", "err", err)
			retry(ch, delivery)
			return
		}
		logger.Error("[Queue] Job failed permanently", "err", err)
		deadLetter(ch, delivery)
		return
	}

	logger.Info("[Queue] Job completed", "run_id", runID, "datasets", len(job.DatasetIDs))
	if err := delivery.Ack(false); err != nil {
		logger.Warn("[Queue] Failed to ack delivery", "err", err)
	}
}

func retry(ch *amqp091.Channel, delivery amqp091.Delivery) {
	if err := Publish(ch, CognifyQueue+"_retry", delivery.Body); err != nil {
		logger.Error("[Queue] Failed to publish retry", "err", err)
	}
	if err := delivery.Ack(false); err != nil {
		logger.Warn("[Queue] Failed to ack delivery", "err", err)
	}
}

func deadLetter(ch *amqp091.Channel, delivery amqp091.Delivery) {
	if err := Publish(ch, CognifyQueue+"_dlq", delivery.Body); err != nil {
		logger.Error("[Queue] Failed to publish to dead-letter queue", "err", err)
	}
	if err := delivery.Ack(false); err != nil {
		logger.Warn("[Queue] Failed to ack delivery", "err", err)
	}
}
