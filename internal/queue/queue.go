package queue

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/everspan/cognita/internal/util"
	"github.com/everspan/cognita/pkg/logger"
)

// CognifyQueue carries ingestion jobs from the API layer to the worker.
const CognifyQueue = "cognify_queue"

// Init connects to RabbitMQ using the standard environment variables.
func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	return conn
}

// SetupQueues declares the work queue together with its retry and dead-letter
// companions. Failed deliveries park in the retry queue for ten seconds
// before re-entering the work queue.
func SetupQueues(ch *amqp091.Channel) error {
	_, err := ch.QueueDeclare(CognifyQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare %s: %w", CognifyQueue, err)
	}

	_, err = ch.QueueDeclare(CognifyQueue+"_dlq", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare %s_dlq: %w", CognifyQueue, err)
	}

	_, err = ch.QueueDeclare(CognifyQueue+"_retry", true, false, false, false, amqp091.Table{
		"x-message-ttl":             int32(10000),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": CognifyQueue,
	})
	if err != nil {
		return fmt.Errorf("declare %s_retry: %w", CognifyQueue, err)
	}
	return nil
}

// Publish enqueues one persistent message.
func Publish(ch *amqp091.Channel, queueName string, data []byte) error {
	return ch.Publish("", queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}
