package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
)

// SetupRabbitMQ устанавливает соединение с RabbitMQ и создает канал
func SetupRabbitMQ(url string, queueName string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Объявление очереди
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return conn, ch, nil
}

// Channel is the part of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage отправляет JSON сообщение в очередь
func PublishMessage(ctx context.Context, ch Channel, queueName string, body []byte) error {
	return ch.PublishWithContext(ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
}

// Notifier publishes run reports to a queue.
type Notifier struct {
	mu    sync.Mutex
	ch    Channel
	queue string
}

func NewNotifier(ch Channel, queueName string) *Notifier {
	return &Notifier{ch: ch, queue: queueName}
}

func (n *Notifier) Notify(ctx context.Context, report models.RunReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := PublishMessage(ctx, n.ch, n.queue, body); err != nil {
		return fmt.Errorf("failed to publish run report: %w", err)
	}
	return nil
}
