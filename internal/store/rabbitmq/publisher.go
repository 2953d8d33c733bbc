package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobMessage is the body published for every accepted inbound message.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// EscalationMessage announces a new human support request to staff tooling.
type EscalationMessage struct {
	RequestID uint64    `json:"request_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Type      string    `json:"request_type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Publisher struct {
	conn            *amqp.Connection
	ch              *amqp.Channel
	mu              sync.Mutex
	queue           string
	escalationQueue string
}

func NewPublisher(url, queue, escalationQueue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := DeclareJobQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if escalationQueue != "" {
		if _, err := ch.QueueDeclare(escalationQueue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &Publisher{conn: conn, ch: ch, queue: queue, escalationQueue: escalationQueue}, nil
}

// RetryQueue and DLQ are the names derived from the main job queue.
func RetryQueue(queue string) string { return queue + ".retry" }
func DLQ(queue string) string        { return queue + ".dlq" }

// DeclareJobQueues declares the main job queue with its retry and dead-letter
// queues. Publisher and worker both call it, so the arguments must match.
func DeclareJobQueues(ch *amqp.Channel, queue string) error {
	// DLQ
	if _, err := ch.QueueDeclare(
		DLQ(queue),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		RetryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DLQ(queue),
		},
	)
	return err
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	return p.publish(ctx, p.queue, JobMessage{JobID: jobID})
}

// PublishEscalation is a no-op when no escalation queue is configured.
func (p *Publisher) PublishEscalation(ctx context.Context, msg EscalationMessage) error {
	if p.escalationQueue == "" {
		return nil
	}
	return p.publish(ctx, p.escalationQueue, msg)
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
