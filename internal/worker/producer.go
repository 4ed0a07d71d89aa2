package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/aescanero/dago-sandbox-router/internal/task"
)

// attemptHeader mirrors the envelope attempt counter in AMQP headers.
const attemptHeader = "x-attempt"

// Enqueuer puts tasks on a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, t *task.Task) error
}

// StreamProducer appends tasks to a Redis stream.
type StreamProducer struct {
	client *redis.Client
	stream string
}

// NewStreamProducer creates a producer for the given stream.
func NewStreamProducer(client *redis.Client, stream string) *StreamProducer {
	return &StreamProducer{client: client, stream: stream}
}

// Enqueue appends t to the stream.
func (p *StreamProducer) Enqueue(ctx context.Context, t *task.Task) error {
	data, err := t.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			streamField: string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", t.ID, err)
	}
	return nil
}

// Publisher is the publishing side of an AMQP channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPProducer publishes tasks to a queue through the default exchange.
type AMQPProducer struct {
	ch    Publisher
	queue string
}

// NewAMQPProducer creates a producer for the given queue.
func NewAMQPProducer(ch Publisher, queue string) *AMQPProducer {
	return &AMQPProducer{ch: ch, queue: queue}
}

// Enqueue publishes t. Task headers are mirrored into the AMQP header table.
func (p *AMQPProducer) Enqueue(ctx context.Context, t *task.Task) error {
	body, err := t.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	headers := amqp.Table{attemptHeader: int32(t.Attempt)}
	for k, v := range t.Headers {
		headers[k] = v
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    t.ID,
			Type:         t.Type,
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish task %s to %s: %w", t.ID, p.queue, err)
	}
	return nil
}

// headersFromTable copies string-valued AMQP headers that the task does not
// already carry.
func headersFromTable(t *task.Task, table amqp.Table) {
	for k, v := range table {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if t.Headers == nil {
			t.Headers = make(map[string]string)
		}
		if _, exists := t.Headers[k]; !exists {
			t.Headers[k] = s
		}
	}
}

// attemptFromTable reads the attempt counter from AMQP headers.
func attemptFromTable(table amqp.Table) (int, bool) {
	switch v := table[attemptHeader].(type) {
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}
