package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var (
	ErrPublisherClosed = errors.New("event publisher closed")
	ErrQueueFull       = errors.New("event queue full")
)

type KafkaOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultKafkaOptions() KafkaOptions {
	return KafkaOptions{
		QueueSize:   1024,
		Workers:     2,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  time.Second,
	}
}

// NewSyncProducer builds a producer that waits for the local broker ack.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect kafka: %w", err)
	}
	return producer, nil
}

// KafkaPublisher queues events locally and sends them from a fixed set of
// workers, retrying with exponential backoff before dropping.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	opts     KafkaOptions

	queue  chan NoteEvent
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, opts KafkaOptions) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		opts:     opts,
		queue:    make(chan NoteEvent, opts.QueueSize),
	}

	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	return p
}

// Publish enqueues evt without waiting. A full queue means the broker is
// behind; the event is dropped with ErrQueueFull.
func (p *KafkaPublisher) Publish(ctx context.Context, evt NoteEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- evt:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains the queue, stops the workers and closes the producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.producer.Close()
}

func (p *KafkaPublisher) workerLoop(workerID int) {
	defer p.wg.Done()
	for evt := range p.queue {
		p.sendWithRetry(workerID, evt)
	}
}

func (p *KafkaPublisher) sendWithRetry(workerID int, evt NoteEvent) {
	for attempt := 0; attempt <= p.opts.MaxRetry; attempt++ {
		err := p.sendOnce(evt)
		if err == nil {
			return
		}

		if attempt == p.opts.MaxRetry {
			slog.Error("kafka send failed, dropping event",
				"type", evt.Type, "noteId", evt.NoteID, "worker", workerID, "error", err)
			return
		}

		backoff := p.opts.BaseBackoff * time.Duration(1<<attempt)
		if backoff > p.opts.MaxBackoff {
			backoff = p.opts.MaxBackoff
		}
		time.Sleep(backoff)
	}
}

func (p *KafkaPublisher) sendOnce(evt NoteEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.NoteID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}
