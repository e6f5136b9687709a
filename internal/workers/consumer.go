package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"commission-engine/internal/observability"

	kafkago "github.com/segmentio/kafka-go"
)

// ConsumerConfig holds configuration for the Kafka event consumer.
type ConsumerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// ConsumerGroup is the Kafka consumer group ID.
	ConsumerGroup string

	// Topic is the Kafka topic to consume from.
	Topic string

	// NumWorkers is the number of concurrent workers.
	NumWorkers int

	// QueueSize is the buffer size of each worker's channel.
	QueueSize int

	// DrainTimeout is the maximum time to wait for in-flight events during shutdown.
	DrainTimeout time.Duration
}

// DefaultConsumerConfig returns sensible defaults for a consumer.
func DefaultConsumerConfig(brokers []string, consumerGroup, topic string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:       brokers,
		ConsumerGroup: consumerGroup,
		Topic:         topic,
		NumWorkers:    10,
		QueueSize:     100,
		DrainTimeout:  30 * time.Second,
	}
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.NumWorkers <= 0 {
		c.NumWorkers = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}

// eventWithMsg pairs an event with its Kafka message for offset tracking.
type eventWithMsg struct {
	event EventMessage
	msg   kafkago.Message
}

// consumer implements EventConsumer. Events with the same key always land on
// the same worker so an order's events are applied in topic order.
type consumer struct {
	config    ConsumerConfig
	reader    MessageReader
	processor EventProcessor
	logger    *observability.Logger

	// One channel per worker
	eventChs []chan eventWithMsg

	// Lifecycle management
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopping atomic.Bool
	stopOnce sync.Once
}

// NewConsumer creates a consumer reading config.Topic through a kafka-go reader.
func NewConsumer(config ConsumerConfig, processor EventProcessor, logger *observability.Logger) EventConsumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		StartOffset:    kafkago.FirstOffset,
		CommitInterval: 0, // Manual commit
	})
	return NewConsumerWithReader(config, reader, processor, logger)
}

// NewConsumerWithReader creates a consumer over an existing reader.
func NewConsumerWithReader(config ConsumerConfig, reader MessageReader, processor EventProcessor, logger *observability.Logger) EventConsumer {
	config = config.withDefaults()

	c := &consumer{
		config:    config,
		reader:    reader,
		processor: processor,
		logger:    logger,
		eventChs:  make([]chan eventWithMsg, config.NumWorkers),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for i := range c.eventChs {
		c.eventChs[i] = make(chan eventWithMsg, config.QueueSize)
	}

	ctx := observability.WithFields(context.Background(),
		observability.Field{Key: "processor", Value: processor.Name()},
		observability.Field{Key: "consumer_group", Value: config.ConsumerGroup},
		observability.Field{Key: "topic", Value: config.Topic},
		observability.Field{Key: "num_workers", Value: config.NumWorkers},
	)
	logger.Info(ctx, fmt.Sprintf("Initialized consumer for %s processor", processor.Name()))

	return c
}

// Start begins consuming events and blocks until Stop is called or ctx ends.
func (c *consumer) Start(ctx context.Context) error {
	defer close(c.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "consumer_group", Value: c.config.ConsumerGroup},
		observability.Field{Key: "topic", Value: c.config.Topic},
		observability.Field{Key: "processor", Value: c.processor.Name()},
	)

	c.logger.Info(ctx, fmt.Sprintf("Starting consumer for %s with %d workers",
		c.processor.Name(), c.config.NumWorkers))

	// Workers keep processing after ctx ends so in-flight events finish
	workCtx := context.WithoutCancel(ctx)
	var workerWg sync.WaitGroup
	for i, ch := range c.eventChs {
		workerWg.Add(1)
		go c.worker(workCtx, &workerWg, i, ch)
	}

	c.fetchLoop(ctx)

	for _, ch := range c.eventChs {
		close(ch)
	}

	done := make(chan struct{})
	go func() {
		workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info(ctx, "All workers finished processing")
	case <-time.After(c.config.DrainTimeout):
		c.logger.Warn(ctx, "Drain timeout - some events may not have completed")
	}

	if err := c.reader.Close(); err != nil {
		c.logger.Error(ctx, "Failed to close Kafka reader", err)
	}

	c.logger.Info(ctx, fmt.Sprintf("Consumer stopped for %s", c.processor.Name()))
	return nil
}

// fetchLoop fetches messages from Kafka until context is cancelled.
func (c *consumer) fetchLoop(ctx context.Context) {
	for {
		if c.stopping.Load() {
			return
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if c.stopping.Load() || ctx.Err() != nil {
				return
			}
			c.logger.Error(ctx, "Failed to fetch message from Kafka", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		var event EventMessage
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error(ctx, "Failed to unmarshal event, skipping", err)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}
		if event.Key == "" {
			event.Key = string(msg.Key)
		}

		select {
		case c.eventChs[c.route(event.Key)] <- eventWithMsg{event: event, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

// route picks the worker for key
func (c *consumer) route(key string) int {
	if key == "" || len(c.eventChs) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(c.eventChs)))
}

// worker processes events from ch until it's closed.
func (c *consumer) worker(ctx context.Context, wg *sync.WaitGroup, id int, ch <-chan eventWithMsg) {
	defer wg.Done()

	ctx = observability.WithFields(ctx, observability.Field{Key: "worker_id", Value: id})

	for e := range ch {
		eventCtx := observability.WithFields(ctx,
			observability.Field{Key: "event_id", Value: e.event.ID},
			observability.Field{Key: "event_type", Value: e.event.Type},
		)

		if err := c.processor.Process(eventCtx, e.event); err != nil {
			// Not committed, so the event is redelivered after a restart
			c.logger.Error(eventCtx, "Failed to process event", err)
			continue
		}
		if c.reader != nil {
			if err := c.reader.CommitMessages(eventCtx, e.msg); err != nil {
				c.logger.Error(eventCtx, "Failed to commit offset", err)
			}
		}
	}
}

// Stop signals the fetch loop to stop and returns once in-flight events have
// drained.
func (c *consumer) Stop() {
	c.stopOnce.Do(func() {
		logCtx := observability.WithFields(context.Background(),
			observability.Field{Key: "processor", Value: c.processor.Name()},
		)
		c.logger.Info(logCtx, fmt.Sprintf("Stopping consumer for %s", c.processor.Name()))

		c.stopping.Store(true)
		close(c.stopCh)

		<-c.doneCh
	})
}
