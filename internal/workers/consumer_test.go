package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"commission-engine/internal/observability"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until ctx ends
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	committed []int64
	closed    atomic.Bool
}

func newFakeReader(t *testing.T, events ...EventMessage) *fakeReader {
	t.Helper()
	r := &fakeReader{}
	for i, e := range events {
		value, err := json.Marshal(e)
		require.NoError(t, err)
		r.queue = append(r.queue, kafkago.Message{Offset: int64(i), Key: []byte(e.Key), Value: value})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// recordingProcessor records the order events were seen per key
type recordingProcessor struct {
	mu        sync.Mutex
	seen      map[string][]string
	count     atomic.Int32
	delay     time.Duration
	onProcess func(event EventMessage) error
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{seen: map[string][]string{}}
}

func (p *recordingProcessor) Process(ctx context.Context, event EventMessage) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.seen[event.Key] = append(p.seen[event.Key], event.Type)
	p.mu.Unlock()
	p.count.Add(1)
	if p.onProcess != nil {
		return p.onProcess(event)
	}
	return nil
}

func (p *recordingProcessor) Name() string { return "recording" }

func startConsumer(t *testing.T, reader MessageReader, processor EventProcessor, workers int) EventConsumer {
	t.Helper()
	c := NewConsumerWithReader(ConsumerConfig{NumWorkers: workers, QueueSize: 10, DrainTimeout: 2 * time.Second}, reader, processor, observability.NewLogger())
	go func() { _ = c.Start(context.Background()) }()
	return c
}

func TestConsumer_CommitsProcessedEvents(t *testing.T) {
	reader := newFakeReader(t,
		EventMessage{ID: "1", Type: "sale.completed", Key: "ORD-1"},
		EventMessage{ID: "2", Type: "payment.confirmed", Key: "ORD-1"},
		EventMessage{ID: "3", Type: "sale.completed", Key: "ORD-2"},
	)
	processor := newRecordingProcessor()

	c := startConsumer(t, reader, processor, 4)
	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == 3 }, 2*time.Second, 10*time.Millisecond)
	c.Stop()

	assert.ElementsMatch(t, []int64{0, 1, 2}, reader.committedOffsets())
	assert.True(t, reader.closed.Load())
}

func TestConsumer_KeepsOrderPerKey(t *testing.T) {
	var events []EventMessage
	for i := 0; i < 20; i++ {
		events = append(events,
			EventMessage{Type: "sale.completed", Key: string(rune('a' + i))},
			EventMessage{Type: "payment.confirmed", Key: string(rune('a' + i))},
			EventMessage{Type: "payment.refunded", Key: string(rune('a' + i))},
		)
	}
	reader := newFakeReader(t, events...)
	processor := newRecordingProcessor()
	processor.delay = time.Millisecond

	c := startConsumer(t, reader, processor, 8)
	require.Eventually(t, func() bool { return processor.count.Load() == 60 }, 5*time.Second, 10*time.Millisecond)
	c.Stop()

	processor.mu.Lock()
	defer processor.mu.Unlock()
	for key, seen := range processor.seen {
		assert.Equal(t, []string{"sale.completed", "payment.confirmed", "payment.refunded"}, seen, "key %s", key)
	}
}

func TestConsumer_FailedEventIsNotCommitted(t *testing.T) {
	reader := newFakeReader(t,
		EventMessage{ID: "ok", Type: "sale.completed", Key: "ORD-1"},
		EventMessage{ID: "bad", Type: "sale.completed", Key: "ORD-2"},
	)
	processor := newRecordingProcessor()
	processor.onProcess = func(event EventMessage) error {
		if event.ID == "bad" {
			return errors.New("database unavailable")
		}
		return nil
	}

	c := startConsumer(t, reader, processor, 2)
	require.Eventually(t, func() bool { return processor.count.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	c.Stop()

	assert.Equal(t, []int64{0}, reader.committedOffsets())
}

func TestConsumer_SkipsUndecodableMessages(t *testing.T) {
	reader := &fakeReader{queue: []kafkago.Message{{Offset: 7, Value: []byte("{not json")}}}
	processor := newRecordingProcessor()

	c := startConsumer(t, reader, processor, 1)
	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == 1 }, 2*time.Second, 10*time.Millisecond)
	c.Stop()

	assert.Equal(t, int32(0), processor.count.Load())
	assert.Equal(t, []int64{7}, reader.committedOffsets())
}

func TestConsumer_StopDrainsInFlightEvents(t *testing.T) {
	reader := newFakeReader(t,
		EventMessage{Type: "sale.completed", Key: "a"},
		EventMessage{Type: "sale.completed", Key: "b"},
	)
	processor := newRecordingProcessor()
	processor.delay = 150 * time.Millisecond

	c := startConsumer(t, reader, processor, 2)
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	assert.Equal(t, int32(2), processor.count.Load())
}

func TestConsumer_StopIsIdempotent(t *testing.T) {
	reader := newFakeReader(t)
	c := startConsumer(t, reader, newRecordingProcessor(), 1)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Stop()
		}()
	}
	wg.Wait()
	assert.True(t, reader.closed.Load())
}

func TestRoute_StableAndInRange(t *testing.T) {
	c := &consumer{eventChs: make([]chan eventWithMsg, 5)}
	for _, key := range []string{"ORD-1", "ORD-2", "affiliate-42", ""} {
		first := c.route(key)
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 5)
		assert.Equal(t, first, c.route(key))
	}
	assert.Equal(t, 0, c.route(""))
}

func TestDefaultConsumerConfig(t *testing.T) {
	config := DefaultConsumerConfig([]string{"broker1:9092"}, "commission-engine", "payments")

	assert.Equal(t, []string{"broker1:9092"}, config.Brokers)
	assert.Equal(t, "commission-engine", config.ConsumerGroup)
	assert.Equal(t, "payments", config.Topic)
	assert.Equal(t, 10, config.NumWorkers)
	assert.Equal(t, 100, config.QueueSize)
	assert.Equal(t, 30*time.Second, config.DrainTimeout)
	assert.Equal(t, config, ConsumerConfig{Brokers: config.Brokers, ConsumerGroup: "commission-engine", Topic: "payments"}.withDefaults())
}
