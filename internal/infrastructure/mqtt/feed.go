package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/litemodel/internal/model"
)

// DefaultFeedBuffer is the number of change events a feed queues before
// dropping.
const DefaultFeedBuffer = 256

// Publisher sends one MQTT message. *Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ChangeFeed publishes committed model changes to {prefix}/changes/{table}.
//
// PublishChange never blocks the committing goroutine: events are queued and
// sent by a single worker in commit order. When the queue is full the event
// is dropped and counted.
type ChangeFeed struct {
	pub    Publisher
	topics Topics
	qos    byte
	logger Logger

	mu      sync.RWMutex // Guards closed and sends on queue
	closed  bool
	queue   chan model.ChangeEvent
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewChangeFeed starts a feed publishing through pub. buffer <= 0 uses
// DefaultFeedBuffer.
func NewChangeFeed(pub Publisher, topics Topics, qos byte, buffer int) *ChangeFeed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	f := &ChangeFeed{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: noopLogger{},
		queue:  make(chan model.ChangeEvent, buffer),
		done:   make(chan struct{}),
	}
	go f.run()
	return f
}

// SetLogger sets the logger for publish failures. Call before use.
func (f *ChangeFeed) SetLogger(logger Logger) {
	f.logger = logger
}

// PublishChange queues ev for publishing.
func (f *ChangeFeed) PublishChange(ev model.ChangeEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	select {
	case f.queue <- ev:
	default:
		f.dropped.Add(1)
		f.logger.Warn("change feed full, event dropped", "table", ev.Table, "op", ev.Op)
	}
}

func (f *ChangeFeed) run() {
	defer close(f.done)

	for ev := range f.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			f.failed.Add(1)
			f.logger.Error("encoding change event", "table", ev.Table, "error", err)
			continue
		}
		if err := f.pub.Publish(f.topics.Changes(ev.Table), payload, f.qos, false); err != nil {
			f.failed.Add(1)
			f.logger.Warn("publishing change event", "table", ev.Table, "op", ev.Op, "error", err)
		}
	}
}

// Close stops accepting events and waits until the queued ones are sent.
func (f *ChangeFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	<-f.done
}

// Dropped returns how many events were discarded because the queue was full.
func (f *ChangeFeed) Dropped() int64 {
	return f.dropped.Load()
}

// Failed returns how many events could not be encoded or published.
func (f *ChangeFeed) Failed() int64 {
	return f.failed.Load()
}

// DecodeChange parses a change event received on topic. The table in the
// topic must match the payload.
func DecodeChange(topic string, payload []byte) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}
	if ev.Table == "" || ev.Op == "" {
		return model.ChangeEvent{}, fmt.Errorf("%w: table and op are required", ErrInvalidChange)
	}
	if i := strings.LastIndexByte(topic, '/'); i < 0 || topic[i+1:] != ev.Table {
		return model.ChangeEvent{}, fmt.Errorf("%w: topic %q does not match table %q", ErrInvalidChange, topic, ev.Table)
	}
	return ev, nil
}

// WatchChanges subscribes to every table's change topic and hands each
// decoded event to fn. Undecodable messages are logged and skipped.
func (c *Client) WatchChanges(fn func(model.ChangeEvent)) error {
	return c.Subscribe(c.topics.AllChanges(), c.QoS(), func(topic string, payload []byte) error {
		ev, err := DecodeChange(topic, payload)
		if err != nil {
			return err
		}
		fn(ev)
		return nil
	})
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
