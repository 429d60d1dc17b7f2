package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when the publish queue has no room; the event is
// dropped.
var ErrQueueFull = errors.New("events: publish queue full")

// ErrClosed is returned by PublishShare after Close.
var ErrClosed = errors.New("events: publisher closed")

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type pending struct {
	msg kafka.Message
	ev  ShareEvent
}

// KafkaPublisher writes share events as JSON keyed by note id, so every
// transition of one note lands on the same partition. PublishShare only
// enqueues; a single goroutine writes in order with its own deadline, so
// callers never wait on the broker.
type KafkaPublisher struct {
	w       messageWriter
	log     *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan pending
	done   chan struct{}
}

// NewKafkaPublisher constructs a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	if topic == "" {
		topic = ShareActivityTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: defaultWriteTimeout,
		ReadTimeout:  defaultWriteTimeout,
	}
	return newKafkaPublisher(w, log, defaultQueueSize, defaultWriteTimeout)
}

func newKafkaPublisher(w messageWriter, log *zap.Logger, queueSize int, timeout time.Duration) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &KafkaPublisher{
		w:       w,
		log:     log,
		timeout: timeout,
		queue:   make(chan pending, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for item := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.w.WriteMessages(ctx, item.msg)
		cancel()
		if err != nil {
			p.log.Warn("publish share event failed",
				zap.String("type", item.ev.EventType),
				zap.String("share_id", item.ev.ShareID.String()),
				zap.Error(err))
			continue
		}
		p.log.Debug("published share event",
			zap.String("type", item.ev.EventType), zap.String("note_id", item.ev.NoteID.String()))
	}
}

// PublishShare implements Publisher. ctx is not used for the write: the
// event outlives the request that produced it.
func (p *KafkaPublisher) PublishShare(_ context.Context, ev ShareEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	item := pending{
		msg: kafka.Message{Key: []byte(ev.NoteID.String()), Value: value, Time: ev.Timestamp},
		ev:  ev,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains queued events and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.w.Close()
}
