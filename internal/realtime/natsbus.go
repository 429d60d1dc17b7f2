package realtime

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBus fans envelopes out over a NATS subject.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	log     *zap.Logger
}

// NewNATSBus connects to the NATS server at url.
func NewNATSBus(url, subject string, log *zap.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url, nats.Name("conote-hub"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSBus{nc: nc, subject: subject, log: log}, nil
}

// Publish implements Bus.
func (b *NATSBus) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(_ context.Context, fn func(Envelope)) error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Warn("nats bus: bad envelope", zap.Error(err))
			return
		}
		fn(env)
	})
	if err != nil {
		return err
	}
	b.sub = sub
	return b.nc.Flush()
}

// Close implements Bus.
func (b *NATSBus) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	return b.nc.Drain()
}
