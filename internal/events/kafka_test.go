package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	err     error
	release chan struct{} // when set, writes block until closed or ctx ends
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func shareEvent(typ string) ShareEvent {
	return ShareEvent{
		EventType:  typ,
		ShareID:    uuid.Must(uuid.NewV4()),
		NoteID:     uuid.Must(uuid.NewV4()),
		ActorID:    uuid.Must(uuid.NewV4()),
		Permission: "read",
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestKafkaPublisher_KeysByNote(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := newKafkaPublisher(w, zaptest.NewLogger(t), 8, time.Second)

	ev := shareEvent(ShareCreated)
	require.NoError(t, p.PublishShare(context.Background(), ev))
	require.NoError(t, p.Close())
	require.True(t, w.closed)

	require.Len(t, w.msgs, 1)
	require.Equal(t, ev.NoteID.String(), string(w.msgs[0].Key))
	var got ShareEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	require.Equal(t, ev, got)

	require.ErrorIs(t, p.PublishShare(context.Background(), ev), ErrClosed)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_SlowBrokerDoesNotBlockCaller(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{release: make(chan struct{})}
	p := newKafkaPublisher(w, zaptest.NewLogger(t), 2, time.Minute)

	start := time.Now()
	require.NoError(t, p.PublishShare(context.Background(), shareEvent(ShareAccepted)))
	// the writer picks the first event up and blocks on it
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.PublishShare(context.Background(), shareEvent(ShareAccepted)))
	require.NoError(t, p.PublishShare(context.Background(), shareEvent(ShareAccepted)))
	require.ErrorIs(t, p.PublishShare(context.Background(), shareEvent(ShareRevoked)), ErrQueueFull)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	close(w.release)
	require.NoError(t, p.Close())
	require.Len(t, w.msgs, 3)
}

func TestKafkaPublisher_CancelledRequestStillDelivers(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil, 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.PublishShare(ctx, shareEvent(ShareDeclined)))
	require.NoError(t, p.Close())
	require.Len(t, w.msgs, 1)
}

func TestKafkaPublisher_WriteErrorIsLogged(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.WarnLevel)
	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, zap.New(core), 4, time.Second)

	require.NoError(t, p.PublishShare(context.Background(), shareEvent(ShareRevoked)))
	require.NoError(t, p.Close())

	entries := logs.FilterMessage("publish share event failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, ShareRevoked, entries[0].ContextMap()["type"])
}

func TestNop(t *testing.T) {
	t.Parallel()
	var p Publisher = Nop{}
	require.NoError(t, p.PublishShare(context.Background(), ShareEvent{}))
	require.NoError(t, p.Close())
}
