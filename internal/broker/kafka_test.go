package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"fuel-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the context ends
type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func newTestConsumer(reader *fakeReader) *Consumer {
	return &Consumer{reader: reader, topic: "order-events", maxAttempts: 3, backoff: time.Millisecond, logger: util.GetLogger()}
}

func TestConsumerRetriesThenCommitsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}, cancel: cancel}

	attempts := map[int64]int{}
	err := newTestConsumer(reader).StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		attempts[msg.Offset]++
		switch {
		case msg.Offset == 2 && attempts[2] < 2:
			return errors.New("database is restarting")
		case msg.Offset == 3:
			return errors.New("always broken")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, map[int64]int{1: 1, 2: 2, 3: 3}, attempts)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}

func TestConsumerStopsRetryingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{queue: []kafka.Message{{Offset: 8}}, cancel: cancel}

	err := newTestConsumer(reader).StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		cancel()
		return errors.New("shutting down")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reader.committed)
}
