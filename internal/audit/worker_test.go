package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	mu        sync.Mutex
	published []OutboxEntry
	err       error
}

func (p *recordingProducer) Publish(_ context.Context, entries []OutboxEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, entries...)
	return nil
}

func (p *recordingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func seedOutbox(t *testing.T, n int) *InMemoryOutbox {
	t.Helper()
	outbox := NewInMemoryOutbox()
	p := NewPublisher(outbox, WithLogger(quietLogger()))
	for i := 0; i < n; i++ {
		require.NoError(t, p.Emit(context.Background(), decisionEvent()))
	}
	return outbox
}

func TestRelayOnce_PublishesInBatches(t *testing.T) {
	outbox := seedOutbox(t, 5)
	producer := &recordingProducer{}
	relay := NewRelay(outbox, producer, WithRelayBatch(3), WithRelayLogger(quietLogger()))

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 5, producer.count())
	for _, e := range outbox.Entries() {
		assert.NotNil(t, e.PublishedAt)
	}
}

func TestRelayOnce_LeavesEntriesPendingOnFailure(t *testing.T) {
	outbox := seedOutbox(t, 2)
	relay := NewRelay(outbox, &recordingProducer{err: errors.New("broker down")}, WithRelayLogger(quietLogger()))

	n, err := relay.RelayOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)

	pending, err := outbox.Pending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestRelayRun_StopsOnCancel(t *testing.T) {
	outbox := seedOutbox(t, 4)
	producer := &recordingProducer{}
	relay := NewRelay(outbox, producer,
		WithRelayInterval(5*time.Millisecond),
		WithRelayLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return producer.count() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
