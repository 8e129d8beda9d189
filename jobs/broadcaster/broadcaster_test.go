package broadcaster

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnuser/red-envelope-server/infra/logging"
	exitwal "github.com/gnuser/red-envelope-server/infra/wal/exit"
)

type fakePublisher struct {
	mu      sync.Mutex
	got     []uint64
	failSeq uint64
	closed  bool
}

func (p *fakePublisher) Publish(_ context.Context, m exitwal.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.Seq == p.failSeq {
		return errors.New("broker down")
	}
	p.got = append(p.got, m.Seq)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func newOutbox(t *testing.T, n int) *exitwal.Outbox {
	t.Helper()
	o, err := exitwal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	for i := 0; i < n; i++ {
		_, err := o.PutNew(exitwal.KindDeal, "BTCUSD", i)
		require.NoError(t, err)
	}
	return o
}

func count(t *testing.T, o *exitwal.Outbox, state exitwal.ExitState) int {
	t.Helper()
	n := 0
	require.NoError(t, o.ScanByState(state, 0, func(exitwal.Message) error {
		n++
		return nil
	}))
	return n
}

func TestRunOncePublishesInOrder(t *testing.T) {
	o := newOutbox(t, 3)
	pub := &fakePublisher{}
	b := New(logging.NewTestLogger(), o, pub)

	n, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint64{1, 2, 3}, pub.got)
	assert.Zero(t, count(t, o, exitwal.StateNew))
	assert.Zero(t, count(t, o, exitwal.StateAcked))
}

func TestRunOnceStopsAtFailure(t *testing.T) {
	o := newOutbox(t, 3)
	pub := &fakePublisher{failSeq: 2}
	b := New(logging.NewTestLogger(), o, pub)

	n, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{1}, pub.got)
	assert.Equal(t, 2, count(t, o, exitwal.StateNew))

	m, err := o.Get(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), m.Retries)

	pub.failSeq = 0
	n, err = b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{1, 2, 3}, pub.got)
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	o := newOutbox(t, 2)
	pub := &fakePublisher{failSeq: 1}
	b := New(logging.NewTestLogger(), o, pub, WithMaxRetries(2))

	_, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, o, exitwal.StateFailed))

	n, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{2}, pub.got)
}

func TestStartRequeuesSent(t *testing.T) {
	o := newOutbox(t, 1)
	require.NoError(t, o.UpdateState(1, exitwal.StateSent, 0))

	pub := &fakePublisher{}
	b := New(logging.NewTestLogger(), o, pub)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))
	cancel()
	require.NoError(t, b.Close())

	assert.True(t, pub.closed)
	assert.Zero(t, count(t, o, exitwal.StateSent))
}
