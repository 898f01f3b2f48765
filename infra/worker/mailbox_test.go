package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailbox_PreservesOrder(t *testing.T) {
	req := require.New(t)

	var mu sync.Mutex
	var got []int
	mb := New("order", 100, func(_ context.Context, v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	mb.Start()

	for i := 0; i < 50; i++ {
		req.True(mb.Offer(i))
	}
	req.NoError(mb.Stop(context.Background()))

	req.Len(got, 50)
	for i, v := range got {
		req.Equal(i, v)
	}
}

func TestMailbox_FullMailboxRejectsWithoutBlocking(t *testing.T) {
	req := require.New(t)

	release := make(chan struct{})
	var drops atomic.Int32
	mb := New("full", 1, func(_ context.Context, _ int) { <-release }, WithDropHook(func() { drops.Add(1) }))
	mb.Start()

	// The first item is taken by the handler, the second fills the buffer.
	req.True(mb.Offer(1))
	req.Eventually(func() bool { return mb.Len() == 0 }, time.Second, time.Millisecond)
	req.True(mb.Offer(2))
	req.False(mb.Offer(3))
	req.Equal(int32(1), drops.Load())

	close(release)
	req.NoError(mb.Stop(context.Background()))
}

func TestMailbox_OfferAfterStop(t *testing.T) {
	req := require.New(t)

	mb := New("stopped", 4, func(context.Context, int) {})
	mb.Start()
	req.NoError(mb.Stop(context.Background()))
	req.NoError(mb.Stop(context.Background()))

	req.False(mb.Offer(1))
}

func TestMailbox_PanicDoesNotKillWorker(t *testing.T) {
	req := require.New(t)

	var handled atomic.Int32
	mb := New("panic", 4, func(_ context.Context, v int) {
		if v == 0 {
			panic("boom")
		}
		handled.Add(1)
	})
	mb.Start()

	req.True(mb.Offer(0))
	req.True(mb.Offer(1))
	req.NoError(mb.Stop(context.Background()))
	req.Equal(int32(1), handled.Load())
}

func TestMailbox_StopDeadlineCancelsHandler(t *testing.T) {
	req := require.New(t)

	mb := New("slow", 4, func(ctx context.Context, _ int) { <-ctx.Done() })
	mb.Start()
	req.True(mb.Offer(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(mb.Stop(ctx), context.DeadlineExceeded)
}
