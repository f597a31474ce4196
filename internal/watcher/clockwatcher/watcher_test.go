package clockwatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTicker struct{ n atomic.Int32 }

func (c *countingTicker) Tick(context.Context) { c.n.Add(1) }

func TestRun_TicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := clockwork.NewFakeClock()
	svc := &countingTicker{}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, fc, time.Second, svc) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))

	for i := 1; i <= 3; i++ {
		fc.Advance(time.Second)
		want := int32(i)
		assert.Eventually(t, func() bool { return svc.n.Load() == want }, time.Second, 5*time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
