package syncwatcher

import (
	"context"
	"testing"
	"time"

	"chitbidgo/internal/finance"
	"chitbidgo/internal/services/auction"
	"chitbidgo/internal/syncstore"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = auction.Config{ChitValue: 600000, CommissionRate: 5, RoomCode: "GK-123456", BatchID: "GK-A1"}

func newViewer(t *testing.T, ctx context.Context, bus *syncstore.MemoryBus, clk clockwork.Clock, origin string) auction.IAuctionService {
	t.Helper()
	store := bus.Open(origin)
	svc := auction.NewAuctionService(store, finance.DemoDirectory(), nil, clk, auction.Options{Defaults: defaults})
	require.NoError(t, svc.Load(ctx))
	go func() { _ = Run(ctx, store, svc) }()
	return svc
}

// linked waits until writes from one viewer reach the other.
func linked(t *testing.T, ctx context.Context, from, to auction.IAuctionService, code string) {
	t.Helper()
	cfg := from.GetConfig(ctx)
	cfg.RoomCode = code
	assert.Eventually(t, func() bool {
		if _, err := from.SetConfig(ctx, cfg); err != nil {
			return false
		}
		return to.GetConfig(ctx).RoomCode == code
	}, 2*time.Second, 10*time.Millisecond)
}

func TestViewersConverge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := syncstore.NewMemoryBus()
	clk := clockwork.NewFakeClockAt(time.Date(2025, 11, 10, 16, 0, 0, 0, time.UTC))
	a := newViewer(t, ctx, bus, clk, "viewer-a")
	b := newViewer(t, ctx, bus, clk, "viewer-b")

	linked(t, ctx, a, b, "GK-111111")
	linked(t, ctx, b, a, "GK-222222")

	require.NoError(t, a.Start(ctx))
	assert.Eventually(t, func() bool { return b.GetState(ctx).Running }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.PlaceBid(ctx, "U-2", "Anita", 1000))
	assert.Eventually(t, func() bool { return a.GetState(ctx).Bidders.IsTop("U-2") }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.PlaceBid(ctx, "U-3", "Kiran", 2000))
	assert.Eventually(t, func() bool { return b.GetState(ctx).CurrentLoss == 33000 }, time.Second, 5*time.Millisecond)

	clk.Advance(auction.DefaultRoundDuration)
	sa, sb := a.GetState(ctx), b.GetState(ctx)
	assert.Equal(t, int64(0), sa.SecondsLeft)
	assert.Equal(t, sa.SecondsLeft, sb.SecondsLeft)

	b.Tick(ctx)
	assert.Eventually(t, func() bool {
		st := a.GetState(ctx)
		return st.Finished && st.Winner != nil && st.Winner.UserID == "U-3"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, a.GetConfig(ctx), b.GetConfig(ctx))
}

func TestRun_DropsMalformedSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := syncstore.NewMemoryBus()
	clk := clockwork.NewFakeClock()
	a := newViewer(t, ctx, bus, clk, "viewer-a")
	writer := bus.Open("raw")

	assert.Eventually(t, func() bool {
		if err := writer.Put(ctx, auction.KeyConfig, []byte(`{"room_code":"GK-333333","chit_value":100000,"commission_rate":5}`)); err != nil {
			return false
		}
		return a.GetConfig(ctx).RoomCode == "GK-333333"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Put(ctx, auction.KeyConfig, []byte(`{"room_code":`)))
	require.NoError(t, writer.Put(ctx, auction.KeyState, []byte(`{"round_id":"r-next"}`)))
	assert.Eventually(t, func() bool { return a.GetState(ctx).RoundID == "r-next" }, time.Second, 5*time.Millisecond)

	cfg := a.GetConfig(ctx)
	assert.Equal(t, "GK-333333", cfg.RoomCode)
	assert.Equal(t, int64(5000), cfg.MinLoss)
}
