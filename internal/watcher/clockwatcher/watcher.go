package clockwatcher

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Ticker is the part of the auction service the watcher drives.
type Ticker interface {
	Tick(ctx context.Context)
}

// Run calls svc.Tick every interval until ctx is done. The interval only
// sets how often the countdown is re-read; the round deadline itself is an
// absolute timestamp, so a slow or missed tick never shifts it.
// Run must be started once at service boot.
func Run(ctx context.Context, clk clockwork.Clock, interval time.Duration, svc Ticker) error {
	tk := clk.NewTicker(interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.Chan():
			svc.Tick(ctx)
		}
	}
}
