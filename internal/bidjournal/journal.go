// Package bidjournal is the append-only audit trail of accepted bids.
package bidjournal

import (
	"context"
	"time"
)

type Entry struct {
	ID          string    `json:"id"`
	RoundID     string    `json:"round_id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Increment   int64     `json:"increment"`
	Loss        int64     `json:"loss"`         // bidder's cumulative loss after the bid
	CurrentLoss int64     `json:"current_loss"` // round aggregate after the bid
	At          time.Time `json:"at"`
}

type Journal interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
