// Package finance is the adapter to the customer records the auction reads
// and writes back to: the user roster, per-user chit subscriptions, and the
// monthly settlement row shown on a user's personal-finance page.
package finance

import (
	"context"
	"errors"
)

const (
	ChitActive    = "Active"
	ChitCompleted = "Completed"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Chit is one user's subscription to a chit batch.
type Chit struct {
	BatchID   string `json:"batch_id"`
	BatchName string `json:"batch_name"`
	Value     int64  `json:"value"`
	Term      int    `json:"term"`
	Status    string `json:"status"`
	BidWon    bool   `json:"bid_won"`
	BidMonth  string `json:"bid_month,omitempty"`
	BidAmount int64  `json:"bid_amount,omitempty"`
}

// MonthRow is the settlement summary recorded for a round's winner.
type MonthRow struct {
	Name           string `json:"name"`
	ChitValue      int64  `json:"chit_value"`
	MonthLoss      int64  `json:"month_loss"`
	MonthInHand    int64  `json:"month_in_hand"`
	MonthlyPayment int64  `json:"monthly_payment"`
	RunningMonth   string `json:"running_month"`
}

type Directory interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// CanBid is true iff the user holds an active chit in batchID that has
	// not won a bid yet.
	CanBid(ctx context.Context, userID, batchID string) (bool, error)
	// RecordWin marks the user's chit in batchID as won and stores row as
	// the user's live month row.
	RecordWin(ctx context.Context, userID, batchID string, row MonthRow) error
	LiveRow(ctx context.Context, userID string) (MonthRow, bool, error)
}

func eligible(chits []Chit, batchID string) bool {
	for _, c := range chits {
		if c.BatchID == batchID && c.Status == ChitActive {
			return !c.BidWon
		}
	}
	return false
}
