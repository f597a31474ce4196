package auction

import (
	"cmp"
	"slices"
)

// MaxBidders is the number of ranked positions kept on the leaderboard.
const MaxBidders = 3

// Bidder is one leaderboard position. Loss is the user's cumulative
// increment total for the round, not a single bid.
type Bidder struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Loss   int64  `json:"loss"`
}

// Ledger holds the top bidders of the active round, highest loss first.
// Among equal losses the most recently updated bidder ranks first.
type Ledger []Bidder

// LossOf returns the cumulative loss recorded for userID, 0 if absent.
func (l Ledger) LossOf(userID string) int64 {
	for _, b := range l {
		if b.UserID == userID {
			return b.Loss
		}
	}
	return 0
}

// IsTop reports whether userID holds rank 1.
func (l Ledger) IsTop(userID string) bool {
	return len(l) > 0 && l[0].UserID == userID
}

// Place returns a new ledger in which userID's cumulative loss is raised by
// increment, together with that new cumulative loss. The receiver is not
// modified. The updated bidder is inserted in front of the others before a
// stable sort, which is what puts it ahead of peers with the same loss.
func (l Ledger) Place(userID, name string, increment int64) (Ledger, int64) {
	me := Bidder{UserID: userID, Name: name, Loss: l.LossOf(userID) + increment}

	next := make(Ledger, 0, len(l)+1)
	next = append(next, me)
	for _, b := range l {
		if b.UserID != userID {
			next = append(next, b)
		}
	}
	slices.SortStableFunc(next, func(a, b Bidder) int {
		return cmp.Compare(b.Loss, a.Loss)
	})
	if len(next) > MaxBidders {
		next = next[:MaxBidders]
	}
	return next, me.Loss
}
