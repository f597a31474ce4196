package auction

import (
	"cmp"
	"slices"
	"time"

	"chitbidgo/internal/finance"
)

// Store keys of the two shared snapshots.
const (
	KeyConfig = "auctionConfig"
	KeyState  = "auctionState"
)

// Config is the admin-controlled, slow-changing part of the auction.
// MinLoss and JoinedUsers are derived and recomputed on every change.
type Config struct {
	DateMonth      string  `json:"date_month"`
	StartMonth     string  `json:"start_month"`
	EndMonth       string  `json:"end_month"`
	RunningMonth   string  `json:"running_month"`
	Term           int     `json:"term"            validate:"min=0"`
	ChitValue      int64   `json:"chit_value"      validate:"min=0"`
	LastBid        int64   `json:"last_bid"        validate:"min=0"`
	CommissionRate float64 `json:"commission_rate" validate:"min=0,max=100"`
	MinLoss        int64   `json:"min_loss"`
	MonthlyPayment int64   `json:"monthly_payment" validate:"min=0"`
	Ticker         string  `json:"ticker"`
	RoomCode       string  `json:"room_code"`
	BatchID        string  `json:"batch_id"`

	JoinedUsers     int            `json:"joined_users"`
	JoinedUsersList []finance.User `json:"joined_users_list"`
}

// State is the fast-changing, per-round part of the auction.
type State struct {
	RoundID     string     `json:"round_id"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Running     bool       `json:"running"`
	Finished    bool       `json:"finished"`
	CurrentLoss int64      `json:"current_loss"`
	Bidders     Ledger     `json:"bidders"`
	Winner      *Winner    `json:"winner,omitempty"`
	SecondsLeft int64      `json:"seconds_left"`
}

type EventKind string

const (
	EventConfig  EventKind = "config"
	EventState   EventKind = "state"
	EventTick    EventKind = "tick"
	EventSettled EventKind = "settled"
)

// Event is delivered to subscribers after every local mutation, clock tick
// and merged remote snapshot. Remote is true for merged snapshots.
type Event struct {
	Kind        EventKind
	Config      Config
	State       State
	SecondsLeft int64
	Remote      bool
}

func (c Config) clone() Config {
	out := c
	if c.JoinedUsersList != nil {
		out.JoinedUsersList = append([]finance.User(nil), c.JoinedUsersList...)
	}
	return out
}

func (s State) clone() State {
	out := s
	out.Bidders = append(Ledger{}, s.Bidders...)
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	return out
}

// normalize repairs snapshots read from the shared store. The ledger is
// re-ranked and a user listed twice keeps only their highest loss.
func (s *State) normalize() {
	ranked := slices.Clone(s.Bidders)
	slices.SortStableFunc(ranked, func(a, b Bidder) int {
		return cmp.Compare(b.Loss, a.Loss)
	})
	seen := make(map[string]bool, len(ranked))
	s.Bidders = make(Ledger, 0, MaxBidders)
	for _, b := range ranked {
		if seen[b.UserID] || len(s.Bidders) == MaxBidders {
			continue
		}
		seen[b.UserID] = true
		s.Bidders = append(s.Bidders, b)
	}
	if s.Finished {
		s.Running = false
	}
}
