package ws

import (
	"encoding/json"

	"chitbidgo/internal/services/auction"
)

// Server → client events.
const (
	EventSnapshot = "auction/snapshot"
	EventConfig   = "auction/config"
	EventState    = "auction/state"
	EventTick     = "auction/tick"
	EventSettled  = "auction/settled"
	EventError    = "error"
)

// Client → server events; replies are "<event>-ack" or "error".
const (
	EventJoin     = "auction/join"
	EventBid      = "auction/bid"
	EventGetState = "auction/get-state"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auction/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// JoinRequest is the body for "auction/join".
type JoinRequest struct {
	RoomCode string `json:"room_code"`
}

type JoinAck struct {
	Joined bool `json:"joined"`
}

// BidRequest is the body for "auction/bid".
type BidRequest struct {
	Increment int64 `json:"increment"`
}

// Empty ACK body.
type AckBody struct{}

type SnapshotBody struct {
	Config auction.Config `json:"config"`
	State  auction.State  `json:"state"`
}

type ConfigBody struct {
	Config auction.Config `json:"config"`
}

type StateBody struct {
	State auction.State `json:"state"`
}

type TickBody struct {
	SecondsLeft int64 `json:"seconds_left"`
}

type SettledBody struct {
	State  auction.State   `json:"state"`
	Winner *auction.Winner `json:"winner"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}

type outFrame struct {
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// frameFor maps a service event to its broadcast frame.
func frameFor(e auction.Event) outFrame {
	switch e.Kind {
	case auction.EventConfig:
		return outFrame{Event: EventConfig, Body: ConfigBody{Config: e.Config}}
	case auction.EventTick:
		return outFrame{Event: EventTick, Body: TickBody{SecondsLeft: e.SecondsLeft}}
	case auction.EventSettled:
		return outFrame{Event: EventSettled, Body: SettledBody{State: e.State, Winner: e.State.Winner}}
	default:
		return outFrame{Event: EventState, Body: StateBody{State: e.State}}
	}
}
