package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"chitbidgo/internal/bidjournal"
	"chitbidgo/internal/finance"
	"chitbidgo/internal/metrics"
	"chitbidgo/internal/syncstore"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	ErrAuctionNotRunning   = errors.New("auction not running")
	ErrAlreadyTopBidder    = errors.New("already the highest bidder")
	ErrInvalidIncrement    = errors.New("increment must be positive")
	ErrBidBelowIncrement   = errors.New("bid below min increment")
	ErrIncrementNotAllowed = errors.New("increment not in the allowed set")
	ErrIncrementTooLarge   = errors.New("increment too large")
	ErrRoomCodeMismatch    = errors.New("invalid room code")
	ErrNotEligible         = errors.New("not eligible to bid in this batch")

	ErrAlreadyRunning  = errors.New("auction already running")
	ErrAuctionFinished = errors.New("auction already finished")

	ErrInvalidConfig     = errors.New("invalid auction config")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// Roster is the part of the finance directory the auction reads.
type Roster interface {
	ListUsers(ctx context.Context) ([]finance.User, error)
	CanBid(ctx context.Context, userID, batchID string) (bool, error)
}

type Options struct {
	RoundDuration time.Duration
	MinIncrement  int64
	// Increments lists the accepted bid steps; empty accepts any step
	// from MinIncrement up.
	Increments []int64
	// Defaults seeds the config when the shared store is empty.
	Defaults Config
}

type IAuctionService interface {
	GetConfig(ctx context.Context) Config
	SetConfig(ctx context.Context, cfg Config) (Config, error)
	RefreshRoster(ctx context.Context) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	Finalize(ctx context.Context) *Winner

	JoinRoom(ctx context.Context, code string) bool
	PlaceBid(ctx context.Context, userID, name string, increment int64) error
	GetState(ctx context.Context) State
	CanBid(ctx context.Context, userID, batchID string) (bool, error)

	// Tick re-reads the deadline; it is driven by the clock watcher.
	Tick(ctx context.Context)
	// Load reads both snapshots from the shared store at startup.
	Load(ctx context.Context) error
	// ApplyRemote replaces the local value of key with a snapshot written
	// by another viewer.
	ApplyRemote(ctx context.Context, key string, value []byte) error
	// Subscribe registers fn for every event. Events reach fn one at a
	// time in the order the changes were made; fn must not call back into
	// a mutating method.
	Subscribe(fn func(Event)) (cancel func())
}

type auctionService struct {
	mu  sync.Mutex
	cfg Config
	st  State

	store        syncstore.Store
	roster       Roster
	journal      bidjournal.Journal
	clock        roundClock
	minIncrement int64
	increments   []int64
	validate     *validator.Validate

	// pubMu is taken before mu is released and held through delivery.
	pubMu  sync.Mutex
	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

var _ IAuctionService = (*auctionService)(nil)

// NewAuctionService returns a service holding the defaults until Load is
// called. journal may be nil.
func NewAuctionService(store syncstore.Store, roster Roster, journal bidjournal.Journal,
	clk clockwork.Clock, opts Options) IAuctionService {

	if opts.RoundDuration <= 0 {
		opts.RoundDuration = DefaultRoundDuration
	}
	svc := &auctionService{
		store:        store,
		roster:       roster,
		journal:      journal,
		clock:        roundClock{clk: clk, duration: opts.RoundDuration},
		minIncrement: opts.MinIncrement,
		increments:   slices.Clone(opts.Increments),
		validate:     validator.New(),
		subs:         make(map[int]func(Event)),
	}
	svc.cfg = opts.Defaults.clone()
	svc.cfg.derive()
	svc.st = svc.freshState()
	return svc
}

func (svc *auctionService) freshState() State {
	return State{
		RoundID:     uuid.NewString(),
		Bidders:     Ledger{},
		CurrentLoss: svc.cfg.MinLoss,
		SecondsLeft: svc.clock.fullSeconds(),
	}
}

// ---------------------------------------------------------------------------
//  Config
// ---------------------------------------------------------------------------

func (svc *auctionService) GetConfig(_ context.Context) Config {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.cfg.clone()
}

// SetConfig replaces the admin fields. The roster list is kept and the
// derived fields are recomputed. While the round is not running a higher
// commission also lifts the round's baseline loss.
func (svc *auctionService) SetConfig(ctx context.Context, in Config) (Config, error) {
	if err := svc.validate.Struct(in); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	svc.mu.Lock()
	next := in.clone()
	next.JoinedUsersList = svc.cfg.clone().JoinedUsersList
	next.derive()
	baseChanged := next.ChitValue != svc.cfg.ChitValue || next.CommissionRate != svc.cfg.CommissionRate
	svc.cfg = next
	svc.persistLocked(ctx, KeyConfig, svc.cfg)

	stateChanged := false
	if baseChanged && !svc.st.Running && svc.st.CurrentLoss < svc.cfg.MinLoss {
		svc.st.CurrentLoss = svc.cfg.MinLoss
		svc.persistLocked(ctx, KeyState, svc.st)
		stateChanged = true
	}
	cfg, st := svc.snapshotLocked()

	events := []Event{{Kind: EventConfig, Config: cfg, State: st}}
	if stateChanged {
		events = append(events, Event{Kind: EventState, Config: cfg, State: st})
	}
	svc.unlockAndPublish(events...)
	return cfg, nil
}

func (svc *auctionService) RefreshRoster(ctx context.Context) error {
	users, err := svc.roster.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("refresh roster: %w", err)
	}

	svc.mu.Lock()
	svc.cfg.JoinedUsersList = users
	svc.cfg.derive()
	svc.persistLocked(ctx, KeyConfig, svc.cfg)
	cfg, st := svc.snapshotLocked()
	svc.unlockAndPublish(Event{Kind: EventConfig, Config: cfg, State: st})
	return nil
}

// ---------------------------------------------------------------------------
//  Admin controls
// ---------------------------------------------------------------------------

func (svc *auctionService) Start(ctx context.Context) error {
	svc.mu.Lock()
	switch {
	case svc.st.Finished:
		svc.mu.Unlock()
		return ErrAuctionFinished
	case svc.st.Running:
		svc.mu.Unlock()
		return ErrAlreadyRunning
	}
	svc.st.Running = true
	svc.clock.fix(&svc.st)
	svc.st.SecondsLeft = svc.clock.remaining(svc.st)
	svc.persistLocked(ctx, KeyState, svc.st)
	cfg, st := svc.snapshotLocked()

	zap.L().Info("auction.started",
		zap.String("round_id", st.RoundID),
		zap.Timep("end_time", st.EndTime))
	svc.unlockAndPublish(Event{Kind: EventState, Config: cfg, State: st})
	return nil
}

// Stop pauses bidding without settling. The deadline is kept, so a restart
// resumes against the same end time.
func (svc *auctionService) Stop(ctx context.Context) error {
	svc.mu.Lock()
	switch {
	case svc.st.Finished:
		svc.mu.Unlock()
		return ErrAuctionFinished
	case !svc.st.Running:
		svc.mu.Unlock()
		return ErrAuctionNotRunning
	}
	svc.st.Running = false
	svc.st.SecondsLeft = svc.clock.remaining(svc.st)
	svc.persistLocked(ctx, KeyState, svc.st)
	cfg, st := svc.snapshotLocked()

	zap.L().Info("auction.stopped", zap.String("round_id", st.RoundID), zap.Int64("seconds_left", st.SecondsLeft))
	svc.unlockAndPublish(Event{Kind: EventState, Config: cfg, State: st})
	return nil
}

func (svc *auctionService) Reset(ctx context.Context) error {
	svc.mu.Lock()
	svc.st = svc.freshState()
	svc.persistLocked(ctx, KeyState, svc.st)
	cfg, st := svc.snapshotLocked()

	metrics.CurrentLoss.Set(float64(st.CurrentLoss))
	zap.L().Info("auction.reset", zap.String("round_id", st.RoundID))
	svc.unlockAndPublish(Event{Kind: EventState, Config: cfg, State: st})
	return nil
}

// Finalize settles the round now. On a finished round it returns the
// recorded winner and changes nothing.
func (svc *auctionService) Finalize(ctx context.Context) *Winner {
	svc.mu.Lock()
	if svc.st.Finished {
		w := svc.st.clone().Winner
		svc.mu.Unlock()
		return w
	}
	svc.settleLocked()
	svc.persistLocked(ctx, KeyState, svc.st)
	cfg, st := svc.snapshotLocked()
	svc.unlockAndPublish(Event{Kind: EventSettled, Config: cfg, State: st})
	return st.Winner
}

func (svc *auctionService) settleLocked() {
	svc.st.Winner = Settle(svc.st.Bidders, svc.cfg.MinLoss, svc.cfg.ChitValue)
	svc.st.Running = false
	svc.st.Finished = true
	svc.st.SecondsLeft = 0

	if w := svc.st.Winner; w != nil {
		metrics.RoundsSettled.WithLabelValues("winner").Inc()
		zap.L().Info("auction.settled",
			zap.String("round_id", svc.st.RoundID),
			zap.String("winner", w.UserID),
			zap.Int64("winner_loss", w.WinnerLoss),
			zap.Int64("final_loss", w.FinalLoss),
			zap.Int64("month_in_hand", w.MonthInHand))
		return
	}
	metrics.RoundsSettled.WithLabelValues("no_winner").Inc()
	zap.L().Info("auction.settled_without_bids", zap.String("round_id", svc.st.RoundID))
}

// ---------------------------------------------------------------------------
//  Bidding
// ---------------------------------------------------------------------------

// JoinRoom reports whether code opens the room. Joining is tracked by the
// caller, per viewer; nothing shared changes.
func (svc *auctionService) JoinRoom(_ context.Context, code string) bool {
	svc.mu.Lock()
	room := svc.cfg.RoomCode
	svc.mu.Unlock()
	return room != "" && strings.TrimSpace(code) == room
}

func (svc *auctionService) PlaceBid(ctx context.Context, userID, name string, increment int64) error {
	if err := svc.checkIncrement(increment); err != nil {
		metrics.BidsTotal.WithLabelValues(rejectLabel(err)).Inc()
		return err
	}

	svc.mu.Lock()
	if err := svc.checkBidLocked(userID, increment); err != nil {
		svc.mu.Unlock()
		metrics.BidsTotal.WithLabelValues(rejectLabel(err)).Inc()
		return err
	}
	bidders, loss := svc.st.Bidders.Place(userID, name, increment)
	svc.st.Bidders = bidders
	svc.st.CurrentLoss += increment
	svc.persistLocked(ctx, KeyState, svc.st)
	cfg, st := svc.snapshotLocked()

	metrics.BidsTotal.WithLabelValues("accepted").Inc()
	metrics.CurrentLoss.Set(float64(st.CurrentLoss))
	svc.unlockAndPublish(Event{Kind: EventState, Config: cfg, State: st})

	if svc.journal != nil {
		entry := bidjournal.Entry{
			RoundID:     st.RoundID,
			UserID:      userID,
			Name:        name,
			Increment:   increment,
			Loss:        loss,
			CurrentLoss: st.CurrentLoss,
			At:          svc.clock.clk.Now().UTC(),
		}
		if err := svc.journal.Append(ctx, entry); err != nil {
			zap.L().Warn("auction.journal_append", zap.Error(err))
		}
	}
	return nil
}

func (svc *auctionService) checkIncrement(increment int64) error {
	if increment <= 0 {
		return ErrInvalidIncrement
	}
	if increment < svc.minIncrement {
		return ErrBidBelowIncrement
	}
	if len(svc.increments) > 0 && !slices.Contains(svc.increments, increment) {
		return ErrIncrementNotAllowed
	}
	return nil
}

func (svc *auctionService) checkBidLocked(userID string, increment int64) error {
	if !svc.st.Running || svc.st.Finished {
		return ErrAuctionNotRunning
	}
	// Deadline passed but the next tick has not settled yet.
	if svc.st.EndTime != nil && svc.clock.remaining(svc.st) == 0 {
		return ErrAuctionNotRunning
	}
	if svc.st.Bidders.IsTop(userID) {
		return ErrAlreadyTopBidder
	}
	// Neither the round total nor the bidder's settled loss may wrap.
	if increment > math.MaxInt64-svc.st.CurrentLoss ||
		increment > math.MaxInt64-max(svc.cfg.MinLoss, 0)-svc.st.Bidders.LossOf(userID) {
		return ErrIncrementTooLarge
	}
	return nil
}

func rejectLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidIncrement):
		return "invalid_increment"
	case errors.Is(err, ErrBidBelowIncrement):
		return "below_increment"
	case errors.Is(err, ErrIncrementNotAllowed):
		return "not_allowed"
	case errors.Is(err, ErrIncrementTooLarge):
		return "too_large"
	case errors.Is(err, ErrAlreadyTopBidder):
		return "already_top"
	default:
		return "not_running"
	}
}

// GetState returns a snapshot; while the round runs SecondsLeft is read
// from the deadline at call time.
func (svc *auctionService) GetState(_ context.Context) State {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, st := svc.snapshotLocked()
	return st
}

// snapshotLocked copies config and state for callers and subscribers.
func (svc *auctionService) snapshotLocked() (Config, State) {
	st := svc.st.clone()
	if st.Running && !st.Finished && st.EndTime != nil {
		st.SecondsLeft = SecondsLeft(*st.EndTime, svc.clock.clk.Now())
	}
	return svc.cfg.clone(), st
}

// CanBid checks eligibility in batchID, or in the configured batch when
// batchID is empty.
func (svc *auctionService) CanBid(ctx context.Context, userID, batchID string) (bool, error) {
	if batchID == "" {
		svc.mu.Lock()
		batchID = svc.cfg.BatchID
		svc.mu.Unlock()
	}
	return svc.roster.CanBid(ctx, userID, batchID)
}

// ---------------------------------------------------------------------------
//  Clock
// ---------------------------------------------------------------------------

func (svc *auctionService) Tick(ctx context.Context) {
	svc.mu.Lock()
	if !svc.st.Running || svc.st.Finished {
		svc.mu.Unlock()
		return
	}
	fixed := svc.clock.fix(&svc.st)
	left := svc.clock.remaining(svc.st)
	svc.st.SecondsLeft = left

	settled := left == 0
	if settled {
		svc.settleLocked()
	}
	// Plain ticks are not written: seconds_left is derived by every viewer
	// and a write here could overwrite a concurrent bid from another viewer.
	if fixed || settled {
		svc.persistLocked(ctx, KeyState, svc.st)
	}
	cfg, st := svc.snapshotLocked()

	metrics.SecondsLeft.Set(float64(left))
	events := []Event{{Kind: EventTick, Config: cfg, State: st, SecondsLeft: left}}
	switch {
	case settled:
		events = append(events, Event{Kind: EventSettled, Config: cfg, State: st})
	case fixed:
		events = append(events, Event{Kind: EventState, Config: cfg, State: st})
	}
	svc.unlockAndPublish(events...)
}

// ---------------------------------------------------------------------------
//  Synchronization
// ---------------------------------------------------------------------------

// Load replaces the defaults with the stored snapshots. A missing or
// malformed snapshot is replaced in the store by the local value.
func (svc *auctionService) Load(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	raw, err := svc.store.Get(ctx, KeyConfig)
	if err != nil && !errors.Is(err, syncstore.ErrNotFound) {
		return fmt.Errorf("load %s: %w", KeyConfig, err)
	}
	var c Config
	if err == nil && svc.decode(KeyConfig, raw, &c) {
		c.derive()
		svc.cfg = c
	} else {
		svc.persistLocked(ctx, KeyConfig, svc.cfg)
	}

	raw, err = svc.store.Get(ctx, KeyState)
	if err != nil && !errors.Is(err, syncstore.ErrNotFound) {
		return fmt.Errorf("load %s: %w", KeyState, err)
	}
	var s State
	if err == nil && svc.decode(KeyState, raw, &s) {
		s.normalize()
		svc.st = s
	} else {
		svc.st = svc.freshState()
		svc.persistLocked(ctx, KeyState, svc.st)
	}

	metrics.CurrentLoss.Set(float64(svc.st.CurrentLoss))
	zap.L().Info("auction.loaded",
		zap.String("round_id", svc.st.RoundID),
		zap.Bool("running", svc.st.Running),
		zap.Bool("finished", svc.st.Finished))
	return nil
}

func (svc *auctionService) decode(key string, raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		zap.L().Warn("auction.snapshot_malformed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (svc *auctionService) ApplyRemote(_ context.Context, key string, value []byte) error {
	switch key {
	case KeyConfig:
		var c Config
		if err := json.Unmarshal(value, &c); err != nil {
			return svc.rejectRemote(key, err)
		}
		c.derive()

		svc.mu.Lock()
		svc.cfg = c
		cfg, st := svc.snapshotLocked()

		metrics.SyncMerges.WithLabelValues(key, "ok").Inc()
		svc.unlockAndPublish(Event{Kind: EventConfig, Config: cfg, State: st, Remote: true})

	case KeyState:
		var s State
		if err := json.Unmarshal(value, &s); err != nil {
			return svc.rejectRemote(key, err)
		}
		s.normalize()

		svc.mu.Lock()
		svc.st = s
		cfg, st := svc.snapshotLocked()

		metrics.SyncMerges.WithLabelValues(key, "ok").Inc()
		metrics.CurrentLoss.Set(float64(st.CurrentLoss))
		svc.unlockAndPublish(Event{Kind: EventState, Config: cfg, State: st, Remote: true})
	}
	return nil
}

func (svc *auctionService) rejectRemote(key string, err error) error {
	metrics.SyncMerges.WithLabelValues(key, "malformed").Inc()
	zap.L().Warn("auction.merge_malformed", zap.String("key", key), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, key, err)
}

// persistLocked writes a snapshot through. A failed write leaves the local
// value in place; it is logged and counted.
func (svc *auctionService) persistLocked(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("auction.snapshot_encode", zap.String("key", key), zap.Error(err))
		return
	}
	if err := svc.store.Put(ctx, key, raw); err != nil {
		metrics.StoreWriteErrors.WithLabelValues(key).Inc()
		zap.L().Warn("auction.persist_failed", zap.String("key", key), zap.Error(err))
	}
}

func (svc *auctionService) Subscribe(fn func(Event)) func() {
	svc.subMu.Lock()
	id := svc.nextID
	svc.nextID++
	svc.subs[id] = fn
	svc.subMu.Unlock()

	return func() {
		svc.subMu.Lock()
		delete(svc.subs, id)
		svc.subMu.Unlock()
	}
}

// unlockAndPublish releases mu and delivers events. Taking pubMu first
// keeps delivery in the order the changes were applied under mu.
func (svc *auctionService) unlockAndPublish(events ...Event) {
	svc.pubMu.Lock()
	defer svc.pubMu.Unlock()
	svc.mu.Unlock()

	for _, e := range events {
		svc.publish(e)
	}
}

func (svc *auctionService) publish(e Event) {
	svc.subMu.RLock()
	fns := make([]func(Event), 0, len(svc.subs))
	for _, fn := range svc.subs {
		fns = append(fns, fn)
	}
	svc.subMu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
