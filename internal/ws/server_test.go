package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chitbidgo/internal/finance"
	"chitbidgo/internal/services/auction"
	"chitbidgo/internal/syncstore"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc auction.IAuctionService
	url string
}

func newTestEnv(t *testing.T, requireEligibility bool) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir := finance.DemoDirectory()
	svc := auction.NewAuctionService(syncstore.NewMemoryBus().Open("ws-test"), dir, nil, clockwork.NewFakeClock(),
		auction.Options{Defaults: auction.Config{ChitValue: 600000, CommissionRate: 5, RoomCode: "GK-123456", BatchID: "GK-A1"}})
	require.NoError(t, svc.Load(ctx))

	srv := NewWsServer(NewHub(), svc, dir, requireEligibility)
	events, unsubscribe := srv.subscribe(ctx)
	t.Cleanup(unsubscribe)
	go func() { _ = srv.pump(ctx, events) }()

	engine := gin.New()
	engine.GET("/ws", srv.Handle)
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)

	return testEnv{svc: svc, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, body any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Body: raw}))
}

// await reads frames until one with the given event arrives.
func await(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func TestHandle_RequiresKnownUser(t *testing.T) {
	env := newTestEnv(t, false)
	httpURL := "http" + strings.TrimPrefix(env.url, "ws")

	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(httpURL + "?user_id=ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_JoinAndBid(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dial(t, env.url+"?user_id=U-2")

	var snap SnapshotBody
	require.NoError(t, json.Unmarshal(await(t, conn, EventSnapshot).Body, &snap))
	assert.Equal(t, int64(30000), snap.Config.MinLoss)
	assert.False(t, snap.State.Running)

	require.NoError(t, env.svc.Start(context.Background()))
	await(t, conn, EventState)

	send(t, conn, EventBid, BidRequest{Increment: 1000})
	var eb ErrorBody
	require.NoError(t, json.Unmarshal(await(t, conn, EventError).Body, &eb))
	assert.Equal(t, ErrNotJoined.Error(), eb.Error)

	send(t, conn, EventJoin, JoinRequest{RoomCode: "GK-000000"})
	require.NoError(t, json.Unmarshal(await(t, conn, EventError).Body, &eb))
	assert.Equal(t, auction.ErrRoomCodeMismatch.Error(), eb.Error)

	send(t, conn, EventJoin, JoinRequest{RoomCode: "GK-123456"})
	var ack JoinAck
	require.NoError(t, json.Unmarshal(await(t, conn, EventJoin+"-ack").Body, &ack))
	assert.True(t, ack.Joined)

	send(t, conn, EventBid, BidRequest{Increment: 1000})
	await(t, conn, EventBid+"-ack")

	st := env.svc.GetState(context.Background())
	assert.Equal(t, int64(31000), st.CurrentLoss)
	require.Len(t, st.Bidders, 1)
	assert.Equal(t, auction.Bidder{UserID: "U-2", Name: "Anita", Loss: 1000}, st.Bidders[0])

	send(t, conn, EventBid, BidRequest{Increment: 1000})
	require.NoError(t, json.Unmarshal(await(t, conn, EventError).Body, &eb))
	assert.Equal(t, auction.ErrAlreadyTopBidder.Error(), eb.Error)
}

func TestHandle_BroadcastsToEveryViewer(t *testing.T) {
	env := newTestEnv(t, false)
	bidder := dial(t, env.url+"?user_id=U-3")
	watcher := dial(t, env.url+"?user_id=U-4")
	await(t, bidder, EventSnapshot)
	await(t, watcher, EventSnapshot)

	require.NoError(t, env.svc.Start(context.Background()))
	send(t, bidder, EventJoin, JoinRequest{RoomCode: "GK-123456"})
	await(t, bidder, EventJoin+"-ack")
	send(t, bidder, EventBid, BidRequest{Increment: 2000})
	await(t, bidder, EventBid+"-ack")

	require.NoError(t, watcher.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame Envelope
		require.NoError(t, watcher.ReadJSON(&frame))
		if frame.Event != EventState {
			continue
		}
		var body StateBody
		require.NoError(t, json.Unmarshal(frame.Body, &body))
		if body.State.CurrentLoss == 32000 {
			assert.True(t, body.State.Bidders.IsTop("U-3"))
			return
		}
	}
}

func TestHandle_EligibilityGate(t *testing.T) {
	env := newTestEnv(t, true)
	conn := dial(t, env.url+"?user_id=U-4")
	await(t, conn, EventSnapshot)

	require.NoError(t, env.svc.Start(context.Background()))
	send(t, conn, EventJoin, JoinRequest{RoomCode: "GK-123456"})
	await(t, conn, EventJoin+"-ack")

	send(t, conn, EventBid, BidRequest{Increment: 1000})
	var eb ErrorBody
	require.NoError(t, json.Unmarshal(await(t, conn, EventError).Body, &eb))
	assert.Equal(t, auction.ErrNotEligible.Error(), eb.Error)
}

func TestFrameFor(t *testing.T) {
	w := &auction.Winner{UserID: "U-2"}
	assert.Equal(t, EventTick, frameFor(auction.Event{Kind: auction.EventTick, SecondsLeft: 9}).Event)
	assert.Equal(t, TickBody{SecondsLeft: 9}, frameFor(auction.Event{Kind: auction.EventTick, SecondsLeft: 9}).Body)
	assert.Equal(t, EventConfig, frameFor(auction.Event{Kind: auction.EventConfig}).Event)
	assert.Equal(t, EventState, frameFor(auction.Event{Kind: auction.EventState}).Event)

	f := frameFor(auction.Event{Kind: auction.EventSettled, State: auction.State{Finished: true, Winner: w}})
	assert.Equal(t, EventSettled, f.Event)
	assert.Equal(t, w, f.Body.(SettledBody).Winner)
}
