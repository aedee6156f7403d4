package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/trex-ayush/4-Dot-Game/internal/bot"
	"github.com/trex-ayush/4-Dot-Game/internal/session"
	"github.com/trex-ayush/4-Dot-Game/pkg/gamedto"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	srv, _ := newTestStack(t)
	return srv
}

func newTestStack(t *testing.T) (*httptest.Server, *Gateway) {
	t.Helper()
	reg := session.New(session.Config{
		MoveTimeout:  time.Hour,
		GraceTimeout: time.Hour,
		QueueTimeout: time.Hour,
		ChallengeTTL: time.Hour,
		BotMoveDelay: time.Millisecond,
	}, session.Deps{Bot: bot.New(2)})
	t.Cleanup(reg.Close)

	g := New(reg, nil)
	reg.SetSink(g)

	mux := http.NewServeMux()
	mux.Handle("/ws", g)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, g
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendCmd(t *testing.T, conn *websocket.Conn, action string, data any) {
	t.Helper()
	cmd := gamedto.Command{Action: action}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s payload: %v", action, err)
		}
		cmd.Data = raw
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		t.Fatalf("write %s: %v", action, err)
	}
}

// readUntil consumes events until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, evType string) envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		var ev envelope
		err := wsjson.Read(ctx, conn, &ev)
		cancel()
		if err != nil {
			t.Fatalf("read waiting for %q: %v", evType, err)
		}
		if ev.Type == evType {
			return ev
		}
	}
	t.Fatalf("timed out waiting for %q", evType)
	return envelope{}
}

func register(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()
	sendCmd(t, conn, gamedto.ActionRegister, gamedto.RegisterRequest{Username: username})
	readUntil(t, conn, EventRegistered)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	sendCmd(t, conn, gamedto.ActionRegister, gamedto.RegisterRequest{Username: "x"})
	ev := readUntil(t, conn, EventOperationRejected)
	var rej gamedto.Rejection
	if err := json.Unmarshal(ev.Data, &rej); err != nil {
		t.Fatalf("unmarshal rejection: %v", err)
	}
	if rej.Action != gamedto.ActionRegister || rej.Kind != string(session.KindValidation) {
		t.Fatalf("rejection = %+v", rej)
	}

	sendCmd(t, conn, gamedto.ActionRegister, gamedto.RegisterRequest{Username: "  Alice_01 "})
	ev = readUntil(t, conn, EventRegistered)
	var reg struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(ev.Data, &reg); err != nil {
		t.Fatalf("unmarshal registered: %v", err)
	}
	if reg.Username != "alice_01" {
		t.Fatalf("registered username = %q, want normalized alice_01", reg.Username)
	}
}

func TestCommandsRequireRegistration(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	sendCmd(t, conn, gamedto.ActionJoinQueue, nil)
	ev := readUntil(t, conn, EventOperationRejected)
	var rej gamedto.Rejection
	if err := json.Unmarshal(ev.Data, &rej); err != nil {
		t.Fatalf("unmarshal rejection: %v", err)
	}
	if rej.Action != gamedto.ActionJoinQueue {
		t.Fatalf("rejection action = %q, want join_queue", rej.Action)
	}
}

func TestQueueMatchAndMoveFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)
	register(t, alice, "alice")
	register(t, bob, "bob")

	sendCmd(t, alice, gamedto.ActionJoinQueue, nil)
	readUntil(t, alice, session.EventQueueUpdate)
	sendCmd(t, bob, gamedto.ActionJoinQueue, nil)

	ev := readUntil(t, alice, session.EventSessionStarted)
	var started session.SessionStartedPayload
	if err := json.Unmarshal(ev.Data, &started); err != nil {
		t.Fatalf("unmarshal session_started: %v", err)
	}
	if started.YourSlot != 1 {
		t.Fatalf("alice slot = %d, want 1", started.YourSlot)
	}
	readUntil(t, bob, session.EventSessionStarted)

	// bob moving out of turn is rejected; alice's move reaches both
	sendCmd(t, bob, gamedto.ActionMove, gamedto.MoveRequest{SessionID: started.Session.ID, Column: 3})
	readUntil(t, bob, EventOperationRejected)

	sendCmd(t, alice, gamedto.ActionMove, gamedto.MoveRequest{SessionID: started.Session.ID, Column: 3})
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readUntil(t, conn, session.EventMoveApplied)
		var move session.MoveAppliedPayload
		if err := json.Unmarshal(ev.Data, &move); err != nil {
			t.Fatalf("unmarshal move_applied: %v", err)
		}
		if move.Username != "alice" || move.Column != 3 {
			t.Fatalf("move payload = %+v", move)
		}
	}
}

func TestChallengeFlowOverWire(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)
	register(t, alice, "alice")
	register(t, bob, "bob")

	sendCmd(t, alice, gamedto.ActionChallenge, gamedto.ChallengeRequest{To: "bob"})
	ev := readUntil(t, bob, session.EventChallengeReceived)
	var received session.ChallengeReceivedPayload
	if err := json.Unmarshal(ev.Data, &received); err != nil {
		t.Fatalf("unmarshal challenge_received: %v", err)
	}
	if received.Challenge.From != "alice" {
		t.Fatalf("challenge from = %q, want alice", received.Challenge.From)
	}

	sendCmd(t, bob, gamedto.ActionChallengeAccept, gamedto.ChallengeActionRequest{ChallengeID: received.Challenge.ID})
	readUntil(t, alice, session.EventSessionStarted)
	readUntil(t, bob, session.EventSessionStarted)
}

// A registry event arriving while its target connection tears down must
// never crash the process.
func TestEmitSurvivesClosingConnection(t *testing.T) {
	srv, g := newTestStack(t)

	for i := 0; i < 50; i++ {
		conn := dial(t, srv)
		register(t, conn, "hammer")

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					g.Emit([]string{"hammer"}, session.Event{Type: session.EventQueueUpdate})
				}
			}
		}()

		conn.Close(websocket.StatusNormalClosure, "churn")
		time.Sleep(2 * time.Millisecond)
		close(stop)
		wg.Wait()
	}
}

func TestRejoinQueueMidGameReturnsSessionState(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)
	register(t, alice, "alice")
	register(t, bob, "bob")

	sendCmd(t, alice, gamedto.ActionJoinQueue, nil)
	readUntil(t, alice, session.EventQueueUpdate)
	sendCmd(t, bob, gamedto.ActionJoinQueue, nil)

	ev := readUntil(t, alice, session.EventSessionStarted)
	var started session.SessionStartedPayload
	if err := json.Unmarshal(ev.Data, &started); err != nil {
		t.Fatalf("unmarshal session_started: %v", err)
	}

	// joining again mid-game resumes the live session for the caller
	sendCmd(t, alice, gamedto.ActionJoinQueue, nil)
	ev = readUntil(t, alice, EventSessionState)
	var state session.SessionStartedPayload
	if err := json.Unmarshal(ev.Data, &state); err != nil {
		t.Fatalf("unmarshal session_state: %v", err)
	}
	if state.Session == nil || state.Session.ID != started.Session.ID {
		t.Fatalf("resumed session = %+v, want id %s", state.Session, started.Session.ID)
	}
	if state.YourSlot != started.YourSlot {
		t.Fatalf("resumed slot = %d, want %d", state.YourSlot, started.YourSlot)
	}
}

func TestDuplicateLoginDetachesOldConnection(t *testing.T) {
	srv := newTestServer(t)
	first := dial(t, srv)
	register(t, first, "alice")

	second := dial(t, srv)
	register(t, second, "alice")

	// the first connection is closed by the server
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ev envelope
	if err := wsjson.Read(ctx, first, &ev); err == nil {
		t.Fatalf("expected first connection to be closed, read %+v", ev)
	}

	// the second connection stays functional
	sendCmd(t, second, gamedto.ActionJoinQueue, nil)
	readUntil(t, second, session.EventQueueUpdate)
}
