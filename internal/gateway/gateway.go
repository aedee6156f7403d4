// Package gateway terminates player WebSocket connections, routes inbound
// commands to the session registry and fans registry events back out to
// the connections bound to each username.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/trex-ayush/4-Dot-Game/internal/msgcat"
	"github.com/trex-ayush/4-Dot-Game/internal/obslog"
	"github.com/trex-ayush/4-Dot-Game/internal/session"
	"github.com/trex-ayush/4-Dot-Game/pkg/gamedto"
)

// Outbound event types owned by the gateway itself; game events come from
// the session package.
const (
	EventRegistered        = "registered"
	EventSessionState      = "session_state"
	EventChallengeList     = "challenge_list"
	EventOperationRejected = "operation_rejected"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9_]{2,20}$`)

const (
	writeTimeout  = 5 * time.Second
	outboundDepth = 64
)

var (
	errNotRegistered = errors.New("connection has no registered username")
	errBadUsername   = errors.New("username must be 2-20 lowercase letters, digits, or underscores")
)

// client is one accepted connection with its outbound pump. out is never
// closed; shutdown signals done so a racing Emit cannot hit a closed
// channel.
type client struct {
	id        string
	conn      *websocket.Conn
	out       chan session.Event
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	username string
}

func (c *client) user() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *client) setUser(name string) {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
}

func (c *client) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}

// push queues one event for the write pump. It reports false when the
// client is shut down or its buffer is full.
func (c *client) push(ev session.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// Gateway implements http.Handler for the /ws endpoint and
// session.EventSink for outbound delivery.
type Gateway struct {
	registry *session.Registry
	cat      *msgcat.Catalog

	mu     sync.RWMutex
	conns  map[string]*client // connection ID -> client
	byUser map[string]*client
}

func New(registry *session.Registry, cat *msgcat.Catalog) *Gateway {
	return &Gateway{
		registry: registry,
		cat:      cat,
		conns:    make(map[string]*client),
		byUser:   make(map[string]*client),
	}
}

// Emit delivers one event to every username's bound connection. Slow
// consumers lose events rather than stalling the registry.
func (g *Gateway) Emit(usernames []string, ev session.Event) {
	for _, name := range usernames {
		g.mu.RLock()
		c := g.byUser[name]
		g.mu.RUnlock()
		if c == nil {
			continue
		}
		if !c.push(ev) {
			obslog.L().Warn("ws_egress_drop",
				zap.String("username", name),
				zap.String("event", ev.Type))
		}
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_fail", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan session.Event, outboundDepth),
		done: make(chan struct{}),
	}
	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	obslog.L().Info("ws_connect", zap.String("conn_id", c.id))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go g.writePump(ctx, c)
	g.readLoop(ctx, c)
	g.teardown(c)
}

func (g *Gateway) writePump(ctx context.Context, c *client) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case ev := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	for {
		var cmd gamedto.Command
		if err := wsjson.Read(ctx, c.conn, &cmd); err != nil {
			return
		}
		g.dispatch(c, cmd)
	}
}

// teardown unbinds the connection and tells the registry, which starts the
// disconnect grace clock if the player was mid-game.
func (g *Gateway) teardown(c *client) {
	g.mu.Lock()
	delete(g.conns, c.id)
	name := c.user()
	if name != "" && g.byUser[name] == c {
		delete(g.byUser, name)
	}
	g.mu.Unlock()

	c.shutdown(websocket.StatusNormalClosure, "bye")
	g.registry.HandleDisconnect(c.id)
	obslog.L().Info("ws_disconnect", zap.String("conn_id", c.id), zap.String("username", name))
}

func (g *Gateway) send(c *client, ev session.Event) {
	c.push(ev)
}

func (g *Gateway) reject(c *client, action string, err error) {
	kind := session.Kind(err)
	msg := err.Error()
	if errors.Is(err, errNotRegistered) {
		kind = session.KindValidation
		msg = g.text("errors.not_registered", nil, msg)
	} else if errors.Is(err, errBadUsername) {
		kind = session.KindValidation
		msg = g.text("errors.invalid_username", nil, msg)
	} else if key := session.MessageKey(err); key != "" {
		msg = g.text(key, nil, msg)
	}
	g.send(c, session.Event{Type: EventOperationRejected, Data: gamedto.Rejection{
		Action:  action,
		Kind:    string(kind),
		Message: msg,
	}})
}

func (g *Gateway) text(key string, data any, fallback string) string {
	if g.cat == nil {
		return fallback
	}
	return g.cat.RenderOr(key, data, fallback)
}

func (g *Gateway) dispatch(c *client, cmd gamedto.Command) {
	var err error
	switch cmd.Action {
	case gamedto.ActionRegister:
		err = g.handleRegister(c, cmd.Data)
	case gamedto.ActionJoinQueue:
		err = g.withUser(c, func(user string) error {
			res, joinErr := g.registry.JoinQueue(user, c.id)
			if joinErr != nil {
				return joinErr
			}
			if res.Status == session.JoinReconnected {
				g.send(c, session.Event{Type: EventSessionState, Data: session.SessionStartedPayload{
					Session: res.Session, YourSlot: res.YourSlot,
				}})
			}
			return nil
		})
	case gamedto.ActionLeaveQueue:
		err = g.withUser(c, func(user string) error {
			g.registry.LeaveQueue(user)
			return nil
		})
	case gamedto.ActionMove:
		err = g.withUser(c, func(user string) error {
			var req gamedto.MoveRequest
			if jsonErr := json.Unmarshal(cmd.Data, &req); jsonErr != nil {
				return session.ErrInvalidArgs
			}
			return g.registry.ApplyMove(req.SessionID, req.Column, user)
		})
	case gamedto.ActionChallenge:
		err = g.withUser(c, func(user string) error {
			var req gamedto.ChallengeRequest
			if jsonErr := json.Unmarshal(cmd.Data, &req); jsonErr != nil {
				return session.ErrInvalidArgs
			}
			_, chErr := g.registry.SendChallenge(user, req.To, c.id)
			return chErr
		})
	case gamedto.ActionChallengeAccept:
		err = g.withUser(c, func(user string) error {
			req, reqErr := challengeID(cmd.Data)
			if reqErr != nil {
				return reqErr
			}
			_, accErr := g.registry.AcceptChallenge(req, user, c.id)
			return accErr
		})
	case gamedto.ActionChallengeReject:
		err = g.withUser(c, func(user string) error {
			req, reqErr := challengeID(cmd.Data)
			if reqErr != nil {
				return reqErr
			}
			return g.registry.RejectChallenge(req, user)
		})
	case gamedto.ActionChallengeCancel:
		err = g.withUser(c, func(user string) error {
			req, reqErr := challengeID(cmd.Data)
			if reqErr != nil {
				return reqErr
			}
			return g.registry.CancelChallenge(req, user)
		})
	case gamedto.ActionChallengeList:
		err = g.withUser(c, func(user string) error {
			received, sent := g.registry.PendingChallenges(user)
			g.send(c, session.Event{Type: EventChallengeList, Data: map[string]any{
				"received": received,
				"sent":     sent,
			}})
			return nil
		})
	case gamedto.ActionSessionState:
		err = g.withUser(c, func(user string) error {
			view, slot, ok := g.registry.SessionByUsername(user)
			if !ok {
				return session.ErrSessionNotFound
			}
			g.send(c, session.Event{Type: EventSessionState, Data: session.SessionStartedPayload{
				Session: view, YourSlot: slot,
			}})
			return nil
		})
	default:
		err = session.ErrInvalidArgs
	}
	if err != nil {
		g.reject(c, cmd.Action, err)
	}
}

func challengeID(raw json.RawMessage) (string, error) {
	var req gamedto.ChallengeActionRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.ChallengeID == "" {
		return "", session.ErrInvalidArgs
	}
	return req.ChallengeID, nil
}

func (g *Gateway) withUser(c *client, fn func(user string) error) error {
	user := c.user()
	if user == "" {
		return errNotRegistered
	}
	return fn(user)
}

// handleRegister binds a username to the connection. A second login for
// the same username detaches the previous connection.
func (g *Gateway) handleRegister(c *client, raw json.RawMessage) error {
	var req gamedto.RegisterRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return session.ErrInvalidArgs
	}
	username := session.Normalize(req.Username)
	if !usernameRe.MatchString(username) {
		return errBadUsername
	}

	g.mu.Lock()
	if prev, ok := g.byUser[username]; ok && prev != c {
		delete(g.conns, prev.id)
		prev.shutdown(websocket.StatusPolicyViolation, "logged in elsewhere")
	}
	if old := c.user(); old != "" && old != username && g.byUser[old] == c {
		delete(g.byUser, old)
	}
	c.setUser(username)
	g.byUser[username] = c
	g.mu.Unlock()

	view, slot := g.registry.RegisterConnection(username, c.id)
	received, sent := g.registry.PendingChallenges(username)
	g.send(c, session.Event{Type: EventRegistered, Data: map[string]any{
		"username": username,
		"received": received,
		"sent":     sent,
		"resumed":  view != nil,
	}})
	if view != nil {
		g.send(c, session.Event{Type: EventSessionState, Data: session.SessionStartedPayload{
			Session: view, YourSlot: slot,
		}})
	}
	obslog.L().Info("ws_register", zap.String("conn_id", c.id), zap.String("username", username))
	return nil
}

// Serve runs the WebSocket listener until ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", g)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	obslog.L().Info("ws_listen", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
