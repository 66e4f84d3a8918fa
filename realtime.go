package stockx

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Realtime pushes chat events (new messages, typing indicators) over a
// websocket as a best-effort complement to HTTP polling. There are no
// delivery guarantees: a dropped connection is reconnected with backoff and
// anything missed in between is picked up by the next poll.

// EventMessageNew carries a message pushed for a joined conversation.
type EventMessageNew struct {
	Message Message `json:"message"`
}

// EventTyping carries a peer's typing indicator.
type EventTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// realtimeEnvelope is the wire format for pushed events.
type realtimeEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RealtimeState is the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// RealtimeConfig configures the realtime client.
type RealtimeConfig struct {
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *RealtimeConfig) defaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
}

// RealtimeHandlers receives pushed events. Nil handlers are skipped.
type RealtimeHandlers struct {
	OnMessage func(EventMessageNew)
	OnTyping  func(EventTyping)
	OnState   func(RealtimeState)
}

// RealtimeClient maintains one websocket subscription.
type RealtimeClient struct {
	c        *Client
	config   RealtimeConfig
	handlers RealtimeHandlers

	mu     sync.Mutex
	state  RealtimeState
	cancel context.CancelFunc
}

// Realtime creates a realtime client; call Connect to establish the stream.
func (c *Client) Realtime(config RealtimeConfig, handlers RealtimeHandlers) *RealtimeClient {
	config.defaults()
	return &RealtimeClient{
		c:        c,
		config:   config,
		handlers: handlers,
		state:    StateDisconnected,
	}
}

// State returns the current connection state.
func (r *RealtimeClient) State() RealtimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *RealtimeClient) setState(s RealtimeState) {
	r.mu.Lock()
	changed := r.state != s
	r.state = s
	r.mu.Unlock()
	if changed && r.handlers.OnState != nil {
		r.handlers.OnState(s)
	}
}

// wsURL derives the websocket endpoint from the resolved origin.
func (r *RealtimeClient) wsURL(ctx context.Context) string {
	origin := r.c.ResolveOrigin(ctx)
	base := strings.Replace(origin, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	u := base + "/cable"
	if token, err := r.c.creds.Get(KeyAuthToken); err == nil && token != "" {
		u += "?token=" + token
	}
	return u
}

// Connect starts the read loop in the background and returns immediately.
// The loop reconnects with exponential backoff and jitter until the attempt
// budget is exhausted or Close is called.
func (r *RealtimeClient) Connect(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		cancel()
		return
	}
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(loopCtx)
}

// Close tears down the subscription.
func (r *RealtimeClient) Close() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.setState(StateDisconnected)
}

func (r *RealtimeClient) loop(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if attempt == 0 {
			r.setState(StateConnecting)
		} else {
			r.setState(StateReconnecting)
		}

		err := r.run(ctx)
		if ctx.Err() != nil {
			return
		}
		r.c.logger.Warn("realtime connection dropped", "error", err, "attempt", attempt)

		attempt++
		if attempt >= r.config.MaxReconnectAttempts {
			r.setState(StateDisconnected)
			return
		}
		if sleepCtx(ctx, r.reconnectDelay(attempt)) != nil {
			return
		}
	}
}

// reconnectDelay is exponential backoff with jitter, capped at the max delay.
func (r *RealtimeClient) reconnectDelay(attempt int) time.Duration {
	d := float64(r.config.ReconnectBaseDelay) * math.Pow(2, float64(attempt-1))
	if limit := float64(r.config.ReconnectMaxDelay); d > limit {
		d = limit
	}
	jitter := 0.5 + rand.Float64()/2
	return time.Duration(d * jitter)
}

// run dials the websocket and pumps events until the connection fails.
func (r *RealtimeClient) run(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, r.wsURL(ctx), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	r.setState(StateConnected)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		r.dispatch(data)
	}
}

func (r *RealtimeClient) dispatch(data []byte) {
	var env realtimeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.c.logger.Debug("realtime: unparseable frame", "error", err)
		return
	}

	switch env.Type {
	case "message.new":
		if r.handlers.OnMessage == nil {
			return
		}
		var ev EventMessageNew
		if json.Unmarshal(env.Payload, &ev) == nil {
			r.handlers.OnMessage(ev)
		}
	case "typing":
		if r.handlers.OnTyping == nil {
			return
		}
		var ev EventTyping
		if json.Unmarshal(env.Payload, &ev) == nil {
			r.handlers.OnTyping(ev)
		}
	default:
		// Unknown event types are ignored so the server can add events
		// without breaking older clients.
	}
}
