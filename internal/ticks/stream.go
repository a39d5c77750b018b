// Package ticks implements the live market-data feed: a binary
// WebSocket client that maintains a durable subscription to the
// broker's tick feed and fans decoded ticks out to subscribers.
package ticks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hedgexd/pkg/types"
)

const (
	keepAliveTimeout  = 60 * time.Second
	writeTimeout      = 10 * time.Second
	reconnectBase     = time.Second
	reconnectMax      = 60 * time.Second
	reconnectAttempts = 10
	defaultBroadcast  = 1000
)

// Stream manages one WebSocket connection to the broker's tick feed: a
// fixed instrument-token subscription set, a bounded fan-out broadcast,
// and an in-memory latest-tick cache.
type Stream struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	stateMu sync.Mutex
	state   State

	subMu      sync.RWMutex
	subscribed map[uint32]bool
	symbols    map[uint32]string

	subscribersMu sync.Mutex
	subscribers   []chan types.Tick

	latestMu sync.RWMutex
	latest   map[uint32]types.Tick

	broadcastCap int
	logger       *slog.Logger
}

// NewStream builds a Stream for the given WebSocket URL (including the
// api_key/access_token query parameters the broker requires).
func NewStream(url string, broadcastCap int, logger *slog.Logger) *Stream {
	if broadcastCap <= 0 {
		broadcastCap = defaultBroadcast
	}
	return &Stream{
		url:          url,
		state:        Disconnected,
		subscribed:   make(map[uint32]bool),
		symbols:      make(map[uint32]string),
		latest:       make(map[uint32]types.Tick),
		broadcastCap: broadcastCap,
		logger:       logger.With("component", "ticks"),
	}
}

// State returns the current connection state.
func (s *Stream) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Stream) setState(next State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()
	if prev != next {
		s.logger.Info("state transition", "from", prev, "to", next)
	}
}

// AddTokens registers instrument tokens (with their resolved trading
// symbols) for subscription. If already connected, the broker is notified
// immediately; otherwise the tokens join the set re-sent on next connect.
func (s *Stream) AddTokens(tokens map[uint32]string) {
	s.subMu.Lock()
	for token, symbol := range tokens {
		s.subscribed[token] = true
		s.symbols[token] = symbol
	}
	s.subMu.Unlock()

	if s.State() == Connected {
		if err := s.sendSubscription(); err != nil {
			s.logger.Warn("failed to send incremental subscription", "error", err)
		}
	}
}

// Subscribe registers a new consumer channel of the given capacity (the
// stream's default broadcast capacity is used when capacity <= 0).
// Slow consumers lose ticks rather than blocking the decoder.
func (s *Stream) Subscribe(capacity int) <-chan types.Tick {
	if capacity <= 0 {
		capacity = s.broadcastCap
	}
	ch := make(chan types.Tick, capacity)
	s.subscribersMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subscribersMu.Unlock()
	return ch
}

// Latest returns the most recently decoded tick for a token, if any.
func (s *Stream) Latest(token uint32) (types.Tick, bool) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	t, ok := s.latest[token]
	return t, ok
}

// LatestAll returns a snapshot copy of every cached latest tick, suitable
// for durable persistence.
func (s *Stream) LatestAll() map[uint32]types.Tick {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	out := make(map[uint32]types.Tick, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// SeedLatest primes the latest-tick cache from a durable snapshot loaded at
// startup, so marks are available before the first live tick arrives.
// Entries already present (from a tick that raced the load) are not
// overwritten.
func (s *Stream) SeedLatest(ticks map[uint32]types.Tick) {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	for token, tick := range ticks {
		if _, ok := s.latest[token]; ok {
			continue
		}
		s.latest[token] = tick
	}
}

// Run connects and maintains the connection, reconnecting on failure per
// the exponential backoff schedule, until ctx is cancelled or the
// reconnection budget within a failure episode is exhausted (Failed).
// Blocks until ctx is done or the stream enters Failed.
func (s *Stream) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(Disconnected)
			return ctx.Err()
		}

		s.setState(Connecting)
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			s.setState(Disconnected)
			return ctx.Err()
		}

		if s.State() == Connected {
			// The connection came up this round, so a new failure episode starts.
			attempt = 0
		}
		attempt++
		if attempt > reconnectAttempts {
			s.setState(Failed)
			return fmt.Errorf("ticks: reconnect budget exhausted: %w", err)
		}

		s.setState(Reconnecting)
		s.logger.Warn("tick stream disconnected, reconnecting", "error", err, "attempt", attempt)

		delay := reconnectBase << uint(attempt-1)
		if delay > reconnectMax || delay <= 0 {
			delay = reconnectMax
		}
		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Supervise polls connection state every interval and triggers a fresh
// Run episode if the stream has gone quiet (Disconnected or Failed)
// without an explicit stop from ctx. run is the function to invoke to
// restart the stream (normally s.Run).
func (s *Stream) Supervise(ctx context.Context, interval time.Duration, run func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch s.State() {
			case Disconnected, Failed:
				s.logger.Info("supervisor restarting tick stream", "state", s.State())
				go func() {
					if err := run(ctx); err != nil && ctx.Err() == nil {
						s.logger.Error("tick stream run exited", "error", err)
					}
				}()
			}
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	conn.SetPingHandler(func(payload string) error {
		s.connMu.Lock()
		defer s.connMu.Unlock()
		if s.conn == nil {
			return nil
		}
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return s.conn.WriteMessage(websocket.PongMessage, []byte(payload))
	})

	if err := s.sendSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.setState(Connected)
	s.logger.Info("tick stream connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(keepAliveTimeout))
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleBinary(msg)
		case websocket.TextMessage:
			s.handleControl(msg)
		}
	}
}

// subscribeMessage mirrors the broker's subscribe control payload,
// {"a":"subscribe","v":[token,...]}.
type subscribeMessage struct {
	Action string   `json:"a"`
	Value  []uint32 `json:"v"`
}

func (s *Stream) sendSubscription() error {
	s.subMu.RLock()
	tokens := make([]uint32, 0, len(s.subscribed))
	for token := range s.subscribed {
		tokens = append(tokens, token)
	}
	s.subMu.RUnlock()

	if len(tokens) == 0 {
		return nil
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(subscribeMessage{Action: "subscribe", Value: tokens})
}

func (s *Stream) handleBinary(data []byte) {
	tick, err := decodePacket(data, time.Now().UTC())
	if err != nil {
		s.logger.Warn("dropping invalid tick packet", "error", err)
		return
	}

	s.subMu.RLock()
	tick.Symbol = s.symbols[tick.InstrumentToken]
	s.subMu.RUnlock()

	s.latestMu.Lock()
	s.latest[tick.InstrumentToken] = tick
	s.latestMu.Unlock()

	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- tick:
		default:
			s.logger.Warn("subscriber channel full, dropping tick", "token", tick.InstrumentToken)
		}
	}
}

type controlMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (s *Stream) handleControl(data []byte) {
	var ctrl controlMessage
	if err := json.Unmarshal(data, &ctrl); err != nil {
		s.logger.Debug("ignoring non-json control frame", "data", string(data))
		return
	}

	switch ctrl.Type {
	case "error":
		s.logger.Error("broker control error", "data", ctrl.Data)
	default:
		s.logger.Debug("unhandled control frame", "type", ctrl.Type)
	}
}

// Close gracefully tears down the current connection, if any.
func (s *Stream) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
