package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"messenger-be/internal/apperr"
	"messenger-be/internal/channels"
	"messenger-be/internal/events"
	"messenger-be/internal/ws"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	ErrSocketClosed     = errors.New("socket closed")
	ErrConversationHeld = errors.New("already following a conversation")
)

// Handler receives the events of one channel, one at a time and in the
// order the server emitted them.
type Handler func(events.Event)

// Socket is one websocket connection multiplexing channel subscriptions.
// A single goroutine reads and dispatches every event.
type Socket struct {
	log  *slog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]map[uint64]Handler
	pending  map[string][]chan error
	nextID   uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial opens a socket at wsURL authenticated by token.
func Dial(ctx context.Context, wsURL, token string, log *slog.Logger) (*Socket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(1 << 20)

	sctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		log:      log,
		conn:     conn,
		handlers: map[string]map[uint64]Handler{},
		pending:  map[string][]chan error{},
		ctx:      sctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Subscription is a registered handler. Close must be called when the
// owner goes away.
type Subscription struct {
	socket  *Socket
	channel string
	id      uint64
	once    sync.Once
}

func (sub *Subscription) Channel() string { return sub.channel }

// Subscribe registers h on channel and waits for the server to accept the
// subscription. Every call sends its own subscribe frame, so a later handler
// on an already joined channel is acknowledged too and, on the presence
// channel, receives a fresh member snapshot.
//
// A socket follows at most one conversation channel at a time: subscribing
// to a second one fails with ErrConversationHeld until the first is closed.
func (s *Socket) Subscribe(ctx context.Context, channel string, h Handler) (*Subscription, error) {
	s.mu.Lock()
	if channels.Classify(channel) == channels.KindConversation {
		if held := s.heldConversation(); held != "" && held != channel {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrConversationHeld, held)
		}
	}
	s.nextID++
	sub := &Subscription{socket: s, channel: channel, id: s.nextID}
	set, ok := s.handlers[channel]
	if !ok {
		set = map[uint64]Handler{}
		s.handlers[channel] = set
	}
	set[sub.id] = h
	ack := make(chan error, 1)
	s.pending[channel] = append(s.pending[channel], ack)
	s.mu.Unlock()

	if err := s.write(ctx, ws.Frame{Type: ws.FrameSubscribe, Channel: channel}); err != nil {
		s.drop(sub)
		return nil, err
	}

	select {
	case err := <-ack:
		if err != nil {
			s.drop(sub)
			return nil, err
		}
		return sub, nil
	case <-ctx.Done():
		_ = sub.Close()
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSocketClosed
	}
}

// heldConversation returns the conversation channel with live handlers, if
// any. Callers hold s.mu.
func (s *Socket) heldConversation() string {
	for ch := range s.handlers {
		if channels.Classify(ch) == channels.KindConversation {
			return ch
		}
	}
	return ""
}

// Close removes the handler, and leaves the channel when it was the last
// one. Calling it more than once is harmless.
func (sub *Subscription) Close() error {
	var err error
	sub.once.Do(func() {
		if !sub.socket.drop(sub) {
			return
		}
		select {
		case <-sub.socket.done:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = sub.socket.write(ctx, ws.Frame{Type: ws.FrameUnsubscribe, Channel: sub.channel})
	})
	return err
}

// drop unregisters sub and reports whether its channel has no handler left.
func (s *Socket) drop(sub *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.handlers[sub.channel]
	if !ok {
		return false
	}
	delete(set, sub.id)
	if len(set) > 0 {
		return false
	}
	delete(s.handlers, sub.channel)
	return true
}

func (s *Socket) Close() error {
	err := s.conn.Close(websocket.StatusNormalClosure, "bye")
	s.cancel()
	<-s.done
	return err
}

// Done is closed once the read loop has stopped.
func (s *Socket) Done() <-chan struct{} { return s.done }

func (s *Socket) write(ctx context.Context, f ws.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, s.conn, f); err != nil {
		return fmt.Errorf("%s %s: %w", f.Type, f.Channel, err)
	}
	return nil
}

func (s *Socket) readLoop() {
	defer close(s.done)
	defer s.failPending()

	for {
		var env events.Envelope
		if err := wsjson.Read(s.ctx, s.conn, &env); err != nil {
			s.log.Debug("Socket read stopped", "error", err)
			return
		}
		evt, err := events.Decode(env)
		if err != nil {
			s.log.Warn("Ignoring undecodable event", "event", env.Event, "error", err)
			continue
		}

		switch e := evt.(type) {
		case events.Subscribed:
			s.resolve(e.Channel, nil)
			continue
		case events.SubscribeFailed:
			s.resolve(e.Failure.Channel, fmt.Errorf("%w: subscribe %s: %s", apperr.ErrAuthorization, e.Failure.Channel, e.Failure.Reason))
			continue
		case events.MembersOnline:
			s.resolve(channels.Presence, nil)
		}
		s.dispatch(env.Channel, evt)
	}
}

func (s *Socket) dispatch(channel string, evt events.Event) {
	s.mu.Lock()
	hs := make([]Handler, 0, len(s.handlers[channel]))
	for _, h := range s.handlers[channel] {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(evt)
	}
}

func (s *Socket) resolve(channel string, err error) {
	s.mu.Lock()
	waiters := s.pending[channel]
	delete(s.pending, channel)
	s.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}
}

func (s *Socket) failPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = map[string][]chan error{}
	s.mu.Unlock()

	for _, waiters := range pending {
		for _, w := range waiters {
			w <- ErrSocketClosed
		}
	}
}
