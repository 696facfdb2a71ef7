package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"messenger-be/internal/apperr"
	"messenger-be/internal/channels"
	"messenger-be/internal/events"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Identity is the authenticated owner of a socket.
type Identity struct {
	UserID string
	Email  string
}

// Authorizer decides whether an identity may listen on a channel.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, id Identity, channel string) error
}

// Frame is what a socket sends to manage its subscriptions.
type Frame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

type Client struct {
	Identity Identity
	Conn     *websocket.Conn
	Send     chan events.Envelope

	channels map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// Hub is the in-process pub/sub transport. Events published on a channel are
// queued to every subscribed socket in publish order; a socket whose queue
// is full loses the event.
type Hub struct {
	log        *slog.Logger
	bufferSize int

	mu       sync.Mutex
	channels map[string]map[*Client]struct{}
	online   map[string]int
}

func NewHub(log *slog.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		log:        log,
		bufferSize: bufferSize,
		channels:   map[string]map[*Client]struct{}{},
		online:     map[string]int{},
	}
}

func (h *Hub) AddClient(id Identity, conn *websocket.Conn) *Client {
	c := h.newClient(id, conn)
	h.attach(c)

	go c.writeLoop(h.log)
	go c.keepAliveLoop()

	return c
}

func (h *Hub) newClient(id Identity, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Identity: id,
		Conn:     conn,
		Send:     make(chan events.Envelope, h.bufferSize),
		channels: map[string]struct{}{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.online[c.Identity.UserID]++
	if h.online[c.Identity.UserID] == 1 {
		h.announce(events.PresenceMemberAdded, c.Identity.UserID)
	}
}

func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	for ch := range c.channels {
		h.unsubscribeLocked(c, ch)
	}
	h.online[c.Identity.UserID]--
	if h.online[c.Identity.UserID] <= 0 {
		delete(h.online, c.Identity.UserID)
		h.announce(events.PresenceMemberRemoved, c.Identity.UserID)
	}
	h.mu.Unlock()

	c.cancel()
	if c.Conn != nil {
		_ = c.Conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

// Serve reads subscription frames until the socket closes.
func (h *Hub) Serve(ctx context.Context, c *Client, auth Authorizer) error {
	for {
		var f Frame
		if err := wsjson.Read(ctx, c.Conn, &f); err != nil {
			return err
		}
		h.HandleFrame(ctx, c, auth, f)
	}
}

func (h *Hub) HandleFrame(ctx context.Context, c *Client, auth Authorizer, f Frame) {
	switch f.Type {
	case FrameSubscribe:
		if err := auth.AuthorizeChannel(ctx, c.Identity, f.Channel); err != nil {
			h.log.Debug("Subscription refused", "user", c.Identity.UserID, "channel", f.Channel, "error", err)
			h.sendDirect(c, events.SubscriptionError, events.SubscriptionFailure{Channel: f.Channel, Reason: err.Error()})
			return
		}
		h.Subscribe(c, f.Channel)
		if f.Channel != channels.Presence {
			h.sendDirect(c, events.SubscriptionAck, events.SubscriptionResult{Channel: f.Channel})
		}
	case FrameUnsubscribe:
		h.Unsubscribe(c, f.Channel)
	default:
		h.sendDirect(c, events.SubscriptionError, events.SubscriptionFailure{Channel: f.Channel, Reason: "unknown frame " + f.Type})
	}
}

func (h *Hub) Subscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = map[*Client]struct{}{}
	}
	h.channels[channel][c] = struct{}{}
	c.channels[channel] = struct{}{}

	if channel == channels.Presence {
		ids := make([]string, 0, len(h.online))
		for id := range h.online {
			ids = append(ids, id)
		}
		h.enqueue(c, channel, events.PresenceSnapshot, events.PresenceMembers{UserIDs: ids})
	}
}

func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, channel)
}

func (h *Hub) unsubscribeLocked(c *Client, channel string) {
	delete(c.channels, channel)
	if set, ok := h.channels[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Publish queues an event for every subscriber of channel. It fails with
// ErrPublish when the payload cannot be encoded or some subscriber dropped it.
func (h *Hub) Publish(_ context.Context, channel string, name events.Name, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publishLocked(channel, name, payload)
}

func (h *Hub) publishLocked(channel string, name events.Name, payload any) error {
	env, err := events.Encode(channel, name, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrPublish, err)
	}
	dropped := 0
	for c := range h.channels[channel] {
		select {
		case c.Send <- env:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %s on %s dropped for %d subscriber(s)", apperr.ErrPublish, name, channel, dropped)
	}
	return nil
}

func (h *Hub) announce(name events.Name, userID string) {
	if err := h.publishLocked(channels.Presence, name, events.PresenceMember{UserID: userID}); err != nil {
		h.log.Debug("Presence event lost", "event", name, "user", userID, "error", err)
	}
}

func (h *Hub) enqueue(c *Client, channel string, name events.Name, payload any) {
	env, err := events.Encode(channel, name, payload)
	if err != nil {
		h.log.Error("Encoding event failed", "event", name, "error", err)
		return
	}
	select {
	case c.Send <- env:
	default:
		h.log.Debug("Client queue full, event lost", "user", c.Identity.UserID, "event", name)
	}
}

func (h *Hub) sendDirect(c *Client, name events.Name, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueue(c, "", name, payload)
}

// Online returns the ids of users with at least one open socket.
func (h *Hub) Online() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.online))
	for id := range h.online {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) writeLoop(log *slog.Logger) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.Send:
			writeCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, c.Conn, env)
			cancel()
			if err != nil {
				log.Debug("Socket write failed", "user", c.Identity.UserID, "event", env.Event, "error", err)
			}
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
			_ = c.Conn.Ping(pingCtx)
			cancel()
		}
	}
}
