package client

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"messenger-be/internal/channels"
	"messenger-be/internal/events"
	"messenger-be/internal/models"
	"messenger-be/internal/reconcile"
)

// ViewOptions carries the optional hooks of a view. Hooks run on the socket
// dispatch goroutine and must not block.
type ViewOptions struct {
	Log        *slog.Logger
	OnEvent    func(events.Event)
	OnNavigate func(conversationID string)
}

func (o ViewOptions) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// ConversationView is one open conversation: its message list kept in sync
// with the conversation channel, marking the latest message seen as it goes.
type ConversationView struct {
	api  *API
	opts ViewOptions
	sub  *Subscription

	mu     sync.Mutex
	list   reconcile.MessageList
	closed bool

	inflight sync.WaitGroup
}

// OpenConversation subscribes to the conversation channel, loads the
// message snapshot and marks the conversation seen. A socket holds one open
// conversation at a time; close the previous view before opening another.
func OpenConversation(ctx context.Context, api *API, sock *Socket, conversationID string, opts ViewOptions) (*ConversationView, error) {
	v := &ConversationView{api: api, opts: opts, list: reconcile.NewMessageList(conversationID, nil)}

	sub, err := sock.Subscribe(ctx, channels.ForConversation(conversationID), v.handle)
	if err != nil {
		return nil, err
	}
	v.sub = sub

	snapshot, err := api.ListMessages(ctx, conversationID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	v.mu.Lock()
	early := v.list.Messages
	v.list = reconcile.NewMessageList(conversationID, snapshot)
	for _, m := range early {
		v.list, _ = v.list.Apply(events.MessageCreated{Message: m})
	}
	v.mu.Unlock()

	v.markSeen()
	return v, nil
}

func (v *ConversationView) ConversationID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.list.ConversationID
}

func (v *ConversationView) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.list.Messages)
}

// Close leaves the conversation channel and waits for pending seen reports.
func (v *ConversationView) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	err := v.sub.Close()
	v.inflight.Wait()
	return err
}

func (v *ConversationView) handle(e events.Event) {
	v.mu.Lock()
	next, effects := v.list.Apply(e)
	v.list = next
	v.mu.Unlock()

	if v.opts.OnEvent != nil {
		v.opts.OnEvent(e)
	}
	for _, eff := range effects {
		if _, ok := eff.(reconcile.MarkSeen); ok {
			v.markSeen()
		}
	}
}

// markSeen reports the conversation seen without blocking dispatch. Failures
// are only logged.
func (v *ConversationView) markSeen() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	id := v.list.ConversationID
	v.inflight.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := v.api.MarkSeen(ctx, id); err != nil {
			v.opts.logger().Warn("Marking conversation seen failed", "conversation", id, "error", err)
		}
	}()
}

// ConversationListView is the signed-in user's conversation list, kept in
// sync with their user channel.
type ConversationListView struct {
	opts ViewOptions
	sub  *Subscription

	mu   sync.Mutex
	list reconcile.ConversationList
}

func OpenConversationList(ctx context.Context, api *API, sock *Socket, me models.User, opts ViewOptions) (*ConversationListView, error) {
	v := &ConversationListView{opts: opts}

	sub, err := sock.Subscribe(ctx, channels.ForUser(me.Email), v.handle)
	if err != nil {
		return nil, err
	}
	v.sub = sub

	snapshot, err := api.ListConversations(ctx)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	v.mu.Lock()
	early := v.list.Conversations
	v.list = reconcile.NewConversationList(snapshot, v.list.Open)
	for i := len(early) - 1; i >= 0; i-- {
		v.list, _ = v.list.Apply(events.ConversationCreated{Conversation: early[i]})
	}
	v.mu.Unlock()

	return v, nil
}

// SetOpen records which conversation is on screen.
func (v *ConversationListView) SetOpen(conversationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.list.Open = conversationID
}

func (v *ConversationListView) Open() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.list.Open
}

func (v *ConversationListView) Conversations() []models.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.list.Conversations)
}

func (v *ConversationListView) Close() error {
	return v.sub.Close()
}

func (v *ConversationListView) handle(e events.Event) {
	v.mu.Lock()
	next, effects := v.list.Apply(e)
	v.list = next
	v.mu.Unlock()

	if v.opts.OnEvent != nil {
		v.opts.OnEvent(e)
	}
	for _, eff := range effects {
		if nav, ok := eff.(reconcile.Navigate); ok && v.opts.OnNavigate != nil {
			v.opts.OnNavigate(nav.ConversationID)
		}
	}
}

// ActiveListView tracks who is online through the presence channel.
type ActiveListView struct {
	sub *Subscription

	mu   sync.Mutex
	list reconcile.ActiveList
}

func OpenActiveList(ctx context.Context, sock *Socket) (*ActiveListView, error) {
	v := &ActiveListView{}
	sub, err := sock.Subscribe(ctx, channels.Presence, v.handle)
	if err != nil {
		return nil, err
	}
	v.sub = sub
	return v, nil
}

func (v *ActiveListView) Members() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.list.Members)
}

func (v *ActiveListView) Close() error {
	return v.sub.Close()
}

func (v *ActiveListView) handle(e events.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.list = v.list.Apply(e)
}
