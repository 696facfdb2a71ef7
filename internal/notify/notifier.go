//go:generate go run go.uber.org/mock/mockgen -source=notifier.go -destination=../../mocks/mock_publisher.go -package=mocks
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"messenger-be/internal/apperr"
	"messenger-be/internal/channels"
	"messenger-be/internal/events"
	"messenger-be/internal/models"
)

// Publisher delivers one event on one channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, name events.Name, payload any) error
}

// Notifier fans committed mutations out as realtime events. Delivery is best
// effort: a failed publish is logged and never reported to the caller, the
// mutation stays committed.
type Notifier struct {
	log *slog.Logger
	pub Publisher
}

func NewNotifier(log *slog.Logger, pub Publisher) *Notifier {
	return &Notifier{log: log, pub: pub}
}

// MessageCreated emits messages:new on the conversation channel and
// conversation:update on every member's user channel.
func (n *Notifier) MessageCreated(ctx context.Context, msg models.Message, conv models.Conversation) {
	n.publish(ctx, channels.ForConversation(conv.ID), events.MessageNew, msg)

	latest, ok := conv.LastMessage()
	if !ok {
		latest = msg
	}
	patch := events.ConversationPatch{ConversationID: conv.ID, Messages: []models.Message{latest}}
	for _, u := range conv.Users {
		n.publish(ctx, channels.ForUser(u.Email), events.ConversationUpdate, patch)
	}
}

// MessageSeen emits message:update on the conversation channel and
// conversation:update on the viewer's own channel. Callers invoke it only
// when the seen set actually changed.
func (n *Notifier) MessageSeen(ctx context.Context, viewerEmail string, conversationID string, msg models.Message) {
	n.publish(ctx, channels.ForConversation(conversationID), events.MessageUpdate, msg)
	n.publish(ctx, channels.ForUser(viewerEmail), events.ConversationUpdate, events.ConversationPatch{
		ConversationID: conversationID,
		Messages:       []models.Message{msg},
	})
}

func (n *Notifier) ConversationCreated(ctx context.Context, conv models.Conversation) {
	for _, u := range conv.Users {
		n.publish(ctx, channels.ForUser(u.Email), events.ConversationNew, conv)
	}
}

// ConversationRemoved notifies every former member with the snapshot taken
// before deletion.
func (n *Notifier) ConversationRemoved(ctx context.Context, snapshot models.Conversation) {
	for _, u := range snapshot.Users {
		n.publish(ctx, channels.ForUser(u.Email), events.ConversationRemove, snapshot)
	}
}

func (n *Notifier) publish(ctx context.Context, channel string, name events.Name, payload any) {
	if err := n.pub.Publish(ctx, channel, name, payload); err != nil {
		if !errors.Is(err, apperr.ErrPublish) {
			err = fmt.Errorf("%w: %v", apperr.ErrPublish, err)
		}
		n.log.Error("Publishing event failed", "channel", channel, "event", name, "error", err)
	}
}
