package service

import (
	"context"
	"html"
	"log/slog"

	"messenger-be/internal/models"
	"messenger-be/internal/notify"
	"messenger-be/internal/store"

	"github.com/microcosm-cc/bluemonday"
)

// Chat runs every conversation mutation: store first, then fan-out.
type Chat struct {
	log      *slog.Logger
	store    store.Gateway
	notifier *notify.Notifier
	policy   *bluemonday.Policy
}

func NewChat(log *slog.Logger, gw store.Gateway, notifier *notify.Notifier) *Chat {
	return &Chat{
		log:      log,
		store:    gw,
		notifier: notifier,
		policy:   bluemonday.StrictPolicy(),
	}
}

// plainText drops any markup but keeps the text as typed. Sanitize escapes
// entities for HTML output, and bodies are stored as plain text.
func (s *Chat) plainText(in string) string {
	return html.UnescapeString(s.policy.Sanitize(in))
}

// StartDirect returns the direct conversation between requester and other,
// announcing it to both users when it had to be created.
func (s *Chat) StartDirect(ctx context.Context, requesterID, otherID string) (models.Conversation, error) {
	conv, created, err := s.store.CreateDirectConversation(ctx, requesterID, otherID)
	if err != nil {
		return models.Conversation{}, err
	}
	if created {
		s.log.Debug("Direct conversation created", "conversation", conv.ID)
		s.notifier.ConversationCreated(ctx, conv)
	}
	return conv, nil
}

func (s *Chat) CreateGroup(ctx context.Context, creatorID string, memberIDs []string, name string) (models.Conversation, error) {
	conv, err := s.store.CreateGroupConversation(ctx, creatorID, memberIDs, s.plainText(name))
	if err != nil {
		return models.Conversation{}, err
	}
	s.log.Debug("Group conversation created", "conversation", conv.ID, "members", len(conv.Users))
	s.notifier.ConversationCreated(ctx, conv)
	return conv, nil
}

func (s *Chat) SendMessage(ctx context.Context, senderID, conversationID string, body, image *string) (models.Message, error) {
	if body != nil {
		clean := s.plainText(*body)
		body = &clean
	}
	msg, conv, err := s.store.AppendMessage(ctx, conversationID, senderID, body, image)
	if err != nil {
		return models.Message{}, err
	}
	s.notifier.MessageCreated(ctx, msg, conv)
	return msg, nil
}

// MarkSeen records that the viewer has seen the latest message. Events go
// out only when the seen set actually grew.
func (s *Chat) MarkSeen(ctx context.Context, viewerID, viewerEmail, conversationID string) (store.SeenResult, error) {
	res, err := s.store.MarkSeen(ctx, conversationID, viewerID)
	if err != nil {
		return store.SeenResult{}, err
	}
	if res.Changed {
		s.notifier.MessageSeen(ctx, viewerEmail, conversationID, *res.Message)
	}
	return res, nil
}

func (s *Chat) DeleteConversation(ctx context.Context, requesterID, conversationID string) (models.Conversation, error) {
	snapshot, err := s.store.DeleteConversation(ctx, conversationID, requesterID)
	if err != nil {
		return models.Conversation{}, err
	}
	s.log.Debug("Conversation deleted", "conversation", conversationID, "by", requesterID)
	s.notifier.ConversationRemoved(ctx, snapshot)
	return snapshot, nil
}
