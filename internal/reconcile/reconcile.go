// Package reconcile folds realtime events into client-side lists. Every
// reducer is pure: it returns the next state and the effects the caller must
// run, and applying the same event twice yields the same state.
package reconcile

import (
	"slices"

	"messenger-be/internal/events"
	"messenger-be/internal/models"
)

// Effect is work a reducer asks its caller to perform.
type Effect interface {
	effect()
}

// MarkSeen asks the caller to tell the server the viewer saw the conversation.
type MarkSeen struct {
	ConversationID string
}

// Navigate asks the caller to leave the open conversation.
type Navigate struct {
	ConversationID string
}

func (MarkSeen) effect() {}
func (Navigate) effect() {}

// MessageList is the ordered message list of one open conversation.
type MessageList struct {
	ConversationID string
	Messages       []models.Message
}

func NewMessageList(conversationID string, snapshot []models.Message) MessageList {
	return MessageList{ConversationID: conversationID, Messages: slices.Clone(snapshot)}
}

// Apply folds e into the list. Events other than messages:new and
// message:update leave it untouched.
func (l MessageList) Apply(e events.Event) (MessageList, []Effect) {
	switch ev := e.(type) {
	case events.MessageCreated:
		if ev.Message.ConversationID != "" && ev.Message.ConversationID != l.ConversationID {
			return l, nil
		}
		seen := []Effect{MarkSeen{ConversationID: l.ConversationID}}
		if l.index(ev.Message.ID) >= 0 {
			return l, seen
		}
		next := make([]models.Message, 0, len(l.Messages)+1)
		next = append(next, l.Messages...)
		next = append(next, ev.Message)
		return MessageList{ConversationID: l.ConversationID, Messages: next}, seen
	case events.MessageChanged:
		i := l.index(ev.Message.ID)
		if i < 0 {
			return l, nil
		}
		next := slices.Clone(l.Messages)
		next[i] = ev.Message
		return MessageList{ConversationID: l.ConversationID, Messages: next}, nil
	default:
		return l, nil
	}
}

func (l MessageList) index(id string) int {
	return slices.IndexFunc(l.Messages, func(m models.Message) bool { return m.ID == id })
}

// ConversationList is the sidebar list of a user's conversations, newest
// first. Open is the id of the conversation currently displayed, if any.
type ConversationList struct {
	Conversations []models.Conversation
	Open          string
}

func NewConversationList(snapshot []models.Conversation, open string) ConversationList {
	return ConversationList{Conversations: slices.Clone(snapshot), Open: open}
}

func (l ConversationList) Apply(e events.Event) (ConversationList, []Effect) {
	switch ev := e.(type) {
	case events.ConversationChanged:
		i := l.index(ev.Patch.ConversationID)
		if i < 0 {
			return l, nil
		}
		next := slices.Clone(l.Conversations)
		next[i] = mergeLatest(next[i], ev.Patch.Messages)
		return ConversationList{Conversations: next, Open: l.Open}, nil
	case events.ConversationCreated:
		if l.index(ev.Conversation.ID) >= 0 {
			return l, nil
		}
		next := make([]models.Conversation, 0, len(l.Conversations)+1)
		next = append(next, ev.Conversation)
		next = append(next, l.Conversations...)
		return ConversationList{Conversations: next, Open: l.Open}, nil
	case events.ConversationRemoved:
		id := ev.Conversation.ID
		i := l.index(id)
		if i < 0 {
			return l, nil
		}
		next := slices.Delete(slices.Clone(l.Conversations), i, i+1)
		if l.Open != id {
			return ConversationList{Conversations: next, Open: l.Open}, nil
		}
		return ConversationList{Conversations: next}, []Effect{Navigate{ConversationID: id}}
	default:
		return l, nil
	}
}

func (l ConversationList) index(id string) int {
	return slices.IndexFunc(l.Conversations, func(c models.Conversation) bool { return c.ID == id })
}

// mergeLatest replaces or appends the patched messages. The rest of the
// conversation, including its members, is kept.
func mergeLatest(conv models.Conversation, latest []models.Message) models.Conversation {
	msgs := slices.Clone(conv.Messages)
	for _, m := range latest {
		i := slices.IndexFunc(msgs, func(x models.Message) bool { return x.ID == m.ID })
		if i >= 0 {
			msgs[i] = m
			continue
		}
		msgs = append(msgs, m)
		if m.CreatedAt.After(conv.LastMessageAt) {
			conv.LastMessageAt = m.CreatedAt
		}
	}
	conv.Messages = msgs
	return conv
}

// ActiveList is the set of users currently online, sorted by id.
type ActiveList struct {
	Members []string
}

func (l ActiveList) Apply(e events.Event) ActiveList {
	switch ev := e.(type) {
	case events.MembersOnline:
		members := slices.Clone(ev.UserIDs)
		slices.Sort(members)
		return ActiveList{Members: slices.Compact(members)}
	case events.MemberOnline:
		i, found := slices.BinarySearch(l.Members, ev.UserID)
		if found {
			return l
		}
		return ActiveList{Members: slices.Insert(slices.Clone(l.Members), i, ev.UserID)}
	case events.MemberOffline:
		i, found := slices.BinarySearch(l.Members, ev.UserID)
		if !found {
			return l
		}
		return ActiveList{Members: slices.Delete(slices.Clone(l.Members), i, i+1)}
	default:
		return l
	}
}

func (l ActiveList) Has(userID string) bool {
	_, found := slices.BinarySearch(l.Members, userID)
	return found
}
