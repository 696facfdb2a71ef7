package reconcile

import (
	"testing"
	"time"

	"messenger-be/internal/events"
	"messenger-be/internal/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func msg(id, conv string) models.Message {
	return models.Message{ID: id, ConversationID: conv, Body: lo.ToPtr("body " + id)}
}

func TestMessageList_NewIsIdempotent(t *testing.T) {
	req := require.New(t)
	l := NewMessageList("c1", []models.Message{msg("m1", "c1")})

	l, effects := l.Apply(events.MessageCreated{Message: msg("m2", "c1")})
	req.Len(l.Messages, 2)
	req.Equal("m2", l.Messages[1].ID)
	req.Equal([]Effect{MarkSeen{ConversationID: "c1"}}, effects)

	again, effects := l.Apply(events.MessageCreated{Message: msg("m2", "c1")})
	req.Equal(l, again)
	req.Equal([]Effect{MarkSeen{ConversationID: "c1"}}, effects)
}

func TestMessageList_IgnoresOtherConversations(t *testing.T) {
	l := NewMessageList("c1", nil)
	next, effects := l.Apply(events.MessageCreated{Message: msg("m1", "c2")})
	require.Empty(t, next.Messages)
	require.Empty(t, effects)
}

func TestMessageList_UpdateReplacesInPlace(t *testing.T) {
	req := require.New(t)
	l := NewMessageList("c1", []models.Message{msg("m1", "c1"), msg("m2", "c1")})

	updated := msg("m1", "c1")
	updated.Seen = []models.User{{ID: "u1"}, {ID: "u2"}}
	next, effects := l.Apply(events.MessageChanged{Message: updated})
	req.Empty(effects)
	req.Equal([]string{"m1", "m2"}, lo.Map(next.Messages, func(m models.Message, _ int) string { return m.ID }))
	req.True(next.Messages[0].SeenBy("u2"))
	req.Empty(l.Messages[0].Seen, "previous state must not be mutated")

	unknown, _ := next.Apply(events.MessageChanged{Message: msg("zz", "c1")})
	req.Equal(next, unknown)
}

func TestConversationList_NewIsIdempotentPrepend(t *testing.T) {
	req := require.New(t)
	l := NewConversationList([]models.Conversation{{ID: "c1"}}, "")

	l, _ = l.Apply(events.ConversationCreated{Conversation: models.Conversation{ID: "c2"}})
	req.Equal("c2", l.Conversations[0].ID)

	again, effects := l.Apply(events.ConversationCreated{Conversation: models.Conversation{ID: "c2"}})
	req.Equal(l, again)
	req.Empty(effects)
}

func TestConversationList_UpdateMergesLatestMessage(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewConversationList([]models.Conversation{{ID: "c1", Users: []models.User{{ID: "u1"}, {ID: "u2"}}}}, "")

	m := msg("m1", "c1")
	m.CreatedAt = at
	patch := events.ConversationChanged{Patch: events.ConversationPatch{ConversationID: "c1", Messages: []models.Message{m}}}
	l, _ = l.Apply(patch)
	req.Len(l.Conversations[0].Messages, 1)
	req.Len(l.Conversations[0].Users, 2)
	req.Equal(at, l.Conversations[0].LastMessageAt)

	again, _ := l.Apply(patch)
	req.Equal(l, again)

	unknown, effects := l.Apply(events.ConversationChanged{Patch: events.ConversationPatch{ConversationID: "nope"}})
	req.Equal(l, unknown)
	req.Empty(effects)
}

func TestConversationList_Remove(t *testing.T) {
	req := require.New(t)
	convs := []models.Conversation{{ID: "c1"}, {ID: "c2"}}

	viewing := NewConversationList(convs, "c1")
	next, effects := viewing.Apply(events.ConversationRemoved{Conversation: models.Conversation{ID: "c1"}})
	req.Equal([]Effect{Navigate{ConversationID: "c1"}}, effects)
	req.Len(next.Conversations, 1)
	req.Empty(next.Open)

	elsewhere := NewConversationList(convs, "c2")
	next, effects = elsewhere.Apply(events.ConversationRemoved{Conversation: models.Conversation{ID: "c1"}})
	req.Empty(effects)
	req.Equal("c2", next.Open)
	req.Len(next.Conversations, 1)

	absent, effects := next.Apply(events.ConversationRemoved{Conversation: models.Conversation{ID: "c1"}})
	req.Equal(next, absent)
	req.Empty(effects)
}

func TestCrossChannelOrderConverges(t *testing.T) {
	m := msg("m1", "c1")
	created := events.MessageCreated{Message: m}
	seen := m
	seen.Seen = []models.User{{ID: "u1"}}
	changed := events.MessageChanged{Message: seen}

	a := NewMessageList("c1", nil)
	a, _ = a.Apply(created)
	a, _ = a.Apply(changed)
	a, _ = a.Apply(created)

	b := NewMessageList("c1", nil)
	b, _ = b.Apply(created)
	b, _ = b.Apply(created)
	b, _ = b.Apply(changed)

	require.Equal(t, a, b)
}

func TestActiveList(t *testing.T) {
	req := require.New(t)
	var l ActiveList

	l = l.Apply(events.MembersOnline{UserIDs: []string{"carol", "alice", "alice"}})
	req.Equal([]string{"alice", "carol"}, l.Members)

	l = l.Apply(events.MemberOnline{UserID: "bob"})
	l = l.Apply(events.MemberOnline{UserID: "bob"})
	req.Equal([]string{"alice", "bob", "carol"}, l.Members)

	l = l.Apply(events.MemberOffline{UserID: "alice"})
	l = l.Apply(events.MemberOffline{UserID: "nobody"})
	req.Equal([]string{"bob", "carol"}, l.Members)
	req.True(l.Has("bob"))
	req.False(l.Has("alice"))
}
