package events

import (
	"testing"

	"messenger-be/internal/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestDecode_ConversationPatch(t *testing.T) {
	req := require.New(t)
	patch := ConversationPatch{
		ConversationID: "c1",
		Messages: []models.Message{{
			ID:             "m1",
			ConversationID: "c1",
			Body:           lo.ToPtr("hi"),
			Seen:           []models.User{{ID: "u1"}},
		}},
	}
	env, err := Encode("alice@example.com", ConversationUpdate, patch)
	req.NoError(err)
	req.Equal("alice@example.com", env.Channel)

	evt, err := Decode(env)
	req.NoError(err)
	changed, ok := evt.(ConversationChanged)
	req.True(ok)
	req.Equal("c1", changed.Patch.ConversationID)
	req.Len(changed.Patch.Messages, 1)
	req.Equal("hi", *changed.Patch.Messages[0].Body)
	req.True(changed.Patch.Messages[0].SeenBy("u1"))
}

func TestEncode_OmitsAbsentOptionalFields(t *testing.T) {
	env, err := Encode("c1", MessageNew, models.Message{ID: "m1"})
	require.NoError(t, err)
	require.NotContains(t, string(env.Data), `"body"`)
	require.NotContains(t, string(env.Data), `"image"`)
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode(Envelope{Channel: "c1", Event: "pusher:ping", Data: []byte(`{}`)})
	require.Error(t, err)
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(Envelope{Channel: "c1", Event: MessageNew, Data: []byte(`[1,2]`)})
	require.Error(t, err)
}

func TestDecode_SubscriptionAck(t *testing.T) {
	env, err := Encode("", SubscriptionAck, SubscriptionResult{Channel: "c1"})
	require.NoError(t, err)

	evt, err := Decode(env)
	require.NoError(t, err)
	require.Equal(t, Subscribed{Channel: "c1"}, evt)
}

func TestConversationPatch_WireFields(t *testing.T) {
	req := require.New(t)
	env, err := Encode("alice@example.com", ConversationUpdate, ConversationPatch{ConversationID: "c1"})
	req.NoError(err)
	req.Contains(string(env.Data), `"conversationId":"c1"`)
	req.Contains(string(env.Data), `"messages":`)

	evt, err := Decode(Envelope{
		Channel: "alice@example.com",
		Event:   ConversationUpdate,
		Data:    []byte(`{"conversationId":"c9","messages":[{"id":"m1"}]}`),
	})
	req.NoError(err)
	changed := evt.(ConversationChanged)
	req.Equal("c9", changed.Patch.ConversationID)
	req.Len(changed.Patch.Messages, 1)
}
