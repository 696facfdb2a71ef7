// Package events defines the realtime event taxonomy shared by the publisher
// and the client reconciler.
package events

import (
	"encoding/json"
	"fmt"

	"messenger-be/internal/models"
)

type Name string

const (
	MessageNew         Name = "messages:new"
	MessageUpdate      Name = "message:update"
	ConversationNew    Name = "conversation:new"
	ConversationUpdate Name = "conversation:update"
	ConversationRemove Name = "conversation:remove"

	PresenceMemberAdded   Name = "presence:member_added"
	PresenceMemberRemoved Name = "presence:member_removed"
	PresenceSnapshot      Name = "presence:subscription_succeeded"
	SubscriptionAck       Name = "subscription:succeeded"
	SubscriptionError     Name = "subscription:error"
)

// Envelope is the frame written to subscribers.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   Name            `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// ConversationPatch is the conversation:update payload: only the newest
// message(s) of one conversation.
type ConversationPatch struct {
	ConversationID string           `json:"conversationId"`
	Messages       []models.Message `json:"messages"`
}

type PresenceMember struct {
	UserID string `json:"user_id"`
}

type PresenceMembers struct {
	UserIDs []string `json:"user_ids"`
}

type SubscriptionResult struct {
	Channel string `json:"channel"`
}

type SubscriptionFailure struct {
	Channel string `json:"channel"`
	Reason  string `json:"reason"`
}

// Event is one decoded realtime event. The concrete types below are the
// only implementations.
type Event interface {
	Name() Name
}

type MessageCreated struct{ Message models.Message }
type MessageChanged struct{ Message models.Message }
type ConversationCreated struct{ Conversation models.Conversation }
type ConversationChanged struct{ Patch ConversationPatch }
type ConversationRemoved struct{ Conversation models.Conversation }
type MemberOnline struct{ UserID string }
type MemberOffline struct{ UserID string }
type MembersOnline struct{ UserIDs []string }
type Subscribed struct{ Channel string }
type SubscribeFailed struct{ Failure SubscriptionFailure }

func (MessageCreated) Name() Name      { return MessageNew }
func (MessageChanged) Name() Name      { return MessageUpdate }
func (ConversationCreated) Name() Name { return ConversationNew }
func (ConversationChanged) Name() Name { return ConversationUpdate }
func (ConversationRemoved) Name() Name { return ConversationRemove }
func (MemberOnline) Name() Name        { return PresenceMemberAdded }
func (MemberOffline) Name() Name       { return PresenceMemberRemoved }
func (MembersOnline) Name() Name       { return PresenceSnapshot }
func (Subscribed) Name() Name          { return SubscriptionAck }
func (SubscribeFailed) Name() Name     { return SubscriptionError }

// Encode wraps a payload into an Envelope for channel.
func Encode(channel string, name Name, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return Envelope{Channel: channel, Event: name, Data: data}, nil
}

// Decode turns an Envelope back into its typed Event.
func Decode(env Envelope) (Event, error) {
	switch env.Event {
	case MessageNew:
		var m models.Message
		err := json.Unmarshal(env.Data, &m)
		return MessageCreated{Message: m}, wrap(env.Event, err)
	case MessageUpdate:
		var m models.Message
		err := json.Unmarshal(env.Data, &m)
		return MessageChanged{Message: m}, wrap(env.Event, err)
	case ConversationNew:
		var c models.Conversation
		err := json.Unmarshal(env.Data, &c)
		return ConversationCreated{Conversation: c}, wrap(env.Event, err)
	case ConversationUpdate:
		var p ConversationPatch
		err := json.Unmarshal(env.Data, &p)
		return ConversationChanged{Patch: p}, wrap(env.Event, err)
	case ConversationRemove:
		var c models.Conversation
		err := json.Unmarshal(env.Data, &c)
		return ConversationRemoved{Conversation: c}, wrap(env.Event, err)
	case PresenceMemberAdded:
		var p PresenceMember
		err := json.Unmarshal(env.Data, &p)
		return MemberOnline{UserID: p.UserID}, wrap(env.Event, err)
	case PresenceMemberRemoved:
		var p PresenceMember
		err := json.Unmarshal(env.Data, &p)
		return MemberOffline{UserID: p.UserID}, wrap(env.Event, err)
	case PresenceSnapshot:
		var p PresenceMembers
		err := json.Unmarshal(env.Data, &p)
		return MembersOnline{UserIDs: p.UserIDs}, wrap(env.Event, err)
	case SubscriptionAck:
		var r SubscriptionResult
		err := json.Unmarshal(env.Data, &r)
		return Subscribed{Channel: r.Channel}, wrap(env.Event, err)
	case SubscriptionError:
		var f SubscriptionFailure
		err := json.Unmarshal(env.Data, &f)
		return SubscribeFailed{Failure: f}, wrap(env.Event, err)
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

func wrap(name Name, err error) error {
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
