// Package channels names the pub/sub channels events are published on.
//
// A user channel is the user's email, a conversation channel is the
// conversation id. Conversation ids are UUIDs and never contain '@', so the
// two namespaces cannot collide.
package channels

import "strings"

// Presence is the channel carrying online/offline notifications.
const Presence = "presence-messenger"

type Kind int

const (
	KindInvalid Kind = iota
	KindUser
	KindConversation
	KindPresence
)

func ForUser(email string) string {
	return email
}

func ForConversation(id string) string {
	return id
}

// Classify reports which namespace a channel name belongs to.
func Classify(channel string) Kind {
	switch {
	case channel == "":
		return KindInvalid
	case channel == Presence:
		return KindPresence
	case strings.Contains(channel, "@"):
		return KindUser
	default:
		return KindConversation
	}
}
