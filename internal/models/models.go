package models

import "time"

type User struct {
	ID           string    `gorm:"primaryKey;type:char(36)" json:"id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	Email        string    `gorm:"size:190;uniqueIndex;not null" json:"email"`
	Image        *string   `gorm:"size:500" json:"image,omitempty"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Conversation struct {
	ID            string    `gorm:"primaryKey;type:char(36)" json:"id"`
	Name          *string   `gorm:"size:120" json:"name,omitempty"`
	IsGroup       bool      `gorm:"not null;default:false" json:"is_group"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`

	Users    []User    `gorm:"many2many:conversation_members;" json:"users"`
	Messages []Message `gorm:"constraint:OnDelete:CASCADE;" json:"messages"`
}

// ConversationMember is the join row behind Conversation.Users.
type ConversationMember struct {
	ConversationID string `gorm:"primaryKey;type:char(36)"`
	UserID         string `gorm:"primaryKey;type:char(36);index"`
}

func (ConversationMember) TableName() string { return "conversation_members" }

type Message struct {
	ID             string    `gorm:"primaryKey;type:char(36)" json:"id"`
	ConversationID string    `gorm:"type:char(36);index;not null" json:"conversation_id"`
	SenderID       string    `gorm:"type:char(36);index;not null" json:"sender_id"`
	Body           *string   `gorm:"type:text" json:"body,omitempty"`
	Image          *string   `gorm:"size:500" json:"image,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`

	Sender User   `gorm:"foreignKey:SenderID" json:"sender"`
	Seen   []User `gorm:"many2many:message_seen;" json:"seen"`
}

// MessageSeen is the join row behind Message.Seen.
type MessageSeen struct {
	MessageID string `gorm:"primaryKey;type:char(36)"`
	UserID    string `gorm:"primaryKey;type:char(36)"`
}

func (MessageSeen) TableName() string { return "message_seen" }

// SeenBy reports whether userID is in the message's seen set.
func (m Message) SeenBy(userID string) bool {
	for _, u := range m.Seen {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// HasMember reports whether userID belongs to the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, u := range c.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// LastMessage returns the newest message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// All lists every table for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Conversation{},
		&ConversationMember{},
		&Message{},
		&MessageSeen{},
	}
}
