package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"messenger-be/internal/apperr"
	"messenger-be/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gateway is the CRUD contract the HTTP layer and the chat service rely on.
// Every mutation runs in a single transaction and either commits fully or
// leaves the store untouched.
type Gateway interface {
	CreateDirectConversation(ctx context.Context, userA, userB string) (models.Conversation, bool, error)
	CreateGroupConversation(ctx context.Context, creator string, members []string, name string) (models.Conversation, error)
	FindConversation(ctx context.Context, id string) (models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, senderID string, body, image *string) (models.Message, models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkSeen(ctx context.Context, conversationID, viewerID string) (SeenResult, error)
	DeleteConversation(ctx context.Context, conversationID, requesterID string) (models.Conversation, error)

	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindUser(ctx context.Context, id string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsersExcept(ctx context.Context, id string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id string, name, image *string) (models.User, error)
}

// SeenResult is the outcome of MarkSeen. Message is nil when the
// conversation has no messages; Changed is true only when the viewer was
// newly added to the latest message's seen set.
type SeenResult struct {
	Conversation models.Conversation
	Message      *models.Message
	Changed      bool
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// CreateDirectConversation returns the existing non-group conversation whose
// members are exactly {userA, userB}, or creates it. The lookup is
// optimistic: two concurrent first contacts may both create one.
func (s *Store) CreateDirectConversation(ctx context.Context, userA, userB string) (models.Conversation, bool, error) {
	if userA == "" || userB == "" || userA == userB {
		return models.Conversation{}, false, fmt.Errorf("%w: a direct conversation needs two distinct users", apperr.ErrValidation)
	}

	var conv models.Conversation
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUsers(tx, userA, userB); err != nil {
			return err
		}

		var ids []string
		err := tx.Model(&models.ConversationMember{}).
			Joins("JOIN conversations ON conversations.id = conversation_members.conversation_id").
			Where("conversations.is_group = ?", false).
			Group("conversation_members.conversation_id").
			Having("COUNT(*) = 2 AND SUM(CASE WHEN conversation_members.user_id IN ? THEN 1 ELSE 0 END) = 2", []string{userA, userB}).
			Pluck("conversation_members.conversation_id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			sort.Strings(ids)
			conv, err = loadConversation(tx, ids[0])
			return err
		}

		conv, err = s.createConversation(tx, nil, false, []string{userA, userB})
		created = err == nil
		return err
	})
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, created, nil
}

func (s *Store) CreateGroupConversation(ctx context.Context, creator string, members []string, name string) (models.Conversation, error) {
	name = strings.TrimSpace(name)
	others := lo.Uniq(lo.Without(members, creator, ""))
	if name == "" || len(others) < 2 {
		return models.Conversation{}, fmt.Errorf("%w: a group needs a name and at least two other members", apperr.ErrValidation)
	}

	var conv models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := append(others, creator)
		if err := ensureUsers(tx, all...); err != nil {
			return err
		}
		var err error
		conv, err = s.createConversation(tx, &name, true, all)
		return err
	})
	return conv, err
}

func (s *Store) createConversation(tx *gorm.DB, name *string, isGroup bool, memberIDs []string) (models.Conversation, error) {
	now := s.now()
	conv := models.Conversation{
		ID:            uuid.NewString(),
		Name:          name,
		IsGroup:       isGroup,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := tx.Omit(clause.Associations).Create(&conv).Error; err != nil {
		return models.Conversation{}, err
	}
	rows := lo.Map(memberIDs, func(id string, _ int) models.ConversationMember {
		return models.ConversationMember{ConversationID: conv.ID, UserID: id}
	})
	if err := tx.Create(&rows).Error; err != nil {
		return models.Conversation{}, err
	}
	return loadConversation(tx, conv.ID)
}

func (s *Store) FindConversation(ctx context.Context, id string) (models.Conversation, error) {
	return loadConversation(s.db.WithContext(ctx), id)
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	db := s.db.WithContext(ctx)
	var ids []string
	if err := db.Model(&models.ConversationMember{}).Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error; err != nil {
		return nil, err
	}
	convs := []models.Conversation{}
	if len(ids) == 0 {
		return convs, nil
	}
	err := preloadConversation(db).
		Where("id IN ?", ids).
		Order("last_message_at desc").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	for i := range convs {
		sortMessages(convs[i].Messages)
	}
	return convs, nil
}

// AppendMessage stores a message whose seen set is {sender} and bumps the
// conversation's last_message_at. Timestamps never move backwards, even if
// the clock does.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID string, body, image *string) (models.Message, models.Conversation, error) {
	body, image = blankToNil(body), blankToNil(image)
	if body == nil && image == nil {
		return models.Message{}, models.Conversation{}, fmt.Errorf("%w: message needs a body or an image", apperr.ErrValidation)
	}

	var msg models.Message
	var conv models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Conversation
		if err := tx.First(&current, "id = ?", conversationID).Error; err != nil {
			return notFound(err, "conversation %s", conversationID)
		}
		if err := ensureMember(tx, conversationID, senderID); err != nil {
			return err
		}

		at := s.now()
		if current.LastMessageAt.After(at) {
			at = current.LastMessageAt
		}
		msg = models.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           body,
			Image:          image,
			CreatedAt:      at,
		}
		if err := tx.Omit(clause.Associations).Create(&msg).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.MessageSeen{MessageID: msg.ID, UserID: senderID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
			Update("last_message_at", at).Error; err != nil {
			return err
		}

		var err error
		if msg, err = loadMessage(tx, msg.ID); err != nil {
			return err
		}
		conv, err = loadConversation(tx, conversationID)
		return err
	})
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	return msg, conv, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.WithContext(ctx).
		Preload("Sender").Preload("Seen").
		Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkSeen adds viewer to the seen set of the latest message only.
func (s *Store) MarkSeen(ctx context.Context, conversationID, viewerID string) (SeenResult, error) {
	var res SeenResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := loadConversation(tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasMember(viewerID) {
			return fmt.Errorf("%w: user %s in conversation %s", apperr.ErrAuthorization, viewerID, conversationID)
		}
		res.Conversation = conv

		last, ok := conv.LastMessage()
		if !ok {
			return nil
		}
		if last.SeenBy(viewerID) {
			res.Message = &last
			return nil
		}

		err = tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.MessageSeen{MessageID: last.ID, UserID: viewerID}).Error
		if err != nil {
			return err
		}
		updated, err := loadMessage(tx, last.ID)
		if err != nil {
			return err
		}
		res.Conversation.Messages[len(res.Conversation.Messages)-1] = updated
		res.Message = &updated
		res.Changed = true
		return nil
	})
	if err != nil {
		return SeenResult{}, err
	}
	return res, nil
}

// DeleteConversation removes the conversation for every member and returns
// the snapshot taken before deletion.
func (s *Store) DeleteConversation(ctx context.Context, conversationID, requesterID string) (models.Conversation, error) {
	var snapshot models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		snapshot, err = loadConversation(tx, conversationID)
		if err != nil {
			return err
		}
		if !snapshot.HasMember(requesterID) {
			return fmt.Errorf("%w: user %s in conversation %s", apperr.ErrAuthorization, requesterID, conversationID)
		}

		messageIDs := lo.Map(snapshot.Messages, func(m models.Message, _ int) string { return m.ID })
		if len(messageIDs) > 0 {
			if err := tx.Where("message_id IN ?", messageIDs).Delete(&models.MessageSeen{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.ConversationMember{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", conversationID).Delete(&models.Conversation{}).Error
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return snapshot, nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", apperr.ErrEmailTaken, user.Email)
		}
		err := tx.Create(&user).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", apperr.ErrEmailTaken, user.Email)
		}
		return err
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return models.User{}, notFound(err, "user %s", id)
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return models.User{}, notFound(err, "user %s", email)
	}
	return u, nil
}

func (s *Store) ListUsersExcept(ctx context.Context, id string) ([]models.User, error) {
	users := []models.User{}
	err := s.db.WithContext(ctx).Where("id <> ?", id).Order("created_at desc").Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, name, image *string) (models.User, error) {
	updates := map[string]any{}
	if name != nil {
		updates["name"] = *name
	}
	if image != nil {
		updates["image"] = blankToNil(image)
	}
	var u models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			return notFound(err, "user %s", id)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&u).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&u, "id = ?", id).Error
	})
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func preloadConversation(db *gorm.DB) *gorm.DB {
	return db.Preload("Users").Preload("Messages.Seen").Preload("Messages.Sender")
}

func loadConversation(tx *gorm.DB, id string) (models.Conversation, error) {
	var conv models.Conversation
	if err := preloadConversation(tx).First(&conv, "id = ?", id).Error; err != nil {
		return models.Conversation{}, notFound(err, "conversation %s", id)
	}
	sortMessages(conv.Messages)
	return conv, nil
}

func loadMessage(tx *gorm.DB, id string) (models.Message, error) {
	var msg models.Message
	if err := tx.Preload("Sender").Preload("Seen").First(&msg, "id = ?", id).Error; err != nil {
		return models.Message{}, notFound(err, "message %s", id)
	}
	return msg, nil
}

func ensureUsers(tx *gorm.DB, ids ...string) error {
	ids = lo.Uniq(ids)
	var count int64
	if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return err
	}
	if int(count) != len(ids) {
		return fmt.Errorf("%w: unknown user among %v", apperr.ErrNotFound, ids)
	}
	return nil
}

func ensureMember(tx *gorm.DB, conversationID, userID string) error {
	var count int64
	err := tx.Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: user %s in conversation %s", apperr.ErrAuthorization, userID, conversationID)
	}
	return nil
}

// sortMessages orders by creation time; ids are UUIDv7 so they break ties
// in insertion order.
func sortMessages(messages []models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{apperr.ErrNotFound}, args...)...)
	}
	return err
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
