package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"messenger-be/internal/apperr"
	"messenger-be/internal/events"
	"messenger-be/internal/models"
	"messenger-be/internal/notify"
	"messenger-be/internal/store"
	"messenger-be/internal/testutil"
	"messenger-be/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type published struct {
	Channel string
	Name    events.Name
	Payload any
}

type recorder struct {
	mu  sync.Mutex
	got []published
}

func (r *recorder) take() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.got
	r.got = nil
	return out
}

func newChat(t *testing.T) (*Chat, *store.Store, *recorder) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	rec := &recorder{}
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, channel string, name events.Name, payload any) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.got = append(rec.got, published{channel, name, payload})
			return nil
		}).AnyTimes()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	st := store.New(testutil.NewDB(t))
	return NewChat(log, st, notify.NewNotifier(log, pub)), st, rec
}

func TestScenario_FirstContactThenSeen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, st, rec := newChat(t)
	u := testutil.SeedUsers(t, st, "alice", "bob")
	alice, bob := u[0], u[1]

	conv, err := chat.StartDirect(ctx, alice.ID, bob.ID)
	req.NoError(err)
	got := rec.take()
	req.Len(got, 2)
	req.ElementsMatch([]string{alice.Email, bob.Email}, lo.Map(got, func(p published, _ int) string { return p.Channel }))
	for _, p := range got {
		req.Equal(events.ConversationNew, p.Name)
	}

	msg, err := chat.SendMessage(ctx, alice.ID, conv.ID, lo.ToPtr("hi"), nil)
	req.NoError(err)
	req.True(msg.SeenBy(alice.ID))
	req.False(msg.SeenBy(bob.ID))
	got = rec.take()
	req.Len(got, 3)
	req.Equal(published{conv.ID, events.MessageNew, msg}, got[0])
	for _, p := range got[1:] {
		req.Equal(events.ConversationUpdate, p.Name)
		patch := p.Payload.(events.ConversationPatch)
		req.Equal(conv.ID, patch.ConversationID)
		req.Len(patch.Messages, 1)
		req.Equal(msg.ID, patch.Messages[0].ID)
	}

	res, err := chat.MarkSeen(ctx, bob.ID, bob.Email, conv.ID)
	req.NoError(err)
	req.True(res.Changed)
	req.True(res.Message.SeenBy(alice.ID))
	req.True(res.Message.SeenBy(bob.ID))
	got = rec.take()
	req.Len(got, 2)
	req.Equal(conv.ID, got[0].Channel)
	req.Equal(events.MessageUpdate, got[0].Name)
	req.Equal(bob.Email, got[1].Channel)
	req.Equal(events.ConversationUpdate, got[1].Name)

	// Marking again changes nothing and publishes nothing.
	res, err = chat.MarkSeen(ctx, bob.ID, bob.Email, conv.ID)
	req.NoError(err)
	req.False(res.Changed)
	req.Empty(rec.take())
}

func TestStartDirect_ExistingConversationIsNotAnnouncedAgain(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, st, rec := newChat(t)
	u := testutil.SeedUsers(t, st, "alice", "bob")

	first, err := chat.StartDirect(ctx, u[0].ID, u[1].ID)
	req.NoError(err)
	rec.take()

	second, err := chat.StartDirect(ctx, u[1].ID, u[0].ID)
	req.NoError(err)
	req.Equal(first.ID, second.ID)
	req.Empty(rec.take())
}

func TestSendMessage_StripsMarkup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, st, _ := newChat(t)
	u := testutil.SeedUsers(t, st, "alice", "bob")
	conv, err := chat.StartDirect(ctx, u[0].ID, u[1].ID)
	req.NoError(err)

	msg, err := chat.SendMessage(ctx, u[0].ID, conv.ID, lo.ToPtr("<b>hello</b>"), nil)
	req.NoError(err)
	req.Equal("hello", *msg.Body)

	plain := `it's 5 > 3 & "ok"`
	msg, err = chat.SendMessage(ctx, u[0].ID, conv.ID, lo.ToPtr(plain), nil)
	req.NoError(err)
	req.Equal(plain, *msg.Body)
	stored, err := st.ListMessages(ctx, conv.ID)
	req.NoError(err)
	saved, ok := lo.Find(stored, func(m models.Message) bool { return m.ID == msg.ID })
	req.True(ok)
	req.Equal(plain, *saved.Body)

	_, err = chat.SendMessage(ctx, u[0].ID, conv.ID, lo.ToPtr("<i></i>"), nil)
	req.ErrorIs(err, apperr.ErrValidation)
}

func TestCreateGroupAndDelete_NotifiesEveryMember(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, st, rec := newChat(t)
	u := testutil.SeedUsers(t, st, "alice", "bob", "carol", "mallory")
	emails := lo.Map(u[:3], func(x models.User, _ int) string { return x.Email })

	_, err := chat.CreateGroup(ctx, u[0].ID, []string{u[1].ID}, "too small")
	req.ErrorIs(err, apperr.ErrValidation)
	req.Empty(rec.take())

	conv, err := chat.CreateGroup(ctx, u[0].ID, []string{u[1].ID, u[2].ID}, "<b>Tom & Jerry</b>")
	req.NoError(err)
	req.Equal("Tom & Jerry", lo.FromPtr(conv.Name))
	got := rec.take()
	req.ElementsMatch(emails, lo.Map(got, func(p published, _ int) string { return p.Channel }))

	_, err = chat.DeleteConversation(ctx, u[3].ID, conv.ID)
	req.ErrorIs(err, apperr.ErrAuthorization)
	req.Empty(rec.take())

	_, err = chat.DeleteConversation(ctx, u[1].ID, conv.ID)
	req.NoError(err)
	got = rec.take()
	req.Len(got, 3)
	req.ElementsMatch(emails, lo.Map(got, func(p published, _ int) string { return p.Channel }))
	for _, p := range got {
		req.Equal(events.ConversationRemove, p.Name)
		req.Equal(conv.ID, p.Payload.(models.Conversation).ID)
	}
}
