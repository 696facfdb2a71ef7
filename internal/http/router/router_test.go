package router

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"messenger-be/internal/auth"
	"messenger-be/internal/models"
	"messenger-be/internal/notify"
	"messenger-be/internal/service"
	"messenger-be/internal/store"
	"messenger-be/internal/testutil"
	"messenger-be/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t      *testing.T
	engine *gin.Engine
	store  *store.Store
	tokens auth.Tokens
}

func newFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	st := store.New(testutil.NewDB(t))
	hub := ws.NewHub(log, 16)
	authSvc := auth.NewService(st, auth.NewTokens("test-secret", time.Hour))
	engine := New(Deps{
		Log:   log,
		Store: st,
		Auth:  authSvc,
		Chat:  service.NewChat(log, st, notify.NewNotifier(log, hub)),
		Hub:   hub,
	})
	return &fixture{t: t, engine: engine, store: st, tokens: authSvc.Tokens()}
}

func (f *fixture) token(u models.User) string {
	tok, err := f.tokens.Generate(u)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) call(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, r)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	w := f.call(http.MethodPost, "/api/register", "", gin.H{"name": "Alice", "email": "alice@example.com", "password": "secret123"})
	req.Equal(http.StatusCreated, w.Code)
	req.NotContains(w.Body.String(), "password")

	w = f.call(http.MethodPost, "/api/register", "", gin.H{"name": "Alice", "email": "alice@example.com", "password": "secret123"})
	req.Equal(http.StatusBadRequest, w.Code)

	w = f.call(http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com", "password": "wrong"})
	req.Equal(http.StatusUnauthorized, w.Code)

	w = f.call(http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com", "password": "secret123"})
	req.Equal(http.StatusOK, w.Code)
	var sess struct {
		AccessToken string      `json:"access_token"`
		User        models.User `json:"user"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &sess))
	req.NotEmpty(sess.AccessToken)

	w = f.call(http.MethodGet, "/api/users", sess.AccessToken, nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[]`, w.Body.String())
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newFixture(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodPost, "/api/settings"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodPost, "/api/conversations"},
		{http.MethodPost, "/api/messages"},
		{http.MethodPost, "/api/conversations/x/seen"},
		{http.MethodDelete, "/api/conversations/x"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			require.Equal(t, http.StatusUnauthorized, f.call(rt.method, rt.path, "", nil).Code)
			require.Equal(t, http.StatusUnauthorized, f.call(rt.method, rt.path, "garbage", nil).Code)
		})
	}
	require.Equal(t, http.StatusUnauthorized, f.call(http.MethodGet, "/ws", "", nil).Code)
}

func TestConversationStatusCodes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	u := testutil.SeedUsers(t, f.store, "alice", "bob", "mallory")
	alice, bob, mallory := f.token(u[0]), f.token(u[1]), f.token(u[2])

	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/conversations", alice, gin.H{}).Code)
	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/conversations", alice, gin.H{"userId": "nobody"}).Code)
	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/conversations", alice, gin.H{"user_id": u[1].ID}).Code)
	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/conversations", alice, gin.H{
		"isGroup": true, "name": "duo", "members": []gin.H{{"value": u[1].ID}},
	}).Code)

	w := f.call(http.MethodPost, "/api/conversations", alice, gin.H{"userId": u[1].ID})
	req.Equal(http.StatusOK, w.Code)
	var conv models.Conversation
	req.NoError(json.Unmarshal(w.Body.Bytes(), &conv))
	req.Len(conv.Users, 2)

	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/messages", alice, gin.H{"message": "hi"}).Code)
	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/messages", alice, gin.H{"message": "hi", "conversation_id": conv.ID}).Code)
	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/messages", alice, gin.H{"message": "hi", "conversationId": "missing"}).Code)
	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/messages", alice, gin.H{"message": "  ", "conversationId": conv.ID}).Code)
	req.Equal(http.StatusForbidden, f.call(http.MethodPost, "/api/messages", mallory, gin.H{"message": "hi", "conversationId": conv.ID}).Code)

	w = f.call(http.MethodPost, "/api/messages", alice, gin.H{"message": "hi", "conversationId": conv.ID})
	req.Equal(http.StatusOK, w.Code)
	var msg models.Message
	req.NoError(json.Unmarshal(w.Body.Bytes(), &msg))

	req.Equal(http.StatusNotFound, f.call(http.MethodGet, "/api/conversations/missing", alice, nil).Code)
	req.Equal(http.StatusForbidden, f.call(http.MethodGet, "/api/conversations/"+conv.ID, mallory, nil).Code)
	req.Equal(http.StatusForbidden, f.call(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", mallory, nil).Code)

	w = f.call(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", bob, nil)
	req.Equal(http.StatusOK, w.Code)
	var msgs []models.Message
	req.NoError(json.Unmarshal(w.Body.Bytes(), &msgs))
	req.Len(msgs, 1)
	req.Equal(msg.ID, msgs[0].ID)

	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/conversations/missing/seen", bob, nil).Code)
	req.Equal(http.StatusForbidden, f.call(http.MethodPost, "/api/conversations/"+conv.ID+"/seen", mallory, nil).Code)

	w = f.call(http.MethodPost, "/api/conversations/"+conv.ID+"/seen", bob, nil)
	req.Equal(http.StatusOK, w.Code)
	var seen models.Message
	req.NoError(json.Unmarshal(w.Body.Bytes(), &seen))
	req.Equal(msg.ID, seen.ID)
	req.True(seen.SeenBy(u[1].ID))

	// Nothing left to mark: the conversation comes back instead.
	w = f.call(http.MethodPost, "/api/conversations/"+conv.ID+"/seen", bob, nil)
	req.Equal(http.StatusOK, w.Code)
	var unchanged models.Conversation
	req.NoError(json.Unmarshal(w.Body.Bytes(), &unchanged))
	req.Equal(conv.ID, unchanged.ID)

	req.Equal(http.StatusForbidden, f.call(http.MethodDelete, "/api/conversations/"+conv.ID, mallory, nil).Code)
	w = f.call(http.MethodDelete, "/api/conversations/"+conv.ID, bob, nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"count":1}`, w.Body.String())
	req.Equal(http.StatusBadRequest, f.call(http.MethodDelete, "/api/conversations/"+conv.ID, bob, nil).Code)
	req.Equal(http.StatusNotFound, f.call(http.MethodGet, "/api/conversations/"+conv.ID, alice, nil).Code)

	convs, err := f.store.ListConversationsForUser(context.Background(), u[0].ID)
	req.NoError(err)
	req.Empty(convs)
}

func TestSettings(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	u := testutil.SeedUsers(t, f.store, "alice")
	tok := f.token(u[0])

	req.Equal(http.StatusBadRequest, f.call(http.MethodPost, "/api/settings", tok, gin.H{"image": "not a url"}).Code)

	w := f.call(http.MethodPost, "/api/settings", tok, gin.H{"name": "Alicia", "image": "https://example.com/a.png"})
	req.Equal(http.StatusOK, w.Code)
	var got models.User
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Equal("Alicia", got.Name)
	req.Equal("https://example.com/a.png", *got.Image)
}
