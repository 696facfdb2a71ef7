package router

import (
	"log/slog"

	"messenger-be/internal/auth"
	"messenger-be/internal/http/handlers"
	"messenger-be/internal/http/middleware"
	"messenger-be/internal/service"
	"messenger-be/internal/store"
	"messenger-be/internal/ws"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Log                  *slog.Logger
	Store                store.Gateway
	Auth                 *auth.Service
	Chat                 *service.Chat
	Hub                  *ws.Hub
	WSInsecureSkipVerify bool
}

func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Log))

	tokens := d.Auth.Tokens()

	// Auth
	authH := &handlers.AuthHandler{Auth: d.Auth, Store: d.Store}
	r.POST("/api/register", authH.Register)
	r.POST("/api/login", authH.Login)

	// WebSocket endpoint
	wsH := &handlers.WSHandler{
		Hub:                  d.Hub,
		Tokens:               tokens,
		Store:                d.Store,
		Log:                  d.Log,
		WSInsecureSkipVerify: d.WSInsecureSkipVerify,
	}
	r.GET("/ws", wsH.Handle)

	// Protected routes
	authed := r.Group("/api")
	authed.Use(middleware.AuthMiddleware(tokens))

	authed.GET("/users", authH.ListUsers)
	authed.POST("/settings", authH.Settings)

	chatH := &handlers.ChatHandler{Chat: d.Chat, Store: d.Store}
	authed.POST("/conversations", chatH.CreateConversation)
	authed.GET("/conversations", chatH.ListConversations)
	authed.GET("/conversations/:id", chatH.GetConversation)
	authed.GET("/conversations/:id/messages", chatH.ListMessages)
	authed.POST("/conversations/:id/seen", chatH.MarkSeen)
	authed.DELETE("/conversations/:id", chatH.DeleteConversation)
	authed.POST("/messages", chatH.SendMessage)

	return r
}
