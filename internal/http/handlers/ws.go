package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"messenger-be/internal/apperr"
	"messenger-be/internal/auth"
	"messenger-be/internal/channels"
	"messenger-be/internal/store"
	"messenger-be/internal/ws"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
)

type WSHandler struct {
	Hub                  *ws.Hub
	Tokens               auth.Tokens
	Store                store.Gateway
	Log                  *slog.Logger
	WSInsecureSkipVerify bool
}

func (h *WSHandler) Handle(c *gin.Context) {
	// Browsers cannot set headers on a websocket upgrade, so the token rides
	// in the query string.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}

	claims, err := h.Tokens.Validate(tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	opts := &websocket.AcceptOptions{InsecureSkipVerify: h.WSInsecureSkipVerify}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return
	}

	client := h.Hub.AddClient(ws.Identity{UserID: claims.UserID, Email: claims.Email}, conn)
	defer h.Hub.RemoveClient(client)

	err = h.Hub.Serve(c.Request.Context(), client, ChannelAuthorizer{Store: h.Store})
	h.Log.Debug("Socket closed", "user", claims.UserID, "reason", err)
}

// ChannelAuthorizer lets a socket listen on its own user channel, on
// conversations it belongs to and on the presence channel.
type ChannelAuthorizer struct {
	Store store.Gateway
}

func (a ChannelAuthorizer) AuthorizeChannel(ctx context.Context, id ws.Identity, channel string) error {
	switch channels.Classify(channel) {
	case channels.KindPresence:
		return nil
	case channels.KindUser:
		if channel != channels.ForUser(id.Email) {
			return fmt.Errorf("%w: channel %s belongs to another user", apperr.ErrAuthorization, channel)
		}
		return nil
	case channels.KindConversation:
		conv, err := a.Store.FindConversation(ctx, channel)
		if err != nil {
			return err
		}
		if !conv.HasMember(id.UserID) {
			return fmt.Errorf("%w: conversation %s", apperr.ErrAuthorization, channel)
		}
		return nil
	default:
		return fmt.Errorf("%w: empty channel", apperr.ErrValidation)
	}
}
