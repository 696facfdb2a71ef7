package handlers

import (
	"fmt"
	"net/http"

	"messenger-be/internal/apperr"
	"messenger-be/internal/http/middleware"
	"messenger-be/internal/service"
	"messenger-be/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type ChatHandler struct {
	Chat  *service.Chat
	Store store.Gateway
}

type memberOption struct {
	Value string `json:"value"`
}

type createConversationReq struct {
	UserID  string         `json:"userId"`
	IsGroup bool           `json:"isGroup"`
	Members []memberOption `json:"members"`
	Name    string         `json:"name"`
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	if req.IsGroup {
		members := lo.Map(req.Members, func(m memberOption, _ int) string { return m.Value })
		conv, err := h.Chat.CreateGroup(c.Request.Context(), userID, members, req.Name)
		if err != nil {
			respondError(c, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, conv)
		return
	}

	if req.UserID == "" {
		respondError(c, fmt.Errorf("%w: userId is required", apperr.ErrValidation), http.StatusBadRequest)
		return
	}
	conv, err := h.Chat.StartDirect(c.Request.Context(), userID, req.UserID)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	convs, err := h.Store.ListConversationsForUser(c.Request.Context(), middleware.MustUserID(c))
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.Store.FindConversation(c.Request.Context(), c.Param("id"))
	if err == nil && !conv.HasMember(middleware.MustUserID(c)) {
		err = fmt.Errorf("%w: conversation %s", apperr.ErrAuthorization, conv.ID)
	}
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	conv, err := h.Store.FindConversation(c.Request.Context(), c.Param("id"))
	if err == nil && !conv.HasMember(middleware.MustUserID(c)) {
		err = fmt.Errorf("%w: conversation %s", apperr.ErrAuthorization, conv.ID)
	}
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}
	msgs, err := h.Store.ListMessages(c.Request.Context(), conv.ID)
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type sendMessageReq struct {
	Message        *string `json:"message"`
	Image          *string `json:"image"`
	ConversationID string  `json:"conversationId" binding:"required"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	msg, err := h.Chat.SendMessage(c.Request.Context(), middleware.MustUserID(c), req.ConversationID, req.Message, req.Image)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// MarkSeen answers with the updated message when the viewer was newly added
// to its seen set, and with the conversation otherwise.
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	res, err := h.Chat.MarkSeen(c.Request.Context(), middleware.MustUserID(c), middleware.MustEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	if res.Changed {
		c.JSON(http.StatusOK, res.Message)
		return
	}
	c.JSON(http.StatusOK, res.Conversation)
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	_, err := h.Chat.DeleteConversation(c.Request.Context(), middleware.MustUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": 1})
}
