package handlers

import (
	"net/http"

	"messenger-be/internal/auth"
	"messenger-be/internal/http/middleware"
	"messenger-be/internal/store"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	Auth  *auth.Service
	Store store.Gateway
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	u, err := h.Auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	token, u, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"user":         u,
	})
}

func (h *AuthHandler) Settings(c *gin.Context) {
	var req auth.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	u, err := h.Auth.UpdateProfile(c.Request.Context(), middleware.MustUserID(c), req)
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.Store.ListUsersExcept(c.Request.Context(), middleware.MustUserID(c))
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, users)
}
