// Package client talks to a messenger server the way a browser front end
// would: JSON over HTTP for mutations and reads, a websocket for events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"messenger-be/internal/apperr"
	"messenger-be/internal/models"
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
	Detail  string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("http %d: %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Unwrap maps the status back onto the error taxonomy so callers can use
// errors.Is the same way on both sides of the wire.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return apperr.ErrAuthentication
	case http.StatusBadRequest:
		return apperr.ErrValidation
	case http.StatusForbidden:
		return apperr.ErrAuthorization
	case http.StatusNotFound:
		return apperr.ErrNotFound
	default:
		return nil
	}
}

type API struct {
	base  string
	http  *http.Client
	token string
}

func NewAPI(baseURL string, hc *http.Client) *API {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &API{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// WithToken returns a copy of the API that authenticates as the token owner.
func (a *API) WithToken(token string) *API {
	cp := *a
	cp.token = token
	return &cp
}

func (a *API) Token() string { return a.token }

// Session is the result of a successful login.
type Session struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}

func (a *API) Register(ctx context.Context, name, email, password string) (models.User, error) {
	var u models.User
	err := a.do(ctx, http.MethodPost, "/api/register", map[string]string{
		"name": name, "email": email, "password": password,
	}, &u)
	return u, err
}

func (a *API) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	err := a.do(ctx, http.MethodPost, "/api/login", map[string]string{
		"email": email, "password": password,
	}, &s)
	return s, err
}

func (a *API) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := a.do(ctx, http.MethodGet, "/api/users", nil, &users)
	return users, err
}

func (a *API) UpdateProfile(ctx context.Context, name, image *string) (models.User, error) {
	var u models.User
	err := a.do(ctx, http.MethodPost, "/api/settings", map[string]*string{"name": name, "image": image}, &u)
	return u, err
}

func (a *API) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := a.do(ctx, http.MethodGet, "/api/conversations", nil, &convs)
	return convs, err
}

func (a *API) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	var conv models.Conversation
	err := a.do(ctx, http.MethodGet, "/api/conversations/"+id, nil, &conv)
	return conv, err
}

func (a *API) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := a.do(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil, &msgs)
	return msgs, err
}

func (a *API) StartDirect(ctx context.Context, userID string) (models.Conversation, error) {
	var conv models.Conversation
	err := a.do(ctx, http.MethodPost, "/api/conversations", map[string]string{"userId": userID}, &conv)
	return conv, err
}

type memberOption struct {
	Value string `json:"value"`
}

func (a *API) CreateGroup(ctx context.Context, name string, memberIDs []string) (models.Conversation, error) {
	members := make([]memberOption, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, memberOption{Value: id})
	}
	var conv models.Conversation
	err := a.do(ctx, http.MethodPost, "/api/conversations", map[string]any{
		"isGroup": true, "name": name, "members": members,
	}, &conv)
	return conv, err
}

func (a *API) SendMessage(ctx context.Context, conversationID string, body, image *string) (models.Message, error) {
	var m models.Message
	err := a.do(ctx, http.MethodPost, "/api/messages", map[string]any{
		"conversationId": conversationID, "message": body, "image": image,
	}, &m)
	return m, err
}

// MarkSeen reports the latest message of a conversation as seen. The raw
// answer is either the updated message or the unchanged conversation.
func (a *API) MarkSeen(ctx context.Context, conversationID string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := a.do(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/seen", nil, &raw)
	return raw, err
}

func (a *API) DeleteConversation(ctx context.Context, conversationID string) error {
	return a.do(ctx, http.MethodDelete, "/api/conversations/"+conversationID, nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Message, Detail: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
