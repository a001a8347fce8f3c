// Package gateway executes authenticated request/response calls against the
// dumb chat server API and normalizes every failure into a typed error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TokenSource supplies the current bearer token, if any. Satisfied by
// credential.Store.
type TokenSource interface {
	Token() string
	IsAuthenticated() bool
}

// Client is a thin JSON client for the chat API. It attaches the bearer
// token when authenticated and never lets a transport fault escape as an
// unclassified error. Business-level success is left to the caller: a
// response with success=false decodes fine and returns nil error here.
type Client struct {
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger
	http    *http.Client
}

// NewClient builds a gateway client for baseURL. A nil tokens source means
// all calls go out unauthenticated.
func NewClient(log *slog.Logger, baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		logger:  log.With(slog.String("component", "gateway")),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Do issues method path with body marshaled as JSON (nil for none) and
// decodes the response into out (non-nil pointer). All failures come back as
// *Error; a decoded payload with success=false is not a failure here.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return NewError(KindProtocol, op, fmt.Errorf("marshal body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return NewError(KindValidation, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil && c.tokens.IsAuthenticated() {
		req.Header.Set("Authorization", "Bearer "+c.tokens.Token())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", slog.String("op", op), slog.Any("error", err))
		return NewError(KindNetwork, op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("close response body failed", slog.String("op", op), slog.Any("error", err))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(KindNetwork, op, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("bad response payload", slog.String("op", op), slog.Int("status", resp.StatusCode))
		return NewError(KindProtocol, op, err)
	}
	return nil
}

// Login issues /api/login. Both legs of a 2FA login go through here.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return LoginResponse{}, NewError(KindValidation, "login", errors.New("username and password are required"))
	}
	var resp LoginResponse
	if err := c.Do(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// Register issues /api/register. Registration never authenticates.
func (c *Client) Register(ctx context.Context, username, password string) (BasicResponse, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return BasicResponse{}, NewError(KindValidation, "register", errors.New("username and password are required"))
	}
	var resp BasicResponse
	err := c.Do(ctx, http.MethodPost, "/api/register", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return BasicResponse{}, err
	}
	return resp, nil
}

// Channels fetches the full channel list.
func (c *Client) Channels(ctx context.Context) (ChannelsResponse, error) {
	var resp ChannelsResponse
	if err := c.Do(ctx, http.MethodGet, "/api/channels", nil, &resp); err != nil {
		return ChannelsResponse{}, err
	}
	return resp, nil
}

// CreateChannel creates a channel. The name must be non-empty.
func (c *Client) CreateChannel(ctx context.Context, name string) (CreateChannelResponse, error) {
	if strings.TrimSpace(name) == "" {
		return CreateChannelResponse{}, NewError(KindValidation, "create channel", errors.New("channel name cannot be empty"))
	}
	var resp CreateChannelResponse
	err := c.Do(ctx, http.MethodPost, "/api/channels/create", map[string]string{
		"channelName": name,
	}, &resp)
	if err != nil {
		return CreateChannelResponse{}, err
	}
	return resp, nil
}

// JoinChannel joins the named channel.
func (c *Client) JoinChannel(ctx context.Context, name string) (BasicResponse, error) {
	if strings.TrimSpace(name) == "" {
		return BasicResponse{}, NewError(KindValidation, "join channel", errors.New("channel name cannot be empty"))
	}
	var resp BasicResponse
	err := c.Do(ctx, http.MethodPost, "/api/channels/join", map[string]string{
		"channel": name,
	}, &resp)
	if err != nil {
		return BasicResponse{}, err
	}
	return resp, nil
}

// Members fetches the member list of a channel.
func (c *Client) Members(ctx context.Context, channel string) (MembersResponse, error) {
	var resp MembersResponse
	path := "/api/channels/members?channel=" + url.QueryEscape(channel)
	if err := c.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return MembersResponse{}, err
	}
	return resp, nil
}

// Messages fetches up to limit recent messages of a channel, newest first.
func (c *Client) Messages(ctx context.Context, channel string, limit int) (MessagesResponse, error) {
	var resp MessagesResponse
	path := "/api/messages?channel=" + url.QueryEscape(channel) + "&limit=" + strconv.Itoa(limit)
	if err := c.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return MessagesResponse{}, err
	}
	return resp, nil
}

// SendMessage posts text to a channel. No automatic retry: a duplicate
// submission risk on manual retry is accepted, the server-assigned id keeps
// the local state deduplicated.
func (c *Client) SendMessage(ctx context.Context, channel, text string) (SendMessageResponse, error) {
	if strings.TrimSpace(text) == "" {
		return SendMessageResponse{}, NewError(KindValidation, "send message", errors.New("message text cannot be empty"))
	}
	if strings.TrimSpace(channel) == "" {
		return SendMessageResponse{}, NewError(KindValidation, "send message", errors.New("channel cannot be empty"))
	}
	var resp SendMessageResponse
	err := c.Do(ctx, http.MethodPost, "/api/message", map[string]string{
		"channel": channel,
		"text":    text,
	}, &resp)
	if err != nil {
		return SendMessageResponse{}, err
	}
	return resp, nil
}

// AvatarURL returns the byte-retrieval URL for a user's avatar. The bytes
// themselves are fetched by out-of-core code.
func (c *Client) AvatarURL(username string) string {
	return c.baseURL + "/api/user/" + url.PathEscape(username) + "/avatar"
}
