// Package gateway is the HTTP client for the policy backend.
//
// Every response is decoded into an explicit schema and narrowed before it
// is returned, so callers never see a half-valid shape. No call is retried.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

const maxResponseBytes = 4 << 20

// Client calls the backend API under a common root such as
// "http://localhost:8000/api".
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client. A zero timeout leaves calls unbounded; connection
// setup is still bounded by the transport.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	hc := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return NewWithHTTPClient(baseURL, hc, logger)
}

// NewWithHTTPClient creates a client that uses hc for requests.
func NewWithHTTPClient(baseURL string, hc *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger,
	}
}

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	Message            string              `json:"message"`
	UserProfile        *domain.UserProfile `json:"user_profile,omitempty"`
	PersonalizedSearch bool                `json:"personalized_search,omitempty"`
}

// ChatResponse is a narrowed chat answer.
type ChatResponse struct {
	Answer          string
	CitedPolicies   []domain.PolicyRef
	Personalized    bool
	ConfidenceScore *float64
}

// RecentSummary carries the change counts of a recent-policies result.
type RecentSummary struct {
	NewPolicies     int    `json:"new_policies"`
	UpdatedPolicies int    `json:"updated_policies"`
	Message         string `json:"message"`
}

// RecentPolicies is a narrowed recent-policies result.
type RecentPolicies struct {
	Policies []domain.PolicyRef
	Summary  RecentSummary
}

// LoginResult is a narrowed login result.
type LoginResult struct {
	Message string
	User    domain.User
}

// SyncResult is a narrowed sync result.
type SyncResult struct {
	Message string
	Changes map[string]any
}

// envelope holds the fields shared by every backend response.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  any    `json:"detail"`
}

// serverMessage picks the most specific message the backend sent.
func (e envelope) serverMessage() string {
	if m := strings.TrimSpace(e.Message); m != "" {
		return m
	}
	if m := strings.TrimSpace(e.Error); m != "" {
		return m
	}
	if m, ok := e.Detail.(string); ok {
		return strings.TrimSpace(m)
	}
	return ""
}

// Chat sends a chat message. Personalized searches use their own fallback
// message.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	op, fallback := "chat", fallbackChat
	if req.PersonalizedSearch {
		op, fallback = "personalized chat", fallbackPersonalized
	}

	var body struct {
		envelope
		Answer          *string            `json:"answer"`
		CitedPolicies   []domain.PolicyRef `json:"cited_policies"`
		Personalized    bool               `json:"personalized"`
		ConfidenceScore *float64           `json:"confidence_score"`
	}
	if err := c.do(ctx, op, http.MethodPost, "/chat", req, fallback, &body, &body.envelope); err != nil {
		return nil, err
	}
	if body.Success != nil && !*body.Success {
		return nil, c.serverError(op, http.StatusOK, body.serverMessage(), fallback)
	}
	if body.Answer == nil {
		return nil, c.invalid(op, fallback, "missing answer")
	}

	score := body.ConfidenceScore
	if score != nil && (*score < 0 || *score > 1) {
		c.logger.Warn("Dropping out-of-range confidence score", "op", op, "score", *score)
		score = nil
	}
	return &ChatResponse{
		Answer:          *body.Answer,
		CitedPolicies:   body.CitedPolicies,
		Personalized:    body.Personalized,
		ConfidenceScore: score,
	}, nil
}

// RecentPolicies lists policies added or updated in the last days.
func (c *Client) RecentPolicies(ctx context.Context, days, limit int) (*RecentPolicies, error) {
	const op = "recent policies"
	q := url.Values{}
	q.Set("days", strconv.Itoa(days))
	q.Set("limit", strconv.Itoa(limit))

	var body struct {
		envelope
		Data    *[]domain.PolicyRef `json:"data"`
		Summary *RecentSummary      `json:"summary"`
	}
	if err := c.do(ctx, op, http.MethodGet, "/recent-policies?"+q.Encode(), nil, fallbackRecent, &body, &body.envelope); err != nil {
		return nil, err
	}
	if err := c.requireSuccess(op, body.envelope, fallbackRecent); err != nil {
		return nil, err
	}
	if body.Data == nil {
		return nil, c.invalid(op, fallbackRecent, "missing data")
	}

	out := &RecentPolicies{Policies: *body.Data}
	if out.Policies == nil {
		out.Policies = []domain.PolicyRef{}
	}
	if body.Summary != nil {
		out.Summary = *body.Summary
	}
	out.Summary.NewPolicies = max(out.Summary.NewPolicies, 0)
	out.Summary.UpdatedPolicies = max(out.Summary.UpdatedPolicies, 0)
	return out, nil
}

// PolicyDetail fetches one policy by its ID.
func (c *Client) PolicyDetail(ctx context.Context, id string) (*domain.PolicyRef, error) {
	const op = "policy detail"
	fallback := fmt.Sprintf(fallbackDetailFormat, id)

	var body struct {
		envelope
		Data *domain.PolicyRef `json:"data"`
	}
	if err := c.do(ctx, op, http.MethodGet, "/policy/"+url.PathEscape(id), nil, fallback, &body, &body.envelope); err != nil {
		return nil, err
	}
	if err := c.requireSuccess(op, body.envelope, fallback); err != nil {
		return nil, err
	}
	if body.Data == nil {
		return nil, c.invalid(op, fallback, "missing data")
	}
	if body.Data.ID.IsZero() {
		body.Data.ID = domain.ID(id)
	}
	return body.Data, nil
}

// Signup registers an account. email may be empty.
func (c *Client) Signup(ctx context.Context, username, password, email string) (string, error) {
	const op = "signup"
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email,omitempty"`
	}{username, password, email}

	var body envelope
	if err := c.do(ctx, op, http.MethodPost, "/signup", req, fallbackSignup, &body, &body); err != nil {
		return "", err
	}
	if err := c.requireSuccess(op, body, fallbackSignup); err != nil {
		return "", err
	}
	return body.serverMessage(), nil
}

// Login authenticates an account.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	const op = "login"
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	var body struct {
		envelope
		User *domain.User `json:"user"`
	}
	if err := c.do(ctx, op, http.MethodPost, "/login", req, fallbackLogin, &body, &body.envelope); err != nil {
		return nil, err
	}
	if err := c.requireSuccess(op, body.envelope, fallbackLogin); err != nil {
		return nil, err
	}
	if body.User == nil || body.User.ID.IsZero() || body.User.Username == "" {
		return nil, c.invalid(op, fallbackLogin, "missing user")
	}
	return &LoginResult{Message: body.serverMessage(), User: *body.User}, nil
}

// Sync asks the backend to refresh its policy data.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	const op = "sync"
	var body struct {
		envelope
		Changes map[string]any `json:"changes"`
	}
	if err := c.do(ctx, op, http.MethodPost, "/sync-policies", nil, fallbackSync, &body, &body.envelope); err != nil {
		return nil, err
	}
	if err := c.requireSuccess(op, body.envelope, fallbackSync); err != nil {
		return nil, err
	}
	return &SyncResult{Message: body.serverMessage(), Changes: body.Changes}, nil
}

// do performs one request. On a 2xx response the body is decoded into out.
// On any other status the body is decoded into env, if possible, to find
// the backend's message.
func (c *Client) do(ctx context.Context, op, method, path string, in any, fallback string, out any, env *envelope) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: KindInvalid, Message: fallback, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Message: fallback, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "op", op, "error", err, "duration", time.Since(start))
		return &Error{Op: op, Kind: KindTransport, Message: fallback, Err: fmt.Errorf("send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Status: resp.StatusCode, Message: fallback, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("Backend request completed", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > 0 {
			_ = json.Unmarshal(data, env)
		}
		return c.serverError(op, resp.StatusCode, env.serverMessage(), fallback)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return c.invalid(op, fallback, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

func (c *Client) requireSuccess(op string, env envelope, fallback string) error {
	if env.Success == nil {
		return c.invalid(op, fallback, "missing success flag")
	}
	if !*env.Success {
		return c.serverError(op, http.StatusOK, env.serverMessage(), fallback)
	}
	return nil
}

func (c *Client) serverError(op string, status int, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	c.logger.Warn("Backend reported failure", "op", op, "status", status, "message", message)
	return &Error{Op: op, Kind: KindServer, Status: status, Message: message}
}

func (c *Client) invalid(op, fallback, reason string) *Error {
	c.logger.Warn("Backend response has unexpected shape", "op", op, "reason", reason)
	return &Error{Op: op, Kind: KindInvalid, Message: fallback, Err: errors.New(reason)}
}
