//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DonggunSe0/aibbot/internal/gateway"
	"github.com/DonggunSe0/aibbot/internal/identity"
	"github.com/DonggunSe0/aibbot/internal/profile"
	"github.com/DonggunSe0/aibbot/internal/session"
	"github.com/DonggunSe0/aibbot/internal/store"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrChatPending, http.StatusConflict},
		{session.ErrClosed, http.StatusGone},
		{fmt.Errorf("wrap: %w", session.ErrUnknownMenu), http.StatusBadRequest},
		{session.ErrPasswordTooShort, http.StatusBadRequest},
		{fmt.Errorf("%w: %q", profile.ErrInvalidRegion, "x"), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// fakePolicyBackend answers the policy backend API with canned data.
func fakePolicyBackend(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/chat":
		var req gateway.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer":         "답변: " + req.Message,
			"cited_policies": []any{},
		})
	case r.URL.Path == "/api/recent-policies":
		_, _ = io.WriteString(w, `{"success": true, "data": [{"id": 1, "biz_nm": "부모급여"}], "summary": {"new_policies": 1, "updated_policies": 0}}`)
	case strings.HasPrefix(r.URL.Path, "/api/policy/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/policy/")
		_, _ = fmt.Fprintf(w, `{"success": true, "data": {"id": %q, "biz_nm": "정책 %s"}}`, id, id)
	case r.URL.Path == "/api/login":
		_, _ = io.WriteString(w, `{"success": true, "message": "환영합니다", "user": {"id": 1, "username": "mom"}}`)
	case r.URL.Path == "/api/signup":
		_, _ = io.WriteString(w, `{"success": true, "message": "가입 완료"}`)
	case r.URL.Path == "/api/sync-policies":
		_, _ = io.WriteString(w, `{"success": true, "message": "동기화 완료"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success": false, "message": "not found"}`)
	}
}

type fixture struct {
	srv      *httptest.Server
	registry *session.Registry
}

const testDeviceID = "device-1"

// withTestIdentity stands in for identity.Middleware with a fixed device.
func withTestIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := r.Header.Get(identity.SessionHeaderName)
		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), testDeviceID, sid)))
	})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(fakePolicyBackend))
	t.Cleanup(backend.Close)

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "aibbot.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	profiles := profile.NewStore(repo)
	gw := gateway.NewWithHTTPClient(backend.URL+"/api", backend.Client(), nil)
	registry := session.NewRegistry(gw, profiles, session.Options{
		NotificationTTL:  time.Minute,
		SyncRefreshDelay: time.Millisecond,
	}, nil)

	base := NewHandler(registry, profiles)
	r := chi.NewRouter()
	r.Use(withTestIdentity)
	NewHealthHandler(repo, registry).RegisterHealth(r)
	NewSessionHandler(base).RegisterRoutes(r)
	NewProfileHandler(base).RegisterRoutes(r)
	r.Get("/ws/session", NewStreamHandler(registry, "*", true).ServeHTTP)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(registry.CloseAll)
	return &fixture{srv: srv, registry: registry}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set(identity.SessionHeaderName, "tab-1")
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (f *fixture) snapshot(t *testing.T, data []byte) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, data)
	}
	return snap
}

// settled waits for the tab's backend calls and returns its snapshot.
func (f *fixture) settled(t *testing.T) session.Snapshot {
	t.Helper()
	c := f.registry.Lookup(testDeviceID, "tab-1")
	if c == nil {
		t.Fatal("Expected controller for tab-1")
	}
	c.Wait()
	return c.Snapshot()
}

func TestSessionHandler_RecentMenu(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/session/menu", fmt.Sprintf(`{"menu": %q}`, session.MenuRecent))
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
	snap := f.snapshot(t, body)
	if len(snap.Transcript) != 1 || snap.Transcript[0].Text != session.MenuRecent {
		t.Fatalf("Expected echoed menu, got %+v", snap.Transcript)
	}

	snap = f.settled(t)
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Style != "assistant-policy-list" || len(last.CitedPolicies) != 1 {
		t.Errorf("Unexpected policy list entry: %+v", last)
	}
	if snap.Recent.StatusLabel != "신규 정책 1개" {
		t.Errorf("Unexpected status label: %q", snap.Recent.StatusLabel)
	}
}

func TestSessionHandler_MessageFlow(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/session/messages", `{"text": "출산 지원금 알려줘"}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
	snap := f.settled(t)
	if len(snap.Transcript) != 2 || snap.Transcript[1].Text != "답변: 출산 지원금 알려줘" {
		t.Fatalf("Unexpected transcript: %+v", snap.Transcript)
	}

	status, _ = f.do(t, http.MethodGet, "/api/session", "")
	if status != http.StatusOK {
		t.Errorf("Expected 200 for GET, got %d", status)
	}
}

func TestSessionHandler_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/session/messages", `{"text": "   "}`, http.StatusBadRequest},
		{http.MethodPost, "/api/session/messages", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/session/menu", `{"menu": "없는 메뉴"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/session/modals/settings", `{"open": true}`, http.StatusBadRequest},
		{http.MethodPost, "/api/session/modals/policy", `{"open": true}`, http.StatusBadRequest},
		{http.MethodPost, "/api/session/login", `{"username": "", "password": ""}`, http.StatusBadRequest},
		{http.MethodPost, "/api/session/signup", `{"username": "a", "password": "123"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		status, body := f.do(t, tt.method, tt.path, tt.body)
		if status != tt.want {
			t.Errorf("%s %s %s: expected %d, got %d (%s)", tt.method, tt.path, tt.body, tt.want, status, body)
		}
	}
}

func TestSessionHandler_PolicyDetail(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/session/policies/42", "")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
	snap := f.settled(t)
	if !snap.Modals.PolicyDetail || snap.Detail.Phase != session.DetailLoaded || snap.Detail.Policy.Name != "정책 42" {
		t.Fatalf("Unexpected detail: %+v", snap.Detail)
	}

	status, body = f.do(t, http.MethodDelete, "/api/session/policy", "")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if snap := f.snapshot(t, body); snap.Modals.PolicyDetail || snap.Detail.Phase != session.DetailIdle {
		t.Errorf("Expected detail closed: %+v", snap.Detail)
	}
}

func TestSessionHandler_ClosedSessionIsGone(t *testing.T) {
	f := newFixture(t)

	if status, body := f.do(t, http.MethodGet, "/api/session", ""); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
	// Closed but not yet detached, as during an eviction.
	f.registry.Lookup(testDeviceID, "tab-1").Close()

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodDelete, "/api/session/policy", ""},
		{http.MethodPost, "/api/session/modals/login", `{"open": false}`},
	} {
		if status, body := f.do(t, tc.method, tc.path, tc.body); status != http.StatusGone {
			t.Errorf("%s %s: expected 410, got %d: %s", tc.method, tc.path, status, body)
		}
	}
}

func TestSessionHandler_LoginAndSync(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/api/session/modals/login", `{"open": true}`)
	status, _ := f.do(t, http.MethodPost, "/api/session/login", `{"username": "mom", "password": "pass"}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	snap := f.settled(t)
	if snap.CurrentUser == nil || snap.CurrentUser.Username != "mom" || snap.Modals.Login {
		t.Fatalf("Unexpected login state: %+v %+v", snap.CurrentUser, snap.Modals)
	}

	status, body := f.do(t, http.MethodPost, "/api/session/sync", "")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var res struct {
		Started bool `json:"started"`
	}
	if err := json.Unmarshal(body, &res); err != nil || !res.Started {
		t.Fatalf("Expected sync to start: %s", body)
	}
	snap = f.settled(t)
	if snap.Notification == nil || snap.Notification.Text != "동기화 완료" {
		t.Errorf("Unexpected notification: %+v", snap.Notification)
	}
	if snap.Recent.Days != 1 {
		t.Errorf("Expected post-sync refresh with a one-day window, got %d", snap.Recent.Days)
	}
}

func TestProfileHandler_RoundTrip(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/profile/validation", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"valid":false`) {
		t.Fatalf("Expected invalid empty profile, got %d %s", status, body)
	}

	status, body = f.do(t, http.MethodPut, "/api/profile", `{"region": "서울"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown region, got %d: %s", status, body)
	}

	status, body = f.do(t, http.MethodPut, "/api/profile",
		`{"region": "송파구", "hasChild": "유", "children": [{"gender": "남", "birthdate": "2023-05-01"}]}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}

	_, body = f.do(t, http.MethodGet, "/api/profile/summary", "")
	if !strings.Contains(string(body), "송파구 거주, 자녀 1명") {
		t.Errorf("Unexpected summary: %s", body)
	}

	_, body = f.do(t, http.MethodGet, "/api/session", "")
	if snap := f.snapshot(t, body); snap.ProfileSummary != "송파구 거주, 자녀 1명" {
		t.Errorf("Expected session summary to follow the profile, got %q", snap.ProfileSummary)
	}
}

func TestProfileHandler_Options(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/options", "")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var opts struct {
		Menus     []string `json:"menus"`
		Districts []string `json:"districts"`
	}
	if err := json.Unmarshal(body, &opts); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	if len(opts.Menus) != 3 || len(opts.Districts) != 25 {
		t.Errorf("Unexpected options: %+v", opts)
	}
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/health", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"database":"ok"`) {
		t.Errorf("Unexpected health: %d %s", status, body)
	}
}
