package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	devices  map[string]*domain.Device
	touched  int
	getErr   error
	upserted int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{devices: make(map[string]*domain.Device)}
}

func (f *fakeRepo) GetDevice(_ context.Context, id string) (*domain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.devices[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRepo) UpsertDevice(_ context.Context, d *domain.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted++
	cp := *d
	f.devices[d.DeviceID] = &cp
	return nil
}

func (f *fakeRepo) TouchDevice(_ context.Context, id string, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	if d, ok := f.devices[id]; ok {
		d.LastSeenAt = lastSeen
	}
	return nil
}

func (f *fakeRepo) GetValue(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeRepo) PutValue(context.Context, string, string, string) error { return nil }
func (f *fakeRepo) Ping(context.Context) error                             { return nil }
func (f *fakeRepo) Close() error                                           { return nil }

func serve(t *testing.T, repo *fakeRepo, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var deviceID, sessionID string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID = DeviceIDFromContext(r.Context())
		sessionID = SessionIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, deviceID, sessionID
}

func TestMiddleware_IssuesDeviceCookie(t *testing.T) {
	repo := newFakeRepo()
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(SessionHeaderName, "tab-1")

	rec, deviceID, sessionID := serve(t, repo, req)

	if !isValidDeviceID(deviceID) {
		t.Fatalf("Expected a UUID device id, got %q", deviceID)
	}
	if sessionID != "tab-1" {
		t.Errorf("Expected session tab-1, got %q", sessionID)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DeviceCookieName || cookies[0].Value != deviceID {
		t.Fatalf("Unexpected cookies: %+v", cookies)
	}
	if repo.upserted != 1 {
		t.Errorf("Expected device to be recorded once, got %d", repo.upserted)
	}
}

func TestMiddleware_ReusesValidCookie(t *testing.T) {
	repo := newFakeRepo()
	id := "6f1c2c8e-6c55-4a47-9e61-2f8f5b0c9a11"
	old := time.Now().Add(-time.Hour)
	repo.devices[id] = &domain.Device{DeviceID: id, LastSeenAt: old}

	req := httptest.NewRequest(http.MethodGet, "/api/session?session_id=tab-2", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: id})

	_, deviceID, sessionID := serve(t, repo, req)
	if deviceID != id {
		t.Errorf("Expected cookie device id, got %q", deviceID)
	}
	if sessionID != "tab-2" {
		t.Errorf("Expected session from query, got %q", sessionID)
	}
	if repo.touched != 1 || repo.upserted != 0 {
		t.Errorf("Expected one touch and no upsert, got touched=%d upserted=%d", repo.touched, repo.upserted)
	}
}

func TestMiddleware_ReplacesForgedCookie(t *testing.T) {
	repo := newFakeRepo()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "../../etc/passwd"})

	_, deviceID, sessionID := serve(t, repo, req)
	if deviceID == "../../etc/passwd" || !isValidDeviceID(deviceID) {
		t.Errorf("Expected a fresh device id, got %q", deviceID)
	}
	if sessionID != DefaultSessionIDValue {
		t.Errorf("Expected default session, got %q", sessionID)
	}
}

func TestMiddleware_RepositoryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.getErr = errors.New("disk full")

	called := false
	h := Middleware(repo, true)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if called {
		t.Error("Expected handler not to run")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := map[string]string{
		"":          DefaultSessionIDValue,
		"  tab-1  ": "tab-1",
		"has space": DefaultSessionIDValue,
		"a/b":       DefaultSessionIDValue,
		"tab:1.2_x": "tab:1.2_x",
	}
	for in, want := range tests {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}
