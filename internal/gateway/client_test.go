package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithHTTPClient(srv.URL+"/api", srv.Client(), nil)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func requireGatewayError(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if gwErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, gwErr.Kind, err)
	}
	return gwErr
}

func TestChatSendsProfileAndNarrowsResponse(t *testing.T) {
	t.Parallel()

	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(w, http.StatusOK, `{
			"answer": "출산지원금은 ...",
			"cited_policies": [{"id": 12, "biz_nm": "첫만남이용권"}],
			"personalized": true,
			"confidence_score": 0.92
		}`)
	})

	profile := &domain.UserProfile{Region: "강남구", HasChild: "유"}
	resp, err := client.Chat(context.Background(), ChatRequest{Message: "출산 지원금 알려줘", UserProfile: profile})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got.Message != "출산 지원금 알려줘" || got.UserProfile == nil || got.UserProfile.Region != "강남구" {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if resp.Answer != "출산지원금은 ..." || !resp.Personalized {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.CitedPolicies) != 1 || resp.CitedPolicies[0].ID != "12" {
		t.Fatalf("unexpected cited policies: %+v", resp.CitedPolicies)
	}
	if resp.ConfidenceScore == nil || *resp.ConfidenceScore != 0.92 {
		t.Fatalf("unexpected confidence: %v", resp.ConfidenceScore)
	}
}

func TestChatDropsOutOfRangeConfidence(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"answer": "ok", "confidence_score": 3.5}`)
	})
	resp, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.ConfidenceScore != nil {
		t.Fatalf("expected confidence to be dropped, got %v", *resp.ConfidenceScore)
	}
}

func TestChatMissingAnswerIsInvalid(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"cited_policies": []}`)
	})
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	gwErr := requireGatewayError(t, err, KindInvalid)
	if gwErr.Message != fallbackChat {
		t.Fatalf("unexpected message: %q", gwErr.Message)
	}
}

func TestServerMessagePreferredOverFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		personl bool
	}{
		{"message field", http.StatusInternalServerError, `{"message": "DB 연결 실패"}`, "DB 연결 실패", false},
		{"error field", http.StatusBadGateway, `{"error": "LLM timeout"}`, "LLM timeout", false},
		{"detail string", http.StatusUnprocessableEntity, `{"detail": "message is required"}`, "message is required", false},
		{"detail list", http.StatusUnprocessableEntity, `{"detail": [{"loc": ["body"]}]}`, fallbackChat, false},
		{"html body", http.StatusInternalServerError, `<html>oops</html>`, fallbackChat, false},
		{"personalized fallback", http.StatusInternalServerError, ``, fallbackPersonalized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := client.Chat(context.Background(), ChatRequest{Message: "x", PersonalizedSearch: tt.personl})
			gwErr := requireGatewayError(t, err, KindServer)
			if gwErr.Status != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, gwErr.Status)
			}
			if gwErr.Message != tt.want {
				t.Fatalf("expected message %q, got %q", tt.want, gwErr.Message)
			}
		})
	}
}

func TestTransportFailureUsesFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewWithHTTPClient(base+"/api", nil, nil)
	_, err := client.Login(context.Background(), "a", "pw")
	gwErr := requireGatewayError(t, err, KindTransport)
	if gwErr.Message != fallbackLogin {
		t.Fatalf("unexpected message: %q", gwErr.Message)
	}
	if gwErr.Unwrap() == nil {
		t.Fatal("expected underlying transport error")
	}
}

func TestRecentPoliciesZeroChanges(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/recent-policies" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "7" || r.URL.Query().Get("limit") != "15" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, `{"success": true, "data": [], "summary": {"new_policies": 0, "updated_policies": 0}}`)
	})

	res, err := client.RecentPolicies(context.Background(), 7, 15)
	if err != nil {
		t.Fatalf("RecentPolicies failed: %v", err)
	}
	if res.Policies == nil || len(res.Policies) != 0 {
		t.Fatalf("expected empty non-nil policies, got %#v", res.Policies)
	}
	if res.Summary.NewPolicies != 0 || res.Summary.UpdatedPolicies != 0 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
}

func TestRecentPoliciesLogicalFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"success": false, "message": "동기화 중입니다"}`)
	})
	_, err := client.RecentPolicies(context.Background(), 7, 15)
	gwErr := requireGatewayError(t, err, KindServer)
	if gwErr.Message != "동기화 중입니다" {
		t.Fatalf("unexpected message: %q", gwErr.Message)
	}
}

func TestRecentPoliciesRequiresSuccessAndData(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"data": []}`, `{"success": true}`, `[]`} {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, body)
		})
		_, err := client.RecentPolicies(context.Background(), 1, 15)
		gwErr := requireGatewayError(t, err, KindInvalid)
		if gwErr.Message != fallbackRecent {
			t.Fatalf("body %s: unexpected message %q", body, gwErr.Message)
		}
	}
}

func TestPolicyDetail(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/policy/7":
			writeJSON(w, http.StatusOK, `{"success": true, "data": {"id": 7, "biz_nm": "부모급여", "aply_site_addr": "https://example.go.kr"}}`)
		case "/api/policy/8":
			writeJSON(w, http.StatusOK, `{"success": false}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"success": false, "message": "정책을 찾을 수 없습니다."}`)
		}
	})

	p, err := client.PolicyDetail(context.Background(), "7")
	if err != nil {
		t.Fatalf("PolicyDetail failed: %v", err)
	}
	if p.ID != "7" || p.Name != "부모급여" || p.ApplyURL != "https://example.go.kr" {
		t.Fatalf("unexpected policy: %+v", p)
	}

	_, err = client.PolicyDetail(context.Background(), "8")
	gwErr := requireGatewayError(t, err, KindServer)
	if gwErr.Message != "정책 상세 정보(ID: 8) 요청 중 알 수 없는 서버 오류가 발생했습니다." {
		t.Fatalf("unexpected fallback: %q", gwErr.Message)
	}

	_, err = client.PolicyDetail(context.Background(), "999")
	gwErr = requireGatewayError(t, err, KindServer)
	if gwErr.Status != http.StatusNotFound || gwErr.Message != "정책을 찾을 수 없습니다." {
		t.Fatalf("unexpected error: %+v", gwErr)
	}
}

func TestLoginNarrowsUser(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["username"] == "a" {
			writeJSON(w, http.StatusOK, `{"success": true, "message": "환영합니다", "user": {"id": 1, "username": "a"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success": true, "message": "ok"}`)
	})

	res, err := client.Login(context.Background(), "a", "pass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.User.ID != "1" || res.User.Username != "a" || res.Message != "환영합니다" {
		t.Fatalf("unexpected login result: %+v", res)
	}

	_, err = client.Login(context.Background(), "b", "pass")
	requireGatewayError(t, err, KindInvalid)
}

func TestSignupAndSync(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/signup":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			if _, ok := req["email"]; ok {
				t.Error("empty email must be omitted")
			}
			writeJSON(w, http.StatusOK, `{"success": true, "message": "가입 완료"}`)
		case "/api/sync-policies":
			writeJSON(w, http.StatusOK, `{"success": true, "message": "동기화 완료", "changes": {"new": 2}}`)
		}
	})

	msg, err := client.Signup(context.Background(), "a", "pass", "")
	if err != nil || msg != "가입 완료" {
		t.Fatalf("Signup = %q, %v", msg, err)
	}

	res, err := client.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Message != "동기화 완료" || res.Changes["new"] != float64(2) {
		t.Fatalf("unexpected sync result: %+v", res)
	}
}

func TestMessageHelper(t *testing.T) {
	t.Parallel()

	if got := Message(&Error{Message: "server says"}, "fb"); got != "server says" {
		t.Fatalf("Message = %q", got)
	}
	if got := Message(errors.New("plain"), "fb"); got != "fb" {
		t.Fatalf("Message = %q", got)
	}
}
