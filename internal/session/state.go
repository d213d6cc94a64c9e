package session

import (
	"fmt"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
	"github.com/DonggunSe0/aibbot/internal/transcript"
)

// Awaiting holds one in-flight flag per operation. Flags are independent:
// any combination may be true at once.
type Awaiting struct {
	Chat           bool `json:"chat"`
	RecentPolicies bool `json:"recent_policies"`
	PolicyDetail   bool `json:"policy_detail"`
	Sync           bool `json:"sync"`
	Login          bool `json:"login"`
	Signup         bool `json:"signup"`
}

// DetailPhase is the state of the policy detail view.
type DetailPhase string

const (
	DetailIdle    DetailPhase = "idle"
	DetailLoading DetailPhase = "loading"
	DetailError   DetailPhase = "error"
	DetailLoaded  DetailPhase = "loaded"
)

// Detail is the policy detail view. Policy is set only when loaded and
// Error only on error.
type Detail struct {
	Phase    DetailPhase       `json:"phase"`
	PolicyID string            `json:"policy_id,omitempty"`
	Policy   *domain.PolicyRef `json:"policy,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Recent is the last recent-policies result.
type Recent struct {
	Policies    []domain.PolicyRef `json:"policies"`
	StatusLabel string             `json:"status_label,omitempty"`
	Message     string             `json:"message,omitempty"`
	Error       string             `json:"error,omitempty"`
	Days        int                `json:"days,omitempty"`
}

// Tone colors a notification.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneFailure Tone = "failure"
)

// Notification is the single transient message slot.
type Notification struct {
	Text      string    `json:"text"`
	Tone      Tone      `json:"tone"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Snapshot is a deep copy of everything a view needs to render a session.
type Snapshot struct {
	DeviceID       string            `json:"device_id"`
	SessionID      string            `json:"session_id"`
	Version        uint64            `json:"version"`
	Transcript     []transcript.View `json:"transcript"`
	Modals         Modals            `json:"modals"`
	Awaiting       Awaiting          `json:"awaiting"`
	Detail         Detail            `json:"detail"`
	Recent         Recent            `json:"recent"`
	Notification   *Notification     `json:"notification,omitempty"`
	CurrentUser    *domain.User      `json:"current_user,omitempty"`
	ProfileSummary string            `json:"profile_summary"`
	InlineError    string            `json:"inline_error,omitempty"`
	LoginError     string            `json:"login_error,omitempty"`
	SignupError    string            `json:"signup_error,omitempty"`
}

// NoChangesLabel is the status label of a result with no changes.
const NoChangesLabel = "새로운 변경사항이 없습니다."

// StatusLabel describes the change counts of a recent-policies result.
// Zero changes yield NoChangesLabel rather than a zero count.
func StatusLabel(newCount, updatedCount int) string {
	switch {
	case newCount > 0 && updatedCount > 0:
		return fmt.Sprintf("신규 %d개, 업데이트 %d개", newCount, updatedCount)
	case newCount > 0:
		return fmt.Sprintf("신규 정책 %d개", newCount)
	case updatedCount > 0:
		return fmt.Sprintf("업데이트된 정책 %d개", updatedCount)
	default:
		return NoChangesLabel
	}
}
