package domain

// Sender identifies who produced a transcript entry.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// MessageType selects how an entry is rendered. It never changes content.
type MessageType string

const (
	MessageTypePlain        MessageType = "plain"
	MessageTypeError        MessageType = "error"
	MessageTypeWarning      MessageType = "warning"
	MessageTypePolicyList   MessageType = "policy-list"
	MessageTypePersonalized MessageType = "personalized"
	MessageTypeGuide        MessageType = "guide"
)

// ChatEntry is one line of the transcript.
type ChatEntry struct {
	ID              string      `json:"id"`
	Sender          Sender      `json:"sender"`
	Text            string      `json:"text"`
	Timestamp       string      `json:"timestamp"`
	MessageType     MessageType `json:"type"`
	CitedPolicies   []PolicyRef `json:"cited_policies,omitempty"`
	Personalized    bool        `json:"personalized,omitempty"`
	ConfidenceScore *float64    `json:"confidence_score,omitempty"`
}

// IsUser reports whether the entry was typed or selected by the user.
func (e ChatEntry) IsUser() bool {
	return e.Sender == SenderUser
}

// Clone returns a copy that shares no mutable state with e.
func (e ChatEntry) Clone() ChatEntry {
	out := e
	if e.CitedPolicies != nil {
		out.CitedPolicies = append([]PolicyRef(nil), e.CitedPolicies...)
	}
	if e.ConfidenceScore != nil {
		score := *e.ConfidenceScore
		out.ConfidenceScore = &score
	}
	return out
}
