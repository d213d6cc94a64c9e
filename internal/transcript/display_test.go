package transcript

import (
	"testing"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

func TestStripReferencePolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no marker",
			in:   "  출산 지원금은 200만원입니다.  ",
			want: "출산 지원금은 200만원입니다.",
		},
		{
			name: "block at end",
			in:   "답변입니다.\n\n📋 **참고 정책:** 첫만남이용권, 부모급여",
			want: "답변입니다.",
		},
		{
			name: "block followed by paragraph",
			in:   "답변입니다.\n\n📋 **참고 정책:**\n- 첫만남이용권\n- 부모급여\n\n추가 안내입니다.",
			want: "답변입니다.\n\n\n\n추가 안내입니다.",
		},
		{
			name: "loose spacing",
			in:   "앞\n📋**참고   정책:**  목록\n",
			want: "앞",
		},
		{
			name: "two blocks",
			in:   "A\n\n📋 **참고 정책:** x\n\nB\n\n📋 **참고 정책:** y",
			want: "A\n\n\n\nB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := StripReferencePolicies(tt.in)
			if got != tt.want {
				t.Fatalf("StripReferencePolicies(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripReferencePoliciesIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"plain",
		"답변\n\n📋 **참고 정책:** a\n\n나머지",
		"📋 **참고 정책:**",
		"📋 **참고 정책:** a\n\n📋 **참고 정책:** b\n\nc",
		"📋 \n\n**참고 정책:** 끝",
		"x 📋 **참고정책:**\n\n\n\ny",
	}
	for _, in := range inputs {
		once := StripReferencePolicies(in)
		twice := StripReferencePolicies(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestDisplayLeavesEntryDataAlone(t *testing.T) {
	t.Parallel()

	entry := domain.ChatEntry{
		ID:          "e1",
		Sender:      domain.SenderAssistant,
		Text:        "답변\n\n📋 **참고 정책:** a",
		MessageType: domain.MessageTypeError,
	}
	view := Display(entry)

	if view.Text != "답변" {
		t.Fatalf("unexpected display text: %q", view.Text)
	}
	if view.Style != StyleAssistantError {
		t.Fatalf("unexpected style: %q", view.Style)
	}
	if entry.Text != "답변\n\n📋 **참고 정책:** a" {
		t.Fatal("Display mutated the source entry")
	}
}

func TestStyleClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		entry domain.ChatEntry
		want  string
	}{
		{domain.ChatEntry{Sender: domain.SenderUser, MessageType: domain.MessageTypeError}, StyleUser},
		{domain.ChatEntry{Sender: domain.SenderAssistant}, StyleAssistant},
		{domain.ChatEntry{Sender: domain.SenderAssistant, MessageType: domain.MessageTypeWarning}, StyleAssistantWarning},
		{domain.ChatEntry{Sender: domain.SenderAssistant, MessageType: domain.MessageTypePolicyList}, StyleAssistantPolicyList},
		{domain.ChatEntry{Sender: domain.SenderAssistant, MessageType: domain.MessageTypeGuide}, StyleAssistantGuide},
		{domain.ChatEntry{Sender: domain.SenderAssistant, MessageType: domain.MessageTypePlain, Personalized: true}, StyleAssistantPersonalized},
	}
	for _, tt := range tests {
		if got := StyleClass(tt.entry); got != tt.want {
			t.Errorf("StyleClass(%+v) = %q, want %q", tt.entry, got, tt.want)
		}
	}
}
