package transcript

import (
	"regexp"
	"strings"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

// referenceMarker matches the header of the "reference policies" block the
// backend appends to answers. The cited policies are rendered as cards, so
// the block is dropped from the visible text.
var referenceMarker = regexp.MustCompile(`📋\s*\*\*참고\s*정책:\*\*`)

// StripReferencePolicies removes every reference-policy block from text.
// A block runs from the marker to the next blank line or the end of the
// text. The result is trimmed. Applying it twice gives the same result as
// applying it once.
func StripReferencePolicies(text string) string {
	for {
		loc := referenceMarker.FindStringIndex(text)
		if loc == nil {
			break
		}
		rest := strings.TrimLeft(text[loc[1]:], " \t\r\n\f\v")
		end := strings.Index(rest, "\n\n")
		if end < 0 {
			text = text[:loc[0]]
			continue
		}
		text = text[:loc[0]] + rest[end:]
	}
	return strings.TrimSpace(text)
}

// Style classes for rendered entries.
const (
	StyleUser                  = "user"
	StyleAssistant             = "assistant"
	StyleAssistantError        = "assistant-error"
	StyleAssistantWarning      = "assistant-warning"
	StyleAssistantPolicyList   = "assistant-policy-list"
	StyleAssistantPersonalized = "assistant-personalized"
	StyleAssistantGuide        = "assistant-guide"
)

// View is an entry prepared for rendering.
type View struct {
	domain.ChatEntry
	Style string `json:"style"`
}

// StyleClass picks the render style for an entry from its sender and type.
func StyleClass(e domain.ChatEntry) string {
	if e.IsUser() {
		return StyleUser
	}
	switch e.MessageType {
	case domain.MessageTypeError:
		return StyleAssistantError
	case domain.MessageTypeWarning:
		return StyleAssistantWarning
	case domain.MessageTypePolicyList:
		return StyleAssistantPolicyList
	case domain.MessageTypeGuide:
		return StyleAssistantGuide
	case domain.MessageTypePersonalized:
		return StyleAssistantPersonalized
	}
	if e.Personalized {
		return StyleAssistantPersonalized
	}
	return StyleAssistant
}

// Display returns the render copy of e. Only the text is transformed.
func Display(e domain.ChatEntry) View {
	out := e.Clone()
	out.Text = StripReferencePolicies(out.Text)
	return View{ChatEntry: out, Style: StyleClass(e)}
}

// DisplayAll maps Display over entries.
func DisplayAll(entries []domain.ChatEntry) []View {
	views := make([]View, len(entries))
	for i, e := range entries {
		views[i] = Display(e)
	}
	return views
}
