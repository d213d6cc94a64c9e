package session

import "fmt"

// Modal names one overlay of the page.
type Modal string

const (
	ModalProfileEditor Modal = "profile"
	ModalLogin         Modal = "login"
	ModalSignup        Modal = "signup"
	ModalPolicyDetail  Modal = "policy"
)

// Modals is the visibility of every overlay. Login and signup are never
// open together; the profile editor and policy detail are independent of
// everything else.
type Modals struct {
	ProfileEditor bool `json:"profile"`
	Login         bool `json:"login"`
	Signup        bool `json:"signup"`
	PolicyDetail  bool `json:"policy"`
}

// ParseModal validates a modal name.
func ParseModal(name string) (Modal, error) {
	switch m := Modal(name); m {
	case ModalProfileEditor, ModalLogin, ModalSignup, ModalPolicyDetail:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModal, name)
}

// Set shows or hides m, keeping login and signup exclusive.
func (s *Modals) Set(m Modal, open bool) {
	switch m {
	case ModalProfileEditor:
		s.ProfileEditor = open
	case ModalLogin:
		s.Login = open
		if open {
			s.Signup = false
		}
	case ModalSignup:
		s.Signup = open
		if open {
			s.Login = false
		}
	case ModalPolicyDetail:
		s.PolicyDetail = open
	}
}

// IsOpen reports whether m is shown.
func (s Modals) IsOpen(m Modal) bool {
	switch m {
	case ModalProfileEditor:
		return s.ProfileEditor
	case ModalLogin:
		return s.Login
	case ModalSignup:
		return s.Signup
	case ModalPolicyDetail:
		return s.PolicyDetail
	}
	return false
}
