package session

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DonggunSe0/aibbot/internal/domain"
	"github.com/DonggunSe0/aibbot/internal/gateway"
	"github.com/DonggunSe0/aibbot/internal/profile"
)

// Menu labels.
const (
	MenuProfile      = "내 정보 등록/수정"
	MenuRecent       = "새로 나온 정책 보기"
	MenuPersonalized = "맞춤 정책 찾기"
)

// Menus lists the menu labels in display order.
var Menus = []string{MenuProfile, MenuRecent, MenuPersonalized}

// FAQs lists the suggested questions shown under the menus.
var FAQs = []string{
	"출산 지원금 알려줘",
	"산모 건강관리 서비스 뭐 있어?",
	"어린이집 신청 방법 알려줘",
	"임신부 교통비 지원돼?",
	"육아휴직 급여 얼마나 받아?",
	"다자녀 혜택 뭐가 있어?",
}

// MinPasswordLength is the shortest password accepted for signup.
const MinPasswordLength = 4

// User-visible texts.
const (
	profileGuideText = "거주 지역과 자녀 정보를 등록하면 나에게 맞는 정책을 찾아드릴게요.\n" +
		"지역과 자녀 유무는 필수 항목이고, 자녀가 있다면 성별과 생년월일을 함께 입력해 주세요."
	missingProfilePrefix = "개인 맞춤 정책 검색을 위해서는 먼저 내 정보를 등록해주세요."
	missingPolicyIDText  = "정책 ID가 없어 상세 정보를 불러올 수 없습니다."
	chatFailedText       = "응답을 가져오는 데 실패했습니다."
	recentFailedText     = "새로 나온 정책을 불러오는데 실패했습니다."
	policyListHint       = "정책 이름을 선택하면 상세 정보를 볼 수 있습니다."
	syncDoneText         = "정책 동기화가 완료되었습니다."
	syncFailedText       = "정책 동기화에 실패했습니다."
	loginDoneText        = "로그인 되었습니다."
	loginFailedText      = "로그인에 실패했습니다."
	signupDoneText       = "회원가입 성공! 이제 로그인할 수 있습니다."
	signupFailedText     = "회원가입에 실패했습니다."
	logoutDoneText       = "로그아웃 되었습니다."
	profileSavedText     = "내 정보가 저장되었습니다."
	credentialsText      = "아이디와 비밀번호를 입력해주세요."
	passwordTooShortText = "비밀번호는 최소 4자 이상이어야 합니다."
)

// SelectMenu dispatches one of the three menu actions.
func (c *Controller) SelectMenu(menu string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}

	switch menu {
	case MenuProfile:
		c.appendUser(menu)
		c.appendAssistant(domain.ChatEntry{Text: profileGuideText, MessageType: domain.MessageTypeGuide})
		c.modals.Set(ModalProfileEditor, true)
	case MenuRecent:
		c.appendUser(menu)
		c.startRecentLocked(c.opts.RecentDays)
	case MenuPersonalized:
		c.appendUser(menu)
		c.startPersonalizedLocked()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMenu, menu)
	}
	c.publishLocked()
	return nil
}

// SubmitMessage sends free text typed by the user. It is rejected while
// another chat response is pending.
func (c *Controller) SubmitMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	if c.chatInFlight > 0 {
		return ErrChatPending
	}
	c.startChatLocked(text)
	c.publishLocked()
	return nil
}

// SelectFAQ sends a suggested question. Unlike SubmitMessage it is not
// gated on pending chat responses.
func (c *Controller) SelectFAQ(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	c.startChatLocked(text)
	c.publishLocked()
	return nil
}

// startChatLocked echoes text and issues a chat call with the device's
// profile attached when one is registered.
func (c *Controller) startChatLocked(text string) {
	c.appendUser(text)
	req := gateway.ChatRequest{Message: text}
	if p := c.profiles.Load(c.ctx, c.deviceID); !p.IsEmpty() {
		req.UserProfile = &p
	}

	c.chatInFlight++
	c.call(func(ctx context.Context) {
		resp, err := c.backend.Chat(ctx, req)
		c.resolve(func() {
			c.chatInFlight--
			if err != nil {
				c.logger.Warn("Chat call failed", "error", err)
				c.appendError(gateway.Message(err, chatFailedText))
				return
			}
			entry := domain.ChatEntry{
				Text:            resp.Answer,
				CitedPolicies:   resp.CitedPolicies,
				Personalized:    resp.Personalized,
				ConfidenceScore: resp.ConfidenceScore,
			}
			if resp.Personalized {
				entry.MessageType = domain.MessageTypePersonalized
			}
			c.appendAssistant(entry)
		})
	})
}

// startPersonalizedLocked validates the profile, read once for the whole
// action, and issues a personalized chat call only when it is complete.
func (c *Controller) startPersonalizedLocked() {
	p := c.profiles.Load(c.ctx, c.deviceID)
	v := profile.Validate(p)
	if !v.Valid {
		c.appendAssistant(domain.ChatEntry{
			Text:        missingProfilePrefix + "\n" + v.Message,
			MessageType: domain.MessageTypeWarning,
		})
		return
	}

	req := gateway.ChatRequest{
		Message:            profile.PersonalizedQuery(p),
		UserProfile:        &p,
		PersonalizedSearch: true,
	}
	c.chatInFlight++
	c.call(func(ctx context.Context) {
		resp, err := c.backend.Chat(ctx, req)
		c.resolve(func() {
			c.chatInFlight--
			if err != nil {
				c.logger.Warn("Personalized chat call failed", "error", err)
				c.appendError(gateway.Message(err, chatFailedText))
				return
			}
			c.appendAssistant(domain.ChatEntry{
				Text:            resp.Answer,
				MessageType:     domain.MessageTypePersonalized,
				CitedPolicies:   resp.CitedPolicies,
				Personalized:    true,
				ConfidenceScore: resp.ConfidenceScore,
			})
		})
	})
}

// startRecentLocked fetches policies changed in the last days and records
// the result as a policy-list entry. The previous result is cleared first so
// an old list or error never shows for the new request.
func (c *Controller) startRecentLocked(days int) {
	limit := c.opts.RecentLimit
	c.recent = Recent{Policies: []domain.PolicyRef{}, Days: days}
	c.recentInFlight++
	c.call(func(ctx context.Context) {
		res, err := c.backend.RecentPolicies(ctx, days, limit)
		c.resolve(func() {
			c.recentInFlight--
			if err != nil {
				msg := gateway.Message(err, recentFailedText)
				c.logger.Warn("Recent policies call failed", "error", err, "days", days)
				c.recent = Recent{Policies: []domain.PolicyRef{}, Error: msg, Days: days}
				c.appendError(msg)
				return
			}

			label := StatusLabel(res.Summary.NewPolicies, res.Summary.UpdatedPolicies)
			c.recent = Recent{
				Policies:    append([]domain.PolicyRef{}, res.Policies...),
				StatusLabel: label,
				Message:     res.Summary.Message,
				Days:        days,
			}
			text := fmt.Sprintf("최근 %d일 정책 변경: %s", days, label)
			if n := len(res.Policies); n > 0 {
				text += fmt.Sprintf("\n총 %d개의 정책을 찾았습니다. %s", n, policyListHint)
			}
			c.appendAssistant(domain.ChatEntry{
				Text:          text,
				MessageType:   domain.MessageTypePolicyList,
				CitedPolicies: res.Policies,
			})
		})
	})
}

// OpenPolicy shows the detail of one policy. Only the most recently
// requested policy can populate the view; earlier responses are dropped.
func (c *Controller) OpenPolicy(id string) error {
	id = strings.TrimSpace(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	if id == "" {
		c.inlineError = missingPolicyIDText
		c.publishLocked()
		return ErrMissingPolicyID
	}

	c.inlineError = ""
	c.detailGen++
	gen := c.detailGen
	c.detail = Detail{Phase: DetailLoading, PolicyID: id}
	c.modals.Set(ModalPolicyDetail, true)

	c.call(func(ctx context.Context) {
		p, err := c.backend.PolicyDetail(ctx, id)
		c.resolve(func() {
			if gen != c.detailGen {
				c.logger.Debug("Discarding stale policy detail", "policy_id", id)
				return
			}
			if err != nil {
				c.logger.Warn("Policy detail call failed", "error", err, "policy_id", id)
				c.detail = Detail{
					Phase:    DetailError,
					PolicyID: id,
					Error:    gateway.Message(err, fmt.Sprintf("ID %s 정책 상세 정보를 불러오는데 실패했습니다.", id)),
				}
				return
			}
			c.detail = Detail{Phase: DetailLoaded, PolicyID: id, Policy: p}
		})
	})
	c.publishLocked()
	return nil
}

// ClosePolicyDetail hides the detail view and forgets its content.
func (c *Controller) ClosePolicyDetail() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	c.closePolicyDetailLocked()
	c.publishLocked()
	return nil
}

func (c *Controller) closePolicyDetailLocked() {
	c.modals.Set(ModalPolicyDetail, false)
	c.detailGen++
	c.detail = Detail{Phase: DetailIdle}
}

// SyncPolicies asks the backend to refresh its data. It reports false when
// a sync is already running, in which case nothing happens.
func (c *Controller) SyncPolicies() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return false, err
	}
	if c.syncing {
		return false, nil
	}

	c.syncing = true
	c.call(func(ctx context.Context) {
		res, err := c.backend.Sync(ctx)
		c.resolve(func() {
			c.syncing = false
			if err != nil {
				c.logger.Warn("Sync call failed", "error", err)
				c.notifyLocked(gateway.Message(err, syncFailedText), ToneFailure)
				return
			}
			msg := res.Message
			if msg == "" {
				msg = syncDoneText
			}
			c.notifyLocked(msg, ToneSuccess)
			c.scheduleRefreshLocked()
		})
	})
	c.publishLocked()
	return true, nil
}

// scheduleRefreshLocked reloads recent policies with the narrow post-sync
// window after a short delay.
func (c *Controller) scheduleRefreshLocked() {
	if c.refreshTimer != nil && c.refreshTimer.Stop() {
		c.wg.Done()
	}
	days := c.opts.SyncRefreshDays
	c.wg.Add(1)
	c.refreshTimer = time.AfterFunc(c.opts.SyncRefreshDelay, func() {
		defer c.wg.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.startRecentLocked(days)
		c.publishLocked()
	})
}

// Login authenticates against the backend. On success the user is kept in
// memory only and the login modal closes.
func (c *Controller) Login(username, password string) error {
	username = strings.TrimSpace(username)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	if c.loginPending {
		return ErrLoginPending
	}
	if username == "" || password == "" {
		c.loginError = credentialsText
		c.publishLocked()
		return ErrMissingCredentials
	}

	c.loginPending = true
	c.loginError = ""
	c.call(func(ctx context.Context) {
		res, err := c.backend.Login(ctx, username, password)
		c.resolve(func() {
			c.loginPending = false
			if err != nil {
				c.logger.Info("Login failed", "username", username, "error", err)
				c.loginError = gateway.Message(err, loginFailedText)
				return
			}
			user := res.User
			c.currentUser = &user
			msg := res.Message
			if msg == "" {
				msg = loginDoneText
			}
			c.notifyLocked(msg, ToneSuccess)
			c.modals.Set(ModalLogin, false)
			c.logger.Info("User logged in", "user_id", user.ID.String())
		})
	})
	c.publishLocked()
	return nil
}

// Signup registers an account. On success the signup modal is replaced
// by the login modal.
func (c *Controller) Signup(username, password, email string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	if c.signupPending {
		return ErrSignupPending
	}
	if username == "" || password == "" {
		c.signupError = credentialsText
		c.publishLocked()
		return ErrMissingCredentials
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		c.signupError = passwordTooShortText
		c.publishLocked()
		return ErrPasswordTooShort
	}

	c.signupPending = true
	c.signupError = ""
	c.call(func(ctx context.Context) {
		msg, err := c.backend.Signup(ctx, username, password, email)
		c.resolve(func() {
			c.signupPending = false
			if err != nil {
				c.logger.Info("Signup failed", "username", username, "error", err)
				c.signupError = gateway.Message(err, signupFailedText)
				return
			}
			if msg == "" {
				msg = signupDoneText
			}
			c.notifyLocked(msg, ToneSuccess)
			c.modals.Set(ModalSignup, false)
			c.modals.Set(ModalLogin, true)
		})
	})
	c.publishLocked()
	return nil
}

// Logout forgets the current user.
func (c *Controller) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	c.currentUser = nil
	c.notifyLocked(logoutDoneText, ToneSuccess)
	c.publishLocked()
	return nil
}

// AccountButton opens the profile editor for a logged-in user and the
// login modal otherwise.
func (c *Controller) AccountButton() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	if c.currentUser != nil {
		c.modals.Set(ModalProfileEditor, true)
	} else {
		c.modals.Set(ModalLogin, true)
	}
	c.publishLocked()
	return nil
}

// OpenModal shows m. The policy detail view can only be opened through
// OpenPolicy.
func (c *Controller) OpenModal(m Modal) error {
	if m == ModalPolicyDetail {
		return ErrMissingPolicyID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	if m == ModalLogin {
		c.loginError = ""
	}
	if m == ModalSignup {
		c.signupError = ""
	}
	c.modals.Set(m, true)
	c.publishLocked()
	return nil
}

// CloseModal hides m.
func (c *Controller) CloseModal(m Modal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(); err != nil {
		return err
	}
	if m == ModalPolicyDetail {
		c.closePolicyDetailLocked()
	} else {
		c.modals.Set(m, false)
	}
	c.publishLocked()
	return nil
}

// Profile returns the device's stored profile with editor defaults applied.
func (c *Controller) Profile(ctx context.Context) domain.UserProfile {
	return c.profiles.Load(ctx, c.deviceID).ForEditing()
}

// SaveProfile persists p for the device, closes the profile editor and
// shows a notification. Validation errors leave the editor open.
func (c *Controller) SaveProfile(ctx context.Context, p domain.UserProfile) (domain.UserProfile, error) {
	c.mu.Lock()
	if err := c.beginLocked(); err != nil {
		c.mu.Unlock()
		return domain.UserProfile{}, err
	}
	c.mu.Unlock()

	saved, err := c.profiles.Save(ctx, c.deviceID, p)
	if err != nil {
		return domain.UserProfile{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.modals.Set(ModalProfileEditor, false)
		c.notifyLocked(profileSavedText, ToneSuccess)
		c.publishLocked()
	}
	return saved, nil
}
