// Package session implements the conversation session controller: the
// per-tab state machine that turns user actions into transcript entries,
// backend calls and modal changes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
	"github.com/DonggunSe0/aibbot/internal/gateway"
	"github.com/DonggunSe0/aibbot/internal/profile"
	"github.com/DonggunSe0/aibbot/internal/transcript"
)

var (
	ErrClosed             = errors.New("session closed")
	ErrUnknownMenu        = errors.New("unknown menu")
	ErrUnknownModal       = errors.New("unknown modal")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrChatPending        = errors.New("a chat response is still pending")
	ErrMissingPolicyID    = errors.New("policy id is required")
	ErrLoginPending       = errors.New("login already in progress")
	ErrSignupPending      = errors.New("signup already in progress")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrPasswordTooShort   = errors.New("password is too short")
)

// Backend is the subset of the gateway the controller calls.
type Backend interface {
	Chat(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error)
	RecentPolicies(ctx context.Context, days, limit int) (*gateway.RecentPolicies, error)
	PolicyDetail(ctx context.Context, id string) (*domain.PolicyRef, error)
	Signup(ctx context.Context, username, password, email string) (string, error)
	Login(ctx context.Context, username, password string) (*gateway.LoginResult, error)
	Sync(ctx context.Context) (*gateway.SyncResult, error)
}

// ProfileStore is the profile persistence the controller reads and writes.
type ProfileStore interface {
	Load(ctx context.Context, deviceID string) domain.UserProfile
	Save(ctx context.Context, deviceID string, p domain.UserProfile) (domain.UserProfile, error)
	Subscribe(deviceID string, fn profile.Listener) func()
}

// Options tune a controller. Zero values fall back to DefaultOptions.
type Options struct {
	NotificationTTL  time.Duration
	SyncRefreshDelay time.Duration
	RecentDays       int
	RecentLimit      int
	SyncRefreshDays  int
	Recorder         transcript.Recorder
	Logger           *slog.Logger
}

// DefaultOptions returns the standard controller settings.
func DefaultOptions() Options {
	return Options{
		NotificationTTL:  3 * time.Second,
		SyncRefreshDelay: time.Second,
		RecentDays:       7,
		RecentLimit:      15,
		SyncRefreshDays:  1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NotificationTTL <= 0 {
		o.NotificationTTL = d.NotificationTTL
	}
	if o.SyncRefreshDelay < 0 {
		o.SyncRefreshDelay = d.SyncRefreshDelay
	}
	if o.RecentDays <= 0 {
		o.RecentDays = d.RecentDays
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = d.RecentLimit
	}
	if o.SyncRefreshDays <= 0 {
		o.SyncRefreshDays = d.SyncRefreshDays
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Controller owns the state of one conversation session. All state changes
// happen under mu; every backend call runs on its own goroutine and
// re-enters under mu when it resolves.
type Controller struct {
	deviceID  string
	sessionID string
	backend   Backend
	profiles  ProfileStore
	opts      Options
	logger    *slog.Logger
	log       *transcript.Transcript

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribeProfile func()

	mu             sync.Mutex
	closed         bool
	version        uint64
	lastActive     time.Time
	modals         Modals
	chatInFlight   int
	recentInFlight int
	syncing        bool
	loginPending   bool
	signupPending  bool
	detailGen      uint64
	detail         Detail
	recent         Recent
	notification   *Notification
	notifyGen      uint64
	notifyTimer    *time.Timer
	refreshTimer   *time.Timer
	currentUser    *domain.User
	profileSummary string
	inlineError    string
	loginError     string
	signupError    string
	nextSub        uint64
	subs           map[uint64]chan Snapshot
}

// New creates a controller for one device/session pair and subscribes it
// to the device's profile changes.
func New(deviceID, sessionID string, backend Backend, profiles ProfileStore, opts Options) *Controller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		deviceID:   deviceID,
		sessionID:  sessionID,
		backend:    backend,
		profiles:   profiles,
		opts:       opts,
		logger:     opts.Logger.With("device_id", deviceID, "session_id", sessionID),
		log:        transcript.New(opts.Recorder),
		ctx:        ctx,
		cancel:     cancel,
		lastActive: time.Now(),
		detail:     Detail{Phase: DetailIdle},
		recent:     Recent{Policies: []domain.PolicyRef{}},
		subs:       make(map[uint64]chan Snapshot),
	}
	c.profileSummary = profile.Summarize(profiles.Load(ctx, deviceID))
	c.unsubscribeProfile = profiles.Subscribe(deviceID, c.onProfileChanged)
	return c
}

// DeviceID returns the device the session belongs to.
func (c *Controller) DeviceID() string { return c.deviceID }

// SessionID returns the tab session id.
func (c *Controller) SessionID() string { return c.sessionID }

// LastActive returns the time of the last dispatched action.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Touch marks the session active without dispatching anything, so a tab
// that only watches its stream is not evicted as idle.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.lastActive = time.Now()
	}
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that receives the latest snapshot after every
// state change. Slow readers only ever see the newest snapshot. The channel
// is closed when the subscription is cancelled or the controller closes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.nextSub++
	id := c.nextSub
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Wait blocks until every issued backend call, and any refresh scheduled
// by a sync, has resolved.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close stops the controller. Calls still in flight are aborted and their
// results dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.notifyTimer != nil {
		c.notifyTimer.Stop()
	}
	if c.refreshTimer != nil && c.refreshTimer.Stop() {
		c.wg.Done()
	}
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.unsubscribeProfile()
	c.cancel()
	c.wg.Wait()
	c.logger.Info("Session closed")
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		DeviceID:       c.deviceID,
		SessionID:      c.sessionID,
		Version:        c.version,
		Transcript:     transcript.DisplayAll(c.log.Entries()),
		Modals:         c.modals,
		Awaiting:       c.awaitingLocked(),
		Detail:         c.detail,
		ProfileSummary: c.profileSummary,
		InlineError:    c.inlineError,
		LoginError:     c.loginError,
		SignupError:    c.signupError,
	}
	if c.detail.Policy != nil {
		p := *c.detail.Policy
		snap.Detail.Policy = &p
	}
	snap.Recent = c.recent
	snap.Recent.Policies = append([]domain.PolicyRef{}, c.recent.Policies...)
	if c.notification != nil {
		n := *c.notification
		snap.Notification = &n
	}
	if c.currentUser != nil {
		u := *c.currentUser
		snap.CurrentUser = &u
	}
	return snap
}

func (c *Controller) awaitingLocked() Awaiting {
	return Awaiting{
		Chat:           c.chatInFlight > 0,
		RecentPolicies: c.recentInFlight > 0,
		PolicyDetail:   c.detail.Phase == DetailLoading,
		Sync:           c.syncing,
		Login:          c.loginPending,
		Signup:         c.signupPending,
	}
}

// publishLocked bumps the version and hands the new snapshot to every
// subscriber, replacing any snapshot they have not read yet.
func (c *Controller) publishLocked() {
	c.version++
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// beginLocked marks activity and rejects actions on a closed controller.
func (c *Controller) beginLocked() error {
	if c.closed {
		return ErrClosed
	}
	c.lastActive = time.Now()
	return nil
}

// call runs fn on its own goroutine. It must be called with mu held.
func (c *Controller) call(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// resolve re-enters the controller after a backend call. fn runs under mu
// unless the controller has been closed meanwhile.
func (c *Controller) resolve(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn()
	c.publishLocked()
}

func (c *Controller) appendUser(text string) {
	c.log.Append(domain.ChatEntry{Sender: domain.SenderUser, Text: text})
}

func (c *Controller) appendAssistant(entry domain.ChatEntry) {
	entry.Sender = domain.SenderAssistant
	c.log.Append(entry)
}

func (c *Controller) appendError(text string) {
	c.appendAssistant(domain.ChatEntry{Text: text, MessageType: domain.MessageTypeError})
}

// notifyLocked fills the notification slot, replacing whatever was shown,
// and schedules it to clear after the configured TTL.
func (c *Controller) notifyLocked(text string, tone Tone) {
	c.notifyGen++
	gen := c.notifyGen
	c.notification = &Notification{
		Text:      text,
		Tone:      tone,
		ExpiresAt: time.Now().Add(c.opts.NotificationTTL),
	}
	if c.notifyTimer != nil {
		c.notifyTimer.Stop()
	}
	c.notifyTimer = time.AfterFunc(c.opts.NotificationTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.notifyGen != gen {
			return
		}
		c.notification = nil
		c.publishLocked()
	})
}

func (c *Controller) onProfileChanged(p domain.UserProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.profileSummary = profile.Summarize(p)
	c.publishLocked()
}
