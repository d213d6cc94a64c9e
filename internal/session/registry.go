package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/DonggunSe0/aibbot/internal/transcript"
)

// Registry manages the live controllers, one per device and tab session.
type Registry struct {
	backend  Backend
	profiles ProfileStore
	opts     Options
	convLog  transcript.ConversationLogger

	mu     sync.RWMutex
	active map[string]map[string]*Controller
}

// NewRegistry creates a registry. convLog may be nil.
func NewRegistry(backend Backend, profiles ProfileStore, opts Options, convLog transcript.ConversationLogger) *Registry {
	return &Registry{
		backend:  backend,
		profiles: profiles,
		opts:     opts,
		convLog:  convLog,
		active:   make(map[string]map[string]*Controller),
	}
}

// Get returns the controller for a device/session, creating it on first use.
func (r *Registry) Get(deviceID, sessionID string) *Controller {
	if c := r.Lookup(deviceID, sessionID); c != nil {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[deviceID]; !exists {
		r.active[deviceID] = make(map[string]*Controller)
	}
	if c, exists := r.active[deviceID][sessionID]; exists {
		return c
	}

	opts := r.opts
	if r.convLog != nil {
		opts.Recorder = transcript.RecorderFor(r.convLog, deviceID, sessionID)
	}
	c := New(deviceID, sessionID, r.backend, r.profiles, opts)
	r.active[deviceID][sessionID] = c
	slog.Info("Session registered", "device_id", deviceID, "session_id", sessionID)
	return c
}

// Lookup returns the controller for a device/session, or nil.
func (r *Registry) Lookup(deviceID, sessionID string) *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sessions, ok := r.active[deviceID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Remove closes and forgets one controller.
func (r *Registry) Remove(deviceID, sessionID string) {
	r.mu.Lock()
	c := r.detachLocked(deviceID, sessionID)
	r.mu.Unlock()

	if c != nil {
		c.Close()
		slog.Info("Session unregistered", "device_id", deviceID, "session_id", sessionID)
	}
}

// EvictIdle closes every controller inactive for longer than ttl and
// returns how many were evicted.
func (r *Registry) EvictIdle(now time.Time, ttl time.Duration) int {
	var expired []*Controller

	r.mu.Lock()
	for deviceID, sessions := range r.active {
		for sessionID, c := range sessions {
			if now.Sub(c.LastActive()) > ttl {
				expired = append(expired, r.detachLocked(deviceID, sessionID))
			}
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
		slog.Info("Idle session evicted", "device_id", c.DeviceID(), "session_id", c.SessionID())
	}
	return len(expired)
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sessions := range r.active {
		n += len(sessions)
	}
	return n
}

// CloseAll closes every controller.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var all []*Controller
	for _, sessions := range r.active {
		for _, c := range sessions {
			all = append(all, c)
		}
	}
	r.active = make(map[string]map[string]*Controller)
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

func (r *Registry) detachLocked(deviceID, sessionID string) *Controller {
	sessions, ok := r.active[deviceID]
	if !ok {
		return nil
	}
	c, ok := sessions[sessionID]
	if !ok {
		return nil
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.active, deviceID)
	}
	return c
}
