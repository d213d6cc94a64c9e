package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

// LogConfig controls the NDJSON conversation log.
type LogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// LogEvent is one line of the conversation log.
type LogEvent struct {
	Timestamp   string         `json:"ts"`
	DeviceID    string         `json:"device_id"`
	SessionID   string         `json:"session_id"`
	EntryID     string         `json:"entry_id,omitempty"`
	Direction   string         `json:"direction"`
	EventType   string         `json:"event_type"`
	MessageType string         `json:"message_type,omitempty"`
	ContentRaw  string         `json:"content_raw"`
	Content     string         `json:"content"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// ConversationLogger writes conversation events somewhere durable.
type ConversationLogger interface {
	Log(event LogEvent)
	Close() error
}

// NewConversationLogger returns a file-backed logger, or a no-op logger
// when logging is disabled.
func NewConversationLogger(cfg LogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create conversation log directory: %w", err)
	}

	l := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan LogEvent, cfg.QueueSize),
		files:  make(map[string]*os.File),
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global conversation log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// RecorderFor binds a logger to one device/session pair so it can observe
// a transcript.
func RecorderFor(l ConversationLogger, deviceID, sessionID string) Recorder {
	if l == nil {
		return nil
	}
	return RecorderFunc(func(entry domain.ChatEntry) {
		direction := "inbound"
		eventType := "chat_assistant_message"
		if entry.IsUser() {
			direction = "outbound"
			eventType = "chat_user_message"
		}
		meta := map[string]any{}
		if len(entry.CitedPolicies) > 0 {
			ids := make([]string, 0, len(entry.CitedPolicies))
			for _, p := range entry.CitedPolicies {
				ids = append(ids, p.ID.String())
			}
			meta["cited_policy_ids"] = ids
		}
		if entry.Personalized {
			meta["personalized"] = true
		}
		if entry.ConfidenceScore != nil {
			meta["confidence_score"] = *entry.ConfidenceScore
		}
		if len(meta) == 0 {
			meta = nil
		}
		l.Log(LogEvent{
			Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
			DeviceID:    deviceID,
			SessionID:   sessionID,
			EntryID:     entry.ID,
			Direction:   direction,
			EventType:   eventType,
			MessageType: string(entry.MessageType),
			ContentRaw:  entry.Text,
			Meta:        meta,
		})
	})
}

type noopLogger struct{}

func (noopLogger) Log(LogEvent) {}
func (noopLogger) Close() error { return nil }

type fileLogger struct {
	cfg    LogConfig
	logger *slog.Logger
	queue  chan LogEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// Owned by the run goroutine.
	files  map[string]*os.File
	global *os.File
}

// Log enqueues an event. Events are dropped when the queue is full.
func (l *fileLogger) Log(event LogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"device_id", event.DeviceID,
			"session_id", event.SessionID,
			"event_type", event.EventType,
		)
	}
}

// Close flushes queued events and closes all files.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()

	var firstErr error
	for key, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close conversation log %s: %w", key, err)
		}
	}
	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close global conversation log: %w", err)
		}
	}
	return firstErr
}

func (l *fileLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		f, err := l.sessionFile(event.DeviceID, event.SessionID)
		if err != nil {
			l.logger.Warn("failed to open conversation log", "error", err, "device_id", event.DeviceID)
		} else if _, err := f.Write(line); err != nil {
			l.logger.Warn("failed to write conversation log", "error", err, "device_id", event.DeviceID)
		}

		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileLogger) sessionFile(deviceID, sessionID string) (*os.File, error) {
	dir := filepath.Join(l.cfg.Dir, safePathComponent(deviceID))
	path := filepath.Join(dir, safePathComponent(sessionID)+".ndjson")
	if f, ok := l.files[path]; ok {
		return f, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create device log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	l.files[path] = f
	return f, nil
}

var (
	ansiPattern       = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*(\x07|\x1b\\)`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
	unsafePathPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// cleanForReadability strips terminal escapes and control characters and
// collapses runs of blank lines.
func cleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func safePathComponent(s string) string {
	s = unsafePathPattern.ReplaceAllString(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}
