// Package notify delivers transient user-visible notifications.
package notify

import (
	"log"
	"sync"
	"time"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notification is a single user-visible message.
type Notification struct {
	Seq     uint64    `json:"seq"`
	Level   Level     `json:"level"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier accepts notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a LogNotifier. Nil logger uses log.Default().
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n.
func (l *LogNotifier) Notify(n Notification) {
	l.logger.Printf("[%s] %s: %s", n.Source, n.Level, n.Message)
}

// DefaultFeedSize is the capacity used when NewFeed gets a non-positive size.
const DefaultFeedSize = 100

// Feed keeps the most recent notifications in a ring buffer.
type Feed struct {
	mu    sync.Mutex
	buf   []Notification
	next  int
	count int
	seq   uint64
	now   func() time.Time
}

// NewFeed creates a feed holding up to size notifications.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{
		buf: make([]Notification, size),
		now: time.Now,
	}
}

// Notify stores n, evicting the oldest entry when full. Seq and At are assigned here.
func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	n.Seq = f.seq
	if n.At.IsZero() {
		n.At = f.now().UTC()
	}

	f.buf[f.next] = n
	f.next = (f.next + 1) % len(f.buf)
	if f.count < len(f.buf) {
		f.count++
	}
}

// Recent returns up to limit notifications, newest first. limit <= 0 returns all.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	if limit <= 0 || limit > f.count {
		limit = f.count
	}

	out := make([]Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.buf)) % len(f.buf)
		out = append(out, f.buf[idx])
	}
	return out
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify forwards n to each notifier in order.
func (m Multi) Notify(n Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(n)
		}
	}
}

// Discard drops every notification.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(Notification) {}
