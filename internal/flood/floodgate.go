// Package flood rate-limits how many messages one sender may push through
// intake per chat.
package flood

import (
	"context"
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window the limit applies to
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle senders are forgotten
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a sender may be quiet before being forgotten
	idleTimeout = 10 * time.Minute
)

// Floodgate is a per-chat, per-sender sliding window limiter
type Floodgate struct {
	limitPerMinute int
	now            func() time.Time

	mutex   sync.Mutex
	entries map[string]*senderEntry // Key: "chatID:senderID"
	blocked uint64
}

type senderEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// New creates a Floodgate allowing limitPerMinute messages per sender and chat
func New(limitPerMinute int) *Floodgate {
	return &Floodgate{
		limitPerMinute: limitPerMinute,
		now:            time.Now,
		entries:        make(map[string]*senderEntry),
	}
}

// SetClock replaces the time source
func (fg *Floodgate) SetClock(now func() time.Time) {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()
	fg.now = now
}

// Allow records a message and reports whether it is within the limit.
// Rejected messages do not count toward the window.
func (fg *Floodgate) Allow(chatID, senderID string) bool {
	key := chatID + ":" + senderID

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	now := fg.now()
	entry, exists := fg.entries[key]
	if !exists {
		entry = &senderEntry{
			timestamps: make([]time.Time, 0, fg.limitPerMinute+1),
		}
		fg.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-windowDuration)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= fg.limitPerMinute {
		fg.blocked++
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

// Run forgets idle senders periodically until ctx is done
func (fg *Floodgate) Run(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.Cleanup()
		case <-ctx.Done():
			return nil
		}
	}
}

// Cleanup removes senders idle for longer than the idle timeout
func (fg *Floodgate) Cleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-idleTimeout)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// Stats returns a snapshot for monitoring
func (fg *Floodgate) Stats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveSenders:  len(fg.entries),
		Blocked:        fg.blocked,
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

// Stats contains floodgate statistics
type Stats struct {
	ActiveSenders  int    `json:"active_senders"`
	Blocked        uint64 `json:"blocked"`
	LimitPerMinute int    `json:"limit_per_minute"`
	WindowSeconds  int    `json:"window_seconds"`
}
