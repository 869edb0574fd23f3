package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultDayWindow  = 24 * time.Hour
	DefaultHourWindow = time.Hour
)

// PostRateLimiter bounds proactive publishing with a minimum spacing and
// rolling day and hour caps. A zero cap or interval disables that check.
type PostRateLimiter struct {
	MaxPerDay   int
	MaxPerHour  int
	MinInterval time.Duration
	DayWindow   time.Duration
	HourWindow  time.Duration

	stamps []time.Time
	last   *time.Time
}

func NewPostRateLimiter(maxPerDay, maxPerHour int, minInterval time.Duration) *PostRateLimiter {
	return &PostRateLimiter{
		MaxPerDay:   maxPerDay,
		MaxPerHour:  maxPerHour,
		MinInterval: minInterval,
		DayWindow:   DefaultDayWindow,
		HourWindow:  DefaultHourWindow,
	}
}

// Allow checks min interval, then the day cap, then the hour cap.
func (l *PostRateLimiter) Allow(now time.Time) bool {
	l.prune(now)

	if l.MinInterval > 0 && l.last != nil && now.Sub(*l.last) < l.MinInterval {
		return false
	}
	if l.MaxPerDay > 0 && len(l.stamps) >= l.MaxPerDay {
		return false
	}
	if l.MaxPerHour > 0 && l.countSince(now, l.HourWindow) >= l.MaxPerHour {
		return false
	}
	return true
}

func (l *PostRateLimiter) Record(now time.Time) {
	l.prune(now)
	l.stamps = append(l.stamps, now)
	l.last = &now
}

// Count returns the number of retained publish timestamps.
func (l *PostRateLimiter) Count(now time.Time) int {
	l.prune(now)
	return len(l.stamps)
}

func (l *PostRateLimiter) prune(now time.Time) {
	threshold := now.Add(-max(0, l.DayWindow))
	drop := 0
	for drop < len(l.stamps) && l.stamps[drop].Before(threshold) {
		drop++
	}
	if drop > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[drop:]...)
	}
}

// countSince counts timestamps inside window; a zero window counts all
// retained history.
func (l *PostRateLimiter) countSince(now time.Time, window time.Duration) int {
	if window <= 0 {
		return len(l.stamps)
	}
	start := now.Add(-window)
	count := 0
	for _, ts := range l.stamps {
		if !ts.Before(start) {
			count++
		}
	}
	return count
}

// ContentDedup rejects a title/body pair published again inside Window.
type ContentDedup struct {
	Window time.Duration
	seen   map[string]time.Time
}

func NewContentDedup(window time.Duration) *ContentDedup {
	return &ContentDedup{Window: window, seen: make(map[string]time.Time)}
}

func ContentHash(title, body string) string {
	sum := sha256.Sum256([]byte(title + "\n" + body))
	return hex.EncodeToString(sum[:])
}

// Check returns the content hash and whether it was seen inside the window.
// With a zero window nothing is ever a duplicate.
func (d *ContentDedup) Check(title, body string, now time.Time) (string, bool) {
	hash := ContentHash(title, body)
	if d.Window <= 0 {
		return hash, false
	}

	for h, ts := range d.seen {
		if now.Sub(ts) > d.Window {
			delete(d.seen, h)
		}
	}
	ts, ok := d.seen[hash]
	return hash, ok && now.Sub(ts) < d.Window
}

func (d *ContentDedup) Record(hash string, now time.Time) {
	d.seen[hash] = now
}

func (d *ContentDedup) Len() int {
	return len(d.seen)
}

// Publisher serializes the decide-and-publish section of proactive posting so
// a scheduled and a manual run never interleave their limiter checks.
type Publisher struct {
	gate    *semaphore.Weighted
	Limiter *PostRateLimiter
	Dedup   *ContentDedup
}

func NewPublisher(limiter *PostRateLimiter, dedup *ContentDedup) *Publisher {
	return &Publisher{
		gate:    semaphore.NewWeighted(1),
		Limiter: limiter,
		Dedup:   dedup,
	}
}

// Exclusive runs fn while holding the post gate. Limiter and Dedup must only
// be touched from inside fn.
func (p *Publisher) Exclusive(ctx context.Context, fn func() error) error {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire post gate: %w", err)
	}
	defer p.gate.Release(1)

	return fn()
}
