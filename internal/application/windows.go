package application

import "time"

// DedupRecord remembers when an identifier was last acted on. It is not safe
// for concurrent use; the owner serializes access.
type DedupRecord struct {
	window time.Duration
	seen   map[int64]time.Time
}

func NewDedupRecord(window time.Duration) *DedupRecord {
	return &DedupRecord{window: window, seen: make(map[int64]time.Time)}
}

// Fresh reports whether id was recorded less than window ago. Expired entries
// are pruned on every call; a zero window never suppresses anything.
func (d *DedupRecord) Fresh(id int64, now time.Time) bool {
	d.prune(now)
	if d.window <= 0 {
		return false
	}
	ts, ok := d.seen[id]
	return ok && now.Sub(ts) < d.window
}

func (d *DedupRecord) Record(id int64, now time.Time) {
	d.seen[id] = now
}

func (d *DedupRecord) Len() int {
	return len(d.seen)
}

func (d *DedupRecord) prune(now time.Time) {
	if d.window <= 0 {
		clear(d.seen)
		return
	}
	for id, ts := range d.seen {
		if now.Sub(ts) > d.window {
			delete(d.seen, id)
		}
	}
}

// RateWindow is an ordered list of action timestamps counted over a sliding
// window. Not safe for concurrent use.
type RateWindow struct {
	window time.Duration
	stamps []time.Time
}

func NewRateWindow(window time.Duration) *RateWindow {
	return &RateWindow{window: window}
}

// Count prunes entries older than the window and returns what is left.
func (w *RateWindow) Count(now time.Time) int {
	drop := 0
	for drop < len(w.stamps) && now.Sub(w.stamps[drop]) > w.window {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}
	return len(w.stamps)
}

func (w *RateWindow) Add(now time.Time) {
	w.stamps = append(w.stamps, now)
}
