package application

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
)

const autoReplyWindow = 60 * time.Second

// Gate outcomes, also used as metric labels.
const (
	OutcomeDispatched  = "dispatched"
	OutcomeDisabled    = "disabled"
	OutcomeTypeFilter  = "type_filtered"
	OutcomeSelf        = "self"
	OutcomeDuplicate   = "duplicate"
	OutcomeRateLimited = "rate_limited"
	OutcomeProbability = "probability"
	OutcomeSpawnFailed = "spawn_failed"
)

type RouterConfig struct {
	AutoReply    bool
	ReplyTypes   []string
	MaxPerMinute int
	Probability  float64
	DedupeWindow time.Duration
}

type RouterDeps struct {
	Session   *Session
	Journal   ports.Journal
	Responder ports.Responder
	Spawner   ports.Spawner
	Clock     ports.Clock
	Rand      func() float64
	Logger    logging.Logger
	Metrics   ports.Metrics
}

// Router decides per inbound event whether the agent answers on its own.
type Router struct {
	cfg     RouterConfig
	allowed map[domain.EventType]struct{}

	session   *Session
	journal   ports.Journal
	responder ports.Responder
	spawner   ports.Spawner
	clock     ports.Clock
	rand      func() float64
	logger    logging.Logger
	metrics   ports.Metrics

	mu    sync.Mutex
	dedup *DedupRecord
	rate  *RateWindow
}

func NewRouter(cfg RouterConfig, deps RouterDeps) *Router {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}

	allowed := make(map[domain.EventType]struct{}, len(cfg.ReplyTypes))
	for _, t := range cfg.ReplyTypes {
		allowed[domain.NormalizeEventType(t)] = struct{}{}
	}

	return &Router{
		cfg:       cfg,
		allowed:   allowed,
		session:   deps.Session,
		journal:   deps.Journal,
		responder: deps.Responder,
		spawner:   deps.Spawner,
		clock:     deps.Clock,
		rand:      deps.Rand,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		dedup:     NewDedupRecord(cfg.DedupeWindow),
		rate:      NewRateWindow(autoReplyWindow),
	}
}

// Handle is the ports.EventHandler fed by the event stream.
func (r *Router) Handle(ctx context.Context, event domain.Event) {
	now := r.clock.Now()
	r.session.RecordEvent(event.Label(), now)

	switch {
	case event.Type == domain.EventConnected:
		if event.UserID != nil {
			r.session.SetSelfID(*event.UserID)
		}
		r.logger.WithFields(logging.Fields{
			"user_id": int64Field(event.UserID),
			"message": event.Message,
		}).Info("event stream connected")
	case event.Type == domain.EventPong:
	case event.Type.IsNotification():
		r.record(ctx, notificationEntry(event, now))
		outcome := r.gate(event, now)
		r.metrics.NotificationGated(outcome)
		r.logger.WithFields(logging.Fields{
			"type":     event.Type,
			"reply_id": int64Field(event.ReplyID),
			"outcome":  outcome,
		}).Debug("notification gated")
	case event.Type == domain.EventFollow:
		r.record(ctx, domain.JournalEntry{
			Kind:      domain.JournalFollowed,
			Content:   fmt.Sprintf("@%s started following you", orUnknown(event.FromUsername)),
			Timestamp: now,
			Metadata:  metadata("from_user", event.FromUsername),
		})
	default:
		r.logger.WithField("type", event.Type).Debug("ignoring unrecognized event")
	}
}

// gate applies the eligibility checks in order and dispatches on success.
func (r *Router) gate(event domain.Event, now time.Time) string {
	if !r.cfg.AutoReply {
		return OutcomeDisabled
	}
	if _, ok := r.allowed[event.Type]; !ok {
		return OutcomeTypeFilter
	}
	if selfID, ok := r.session.SelfID(); ok && event.FromUserID != nil && *event.FromUserID == selfID {
		return OutcomeSelf
	}

	r.mu.Lock()
	if event.ReplyID != nil && r.dedup.Fresh(*event.ReplyID, now) {
		r.mu.Unlock()
		return OutcomeDuplicate
	}
	if r.cfg.MaxPerMinute <= 0 || r.rate.Count(now) >= r.cfg.MaxPerMinute {
		r.mu.Unlock()
		return OutcomeRateLimited
	}
	if r.rand() > r.cfg.Probability {
		r.mu.Unlock()
		return OutcomeProbability
	}
	// Record before dispatch so a near-simultaneous duplicate cannot slip
	// through the dedup and rate checks.
	r.rate.Add(now)
	if event.ReplyID != nil {
		r.dedup.Record(*event.ReplyID, now)
	}
	r.mu.Unlock()

	_, err := r.spawner.Spawn("auto_reply", domain.TaskKindJob, func(ctx context.Context) error {
		return r.responder.HandleNotification(ctx, event)
	})
	if err != nil {
		r.logger.WithError(err).Warn("dispatch auto reply")
		return OutcomeSpawnFailed
	}
	return OutcomeDispatched
}

func (r *Router) record(ctx context.Context, entry domain.JournalEntry) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(ctx, entry); err != nil {
		r.logger.WithError(err).WithField("kind", entry.Kind).Warn("append journal entry")
	}
}

func notificationEntry(event domain.Event, now time.Time) domain.JournalEntry {
	from := orUnknown(event.FromUsername)
	preview := truncate(event.Content, 50)

	entry := domain.JournalEntry{
		Timestamp: now,
		Metadata: metadata(
			"type", string(event.Type),
			"thread_id", int64Field(event.ThreadID),
			"reply_id", int64Field(event.ReplyID),
			"thread_title", event.ThreadTitle,
			"from_user", event.FromUsername,
		),
	}

	switch event.Type {
	case domain.EventMention:
		entry.Kind = domain.JournalMentioned
		entry.Content = fmt.Sprintf("@%s mentioned you in %q: %s", from, event.ThreadTitle, preview)
	case domain.EventNewThread:
		entry.Kind = domain.JournalNewThread
		entry.Content = fmt.Sprintf("new thread %q by %s", event.ThreadTitle, orUnknown(event.Author))
		entry.Metadata = metadata(
			"type", string(event.Type),
			"thread_id", int64Field(event.ThreadID),
			"thread_title", event.ThreadTitle,
			"author", event.Author,
		)
	default:
		entry.Kind = domain.JournalReplied
		entry.Content = fmt.Sprintf("@%s replied to you in %q: %s", from, event.ThreadTitle, preview)
	}

	return entry
}

// metadata builds a map from key/value pairs, skipping empty values.
func metadata(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}

func int64Field(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// truncate cuts s to at most maxChars runes, marking the cut with an ellipsis.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars-1]) + "…"
}
