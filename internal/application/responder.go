package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
)

const (
	threadTextLimit   = 3500
	listingPageSize   = 10
	recentContextSize = 20
	minTitleChars     = 2
	maxTitleChars     = 100
	minBodyChars      = 20
)

type ResponderConfig struct {
	BrowseCategories   []string
	SkipThreadsWindow  time.Duration
	MaxRepliesPerCycle int

	PostingEnabled  bool
	PostProbability float64
	PostCategories  []string
	DryRun          bool
	Sanitize        SanitizeOptions
	MaxContentChars int
	MaxContextChars int
}

type ResponderDeps struct {
	Forum     ports.ForumClient
	Drafter   ports.Drafter
	Journal   ports.Journal
	Session   *Session
	Publisher *Publisher
	Clock     ports.Clock
	Rand      func() float64
	Pick      func(n int) int
	Logger    logging.Logger
}

// ForumResponder turns notifications and schedule ticks into forum activity.
type ForumResponder struct {
	cfg       ResponderConfig
	forum     ports.ForumClient
	drafter   ports.Drafter
	journal   ports.Journal
	session   *Session
	publisher *Publisher
	clock     ports.Clock
	rand      func() float64
	pick      func(n int) int
	logger    logging.Logger
}

var _ ports.Responder = (*ForumResponder)(nil)

func NewResponder(cfg ResponderConfig, deps ResponderDeps) *ForumResponder {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	if deps.Pick == nil {
		deps.Pick = rand.IntN
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Session == nil {
		deps.Session = NewSession(deps.Clock)
	}
	if deps.Publisher == nil {
		deps.Publisher = NewPublisher(NewPostRateLimiter(1, 1, time.Hour), NewContentDedup(24*time.Hour))
	}

	return &ForumResponder{
		cfg:       cfg,
		forum:     deps.Forum,
		drafter:   deps.Drafter,
		journal:   deps.Journal,
		session:   deps.Session,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		rand:      deps.Rand,
		pick:      deps.Pick,
		logger:    deps.Logger,
	}
}

func (r *ForumResponder) HandleNotification(ctx context.Context, event domain.Event) error {
	if event.ThreadID == nil {
		return nil
	}
	threadID := *event.ThreadID
	from := orUnknown(event.FromUsername)

	threadText, err := r.forum.ReadContent(ctx, threadID, 1)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.WithError(err).WithField("thread_id", threadID).Debug("read thread for auto reply")
	}

	draft, err := r.drafter.DraftReply(ctx, ports.ReplyDraftRequest{
		Event:      event,
		ThreadText: truncate(threadText, threadTextLimit),
		Purpose:    "auto_reply_" + string(event.Type),
	})
	if err != nil {
		return fmt.Errorf("draft auto reply: %w", err)
	}

	text := strings.TrimSpace(draft.Text)
	meta := metadata(
		"thread_id", strconv.FormatInt(threadID, 10),
		"reply_id", int64Field(event.ReplyID),
		"from_user", event.FromUsername,
		"notification_type", string(event.Type),
	)
	if !draft.ShouldRespond || text == "" {
		r.record(ctx, domain.JournalAutoReply,
			fmt.Sprintf("chose not to answer @%s (%s, thread %d)", from, event.Type, threadID), meta)
		return nil
	}

	where := "thread"
	if event.ReplyID != nil {
		where = "sub-thread"
	}

	target := domain.ReplyTarget{ThreadID: threadID, ReplyID: event.ReplyID}
	if _, err := r.forum.PublishReply(ctx, target, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.session.RecordError(err.Error())
		r.record(ctx, domain.JournalAutoReply,
			fmt.Sprintf("failed to answer @%s in %s %q (%d): %v", from, where, event.ThreadTitle, threadID, err), meta)
		return nil
	}

	r.record(ctx, domain.JournalReplied,
		fmt.Sprintf("answered @%s in %s %q (%d): %s", from, where, event.ThreadTitle, threadID, truncate(text, 60)), meta)
	return nil
}

func (r *ForumResponder) RunBrowseCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filter := domain.ListFilter{Page: 1, PageSize: listingPageSize}
	if n := len(r.cfg.BrowseCategories); n > 0 {
		filter.Category = r.cfg.BrowseCategories[r.pick(n)]
	}

	listing, err := r.listing(ctx, filter)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.session.RecordError(err.Error())
		return nil
	}
	if strings.TrimSpace(listing) == "" {
		return nil
	}

	var skip []int64
	if r.cfg.SkipThreadsWindow > 0 && r.journal != nil {
		skip, err = r.journal.ThreadIDsSince(ctx, r.clock.Now().Add(-r.cfg.SkipThreadsWindow))
		if err != nil {
			r.logger.WithError(err).Warn("load recently joined threads")
		}
	}

	choice, err := r.drafter.ChooseThread(ctx, ports.BrowseRequest{
		Listing:       truncate(listing, threadTextLimit),
		SkipThreadIDs: skip,
	})
	if err != nil {
		return fmt.Errorf("choose thread: %w", err)
	}

	category := metadata("category", filter.Category)
	if choice.Action != ports.BrowseActionReply {
		r.diary(ctx, choice.Diary)
		r.record(ctx, domain.JournalBrowsed, "browsed the forum without replying", category)
		return nil
	}
	if choice.ThreadID == nil {
		return nil
	}
	threadID := *choice.ThreadID
	meta := metadata("thread_id", strconv.FormatInt(threadID, 10), "category", filter.Category)

	if slices.Contains(skip, threadID) {
		r.diary(ctx, choice.Diary)
		r.record(ctx, domain.JournalBrowsed,
			fmt.Sprintf("skipped thread %d, joined it recently", threadID), meta)
		return nil
	}
	if r.cfg.MaxRepliesPerCycle <= 0 {
		return nil
	}

	threadText, err := r.forum.ReadContent(ctx, threadID, 1)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.session.RecordError(err.Error())
		r.diary(ctx, choice.Diary)
		r.record(ctx, domain.JournalBrowsed,
			fmt.Sprintf("opened thread %d but could not read it: %v", threadID, err), meta)
		return nil
	}

	draft, err := r.drafter.DraftReply(ctx, ports.ReplyDraftRequest{
		Event: domain.Event{
			Type:        domain.EventNewThread,
			ThreadID:    domain.Int64(threadID),
			ThreadTitle: choice.ThreadTitle,
		},
		ThreadText: truncate(threadText, threadTextLimit),
		Purpose:    "browse_reply",
	})
	if err != nil {
		return fmt.Errorf("draft browse reply: %w", err)
	}

	if draft.Diary != "" {
		r.diary(ctx, draft.Diary)
	} else {
		r.diary(ctx, choice.Diary)
	}

	text := strings.TrimSpace(draft.Text)
	if !draft.ShouldRespond || text == "" {
		r.record(ctx, domain.JournalBrowsed,
			fmt.Sprintf("read thread %d and decided not to reply", threadID), meta)
		return nil
	}

	if _, err := r.forum.PublishReply(ctx, domain.ReplyTarget{ThreadID: threadID}, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.session.RecordError(err.Error())
		r.record(ctx, domain.JournalBrowsed,
			fmt.Sprintf("failed to reply to thread %d: %v", threadID, err), meta)
		return nil
	}

	r.record(ctx, domain.JournalReplied,
		fmt.Sprintf("replied to thread %d while browsing: %s", threadID, truncate(text, 60)), meta)
	return nil
}

// listing prefers the structured listing and falls back to the text one,
// normalized through ParseListing when it carries thread ids.
func (r *ForumResponder) listing(ctx context.Context, filter domain.ListFilter) (string, error) {
	refs, err := r.forum.ListContent(ctx, filter)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger.WithError(err).Debug("structured listing failed, falling back to text")
	}
	if len(refs) > 0 {
		return FormatListing(PreferUnpinned(refs)), nil
	}

	text, err := r.forum.BrowseContent(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("browse content: %w", err)
	}
	if refs := ParseListing(text, listingPageSize); len(refs) > 0 {
		return FormatListing(PreferUnpinned(refs)), nil
	}
	r.logger.Debug("text listing carried no thread ids")
	return text, nil
}

func (r *ForumResponder) RunPostCycle(ctx context.Context, force bool) (domain.PostResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PostResult{}, err
	}

	if !r.forum.TokenConfigured(ctx) {
		msg := "forum token not configured, proactive posting disabled"
		r.session.RecordError(msg)
		return domain.Failed(msg), nil
	}
	if !force && !r.cfg.PostingEnabled {
		return domain.Skipped("posting disabled"), nil
	}
	if !force && r.rand() > r.cfg.PostProbability {
		return domain.Skipped(fmt.Sprintf("probability not hit (post_probability=%.2f)", r.cfg.PostProbability)), nil
	}

	var result domain.PostResult
	err := r.publisher.Exclusive(ctx, func() error {
		var err error
		result, err = r.decideAndPublish(ctx)
		return err
	})
	if err != nil {
		return domain.PostResult{}, err
	}
	return result, nil
}

// decideAndPublish runs with the post gate held.
func (r *ForumResponder) decideAndPublish(ctx context.Context) (domain.PostResult, error) {
	now := r.clock.Now()
	limiter, dedup := r.publisher.Limiter, r.publisher.Dedup

	if !limiter.Allow(now) {
		return domain.Skipped("rate limited by posting policy"), nil
	}

	categories := r.postCategories()
	draft, err := r.drafter.DraftThread(ctx, ports.ThreadDraftRequest{
		Categories:    categories,
		RecentContext: r.recentContext(ctx),
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.PostResult{}, ctx.Err()
		}
		r.logger.WithError(err).Warn("draft thread")
		if errors.Is(err, domain.ErrDraftTimeout) {
			return domain.Failed("drafter timed out"), nil
		}
		return domain.Failed(fmt.Sprintf("drafter failed: %v", err)), nil
	}

	if !draft.ShouldPost {
		reason := strings.TrimSpace(draft.Reason)
		if reason == "" {
			reason = "drafter decided not to post"
		}
		return domain.Skipped(reason), nil
	}

	category := strings.TrimSpace(draft.Category)
	if !slices.Contains(categories, category) {
		category = categories[0]
	}

	title := strings.TrimSpace(draft.Title)
	body := strings.TrimSpace(draft.Body)
	if len([]rune(title)) < minTitleChars {
		return withDraft(domain.Skipped("title too short"), title, category), nil
	}
	title = cutRunes(title, maxTitleChars)
	if len([]rune(body)) < minBodyChars {
		return withDraft(domain.Skipped("content too short"), title, category), nil
	}

	title = Sanitize(title, r.cfg.Sanitize)
	body = Sanitize(body, r.cfg.Sanitize)
	if r.cfg.MaxContentChars > 0 {
		body = strings.TrimSpace(cutRunes(body, r.cfg.MaxContentChars))
	}

	hash, duplicate := dedup.Check(title, body, now)
	if duplicate {
		return withDraft(domain.Skipped("duplicate content in dedupe window"), title, category), nil
	}

	meta := metadata("category", category, "title", title)
	if r.cfg.DryRun {
		dedup.Record(hash, now)
		limiter.Record(now)
		meta["dry_run"] = "true"
		r.record(ctx, domain.JournalCreated,
			fmt.Sprintf("(dry run) planned thread %q in %s, not published", title, category), meta)

		result := withDraft(domain.PostResult{Status: domain.PostStatusPosted, Reason: "dry_run: generated but not published"}, title, category)
		result.DryRun = true
		return result, nil
	}

	published, err := r.forum.PublishThread(ctx, title, body, category)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PostResult{}, ctx.Err()
		}
		r.session.RecordError(err.Error())
		r.record(ctx, domain.JournalCreated, fmt.Sprintf("failed to publish thread %q: %v", title, err), meta)
		return withDraft(domain.Failed(fmt.Sprintf("publish thread failed: %v", err)), title, category), nil
	}

	dedup.Record(hash, now)
	limiter.Record(now)
	meta["thread_id"] = int64Field(published.ID)
	r.record(ctx, domain.JournalCreated,
		fmt.Sprintf("published thread %q (%s)", title, orUnknown(int64Field(published.ID))), meta)

	result := withDraft(domain.PostResult{Status: domain.PostStatusPosted, Reason: "published"}, title, category)
	result.ContentID = published.ID
	return result, nil
}

func (r *ForumResponder) postCategories() []string {
	var out []string
	for _, c := range r.cfg.PostCategories {
		if domain.ValidCategory(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return slices.Clone(domain.Categories)
	}
	return out
}

// recentContext summarizes the latest journal entries for the thread drafter,
// masked the same way outgoing text is.
func (r *ForumResponder) recentContext(ctx context.Context) string {
	if r.journal == nil {
		return ""
	}
	entries, err := r.journal.Recent(ctx, "", recentContextSize)
	if err != nil {
		r.logger.WithError(err).Warn("load recent journal entries")
		return ""
	}

	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		fmt.Fprintf(&b, "[%s] %s: %s\n", entry.Timestamp.Format(time.DateTime), entry.Kind, entry.Content)
	}

	text := Sanitize(b.String(), SanitizeOptions{})
	if r.cfg.MaxContextChars > 0 {
		text = truncate(text, r.cfg.MaxContextChars)
	}
	return text
}

func (r *ForumResponder) diary(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r.record(ctx, domain.JournalDiary, text, nil)
}

func (r *ForumResponder) record(ctx context.Context, kind domain.JournalKind, content string, meta map[string]string) {
	if r.journal == nil {
		return
	}
	entry := domain.JournalEntry{Kind: kind, Content: content, Timestamp: r.clock.Now(), Metadata: meta}
	if err := r.journal.Append(ctx, entry); err != nil {
		r.logger.WithError(err).WithField("kind", kind).Warn("append journal entry")
	}
}

func withDraft(result domain.PostResult, title, category string) domain.PostResult {
	result.Title = title
	result.Category = category
	return result
}

func cutRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
