package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/ports"
	"github.com/stretchr/testify/mock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
	err     error
}

var _ ports.Journal = (*memoryJournal)(nil)

func (j *memoryJournal) Append(_ context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memoryJournal) Recent(_ context.Context, kind domain.JournalKind, limit int) ([]domain.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.JournalEntry
	for i := len(j.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if kind == "" || j.entries[i].Kind == kind {
			out = append(out, j.entries[i])
		}
	}
	return out, nil
}

func (j *memoryJournal) ThreadIDsSince(_ context.Context, since time.Time) ([]int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	seen := map[int64]struct{}{}
	for _, entry := range j.entries {
		if entry.Timestamp.Before(since) {
			continue
		}
		if id, ok := entry.ThreadID(); ok {
			seen[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out, nil
}

func (j *memoryJournal) Len(context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries), nil
}

func (j *memoryJournal) kinds() []domain.JournalKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.JournalKind, 0, len(j.entries))
	for _, entry := range j.entries {
		out = append(out, entry.Kind)
	}
	return out
}

type publishedReply struct {
	Target domain.ReplyTarget
	Text   string
}

type publishedThread struct {
	Title, Body, Category string
}

// fakeForum records publish calls; zero values mean success with no content.
type fakeForum struct {
	mu sync.Mutex

	threadText string
	readErr    error
	refs       []domain.ThreadRef
	listErr    error
	browseText string
	browseErr  error
	publishErr error
	newID      int64
	noToken    bool
	closed     int

	replies []publishedReply
	threads []publishedThread
	filters []domain.ListFilter
}

var _ ports.ForumClient = (*fakeForum)(nil)

func (f *fakeForum) ReadContent(context.Context, int64, int) (string, error) {
	return f.threadText, f.readErr
}

func (f *fakeForum) ListContent(_ context.Context, filter domain.ListFilter) ([]domain.ThreadRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.refs, f.listErr
}

func (f *fakeForum) BrowseContent(context.Context, domain.ListFilter) (string, error) {
	return f.browseText, f.browseErr
}

func (f *fakeForum) PublishReply(_ context.Context, target domain.ReplyTarget, text string) (domain.Published, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return domain.Published{}, f.publishErr
	}
	f.replies = append(f.replies, publishedReply{Target: target, Text: text})
	return domain.Published{}, nil
}

func (f *fakeForum) PublishThread(_ context.Context, title, body, category string) (domain.Published, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return domain.Published{}, f.publishErr
	}
	f.threads = append(f.threads, publishedThread{Title: title, Body: body, Category: category})
	if f.newID == 0 {
		return domain.Published{}, nil
	}
	return domain.Published{ID: domain.Int64(f.newID)}, nil
}

func (f *fakeForum) TokenConfigured(context.Context) bool { return !f.noToken }

func (f *fakeForum) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeForum) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

type mockDrafter struct {
	mock.Mock
}

var _ ports.Drafter = (*mockDrafter)(nil)

func (m *mockDrafter) DraftReply(ctx context.Context, req ports.ReplyDraftRequest) (ports.ReplyDraft, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.ReplyDraft), args.Error(1)
}

func (m *mockDrafter) ChooseThread(ctx context.Context, req ports.BrowseRequest) (ports.BrowseChoice, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.BrowseChoice), args.Error(1)
}

func (m *mockDrafter) DraftThread(ctx context.Context, req ports.ThreadDraftRequest) (ports.ThreadDraft, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.ThreadDraft), args.Error(1)
}

// recordingResponder counts calls; HandleNotification may block on gate.
type recordingResponder struct {
	mu            sync.Mutex
	notifications []domain.Event
	browses       int
	posts         int
	browseErr     error
	browsePanic   bool
	postResult    domain.PostResult
	gate          chan struct{}
}

var _ ports.Responder = (*recordingResponder)(nil)

func (r *recordingResponder) HandleNotification(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	r.notifications = append(r.notifications, event)
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *recordingResponder) RunBrowseCycle(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.browses++
	if r.browsePanic {
		panic("browse exploded")
	}
	return r.browseErr
}

func (r *recordingResponder) RunPostCycle(ctx context.Context, force bool) (domain.PostResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PostResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts++
	if r.postResult.Status == "" {
		return domain.Skipped("posting disabled"), nil
	}
	return r.postResult, nil
}

func (r *recordingResponder) counts() (notifications, browses, posts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications), r.browses, r.posts
}

// syncSpawner runs jobs inline so gate tests stay deterministic.
type syncSpawner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (s *syncSpawner) Spawn(name string, _ domain.TaskKind, fn func(ctx context.Context) error) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	s.runs = append(s.runs, name)
	s.mu.Unlock()
	return name, fn(context.Background())
}

// scriptedStream replays one batch of events per Stream call, then blocks
// until cancelled once the script is exhausted.
type scriptedStream struct {
	mu       sync.Mutex
	batches  [][]domain.Event
	errs     []error
	observer ports.StreamObserver
	calls    int
	closed   int
}

var _ ports.EventStream = (*scriptedStream)(nil)

func (s *scriptedStream) Stream(ctx context.Context, handle ports.EventHandler) (int, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	var batch []domain.Event
	var err error
	if call < len(s.batches) {
		batch = s.batches[call]
	}
	if call < len(s.errs) {
		err = s.errs[call]
	}
	exhausted := call >= len(s.batches) && call >= len(s.errs)
	s.mu.Unlock()

	if exhausted {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	if s.observer != nil && err == nil {
		s.observer.StreamConnected()
	}
	for _, event := range batch {
		handle(ctx, event)
	}
	if s.observer != nil {
		reason := "stream_closed"
		if err != nil {
			reason = "connect_refused"
		}
		s.observer.StreamDisconnected(reason)
	}
	return len(batch), err
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *scriptedStream) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingMetrics struct {
	ports.NopMetrics
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) NotificationGated(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[outcome]++
}

var errBoom = errors.New("boom")
