package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/forum-agent/internal/application"
	"github.com/bnema/forum-agent/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubResponder struct {
	mu        sync.Mutex
	browsed   int
	browseErr error
	forced    []bool
	result    domain.PostResult
}

func (r *stubResponder) HandleNotification(context.Context, domain.Event) error { return nil }

func (r *stubResponder) RunBrowseCycle(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.browsed++
	return r.browseErr
}

func (r *stubResponder) RunPostCycle(_ context.Context, force bool) (domain.PostResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forced = append(r.forced, force)
	return r.result, nil
}

type stubJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
	kind    domain.JournalKind
	limit   int
}

func (j *stubJournal) set(entries []domain.JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = entries
}

func (j *stubJournal) lastQuery() (domain.JournalKind, int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.kind, j.limit
}

func (j *stubJournal) Append(context.Context, domain.JournalEntry) error { return nil }

func (j *stubJournal) Recent(_ context.Context, kind domain.JournalKind, limit int) ([]domain.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.kind, j.limit = kind, limit
	return j.entries, nil
}

func (j *stubJournal) ThreadIDsSince(context.Context, time.Time) ([]int64, error) { return nil, nil }

func (j *stubJournal) Len(context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.entries), nil
}

type fixture struct {
	responder  *stubResponder
	journal    *stubJournal
	supervisor *application.Supervisor
	client     *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	responder := &stubResponder{result: domain.PostResult{Status: domain.PostStatusPosted, Reason: "published", ContentID: domain.Int64(31)}}
	journal := &stubJournal{}
	supervisor := application.NewSupervisor(application.SupervisorConfig{PostingEnabled: true}, application.SupervisorDeps{
		Responder: responder,
		Journal:   journal,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = supervisor.Stop(ctx)
	})

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("forum_agent_up 1\n"))
	})
	server := NewServer(Deps{Supervisor: supervisor, Journal: journal, Metrics: metrics, Version: "v-test"})
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return &fixture{
		responder:  responder,
		journal:    journal,
		supervisor: supervisor,
		client:     NewClient(httpServer.URL, httpServer.Client()),
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	health, err := f.client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthResponse{Status: "ok", Running: false, Version: "v-test"}, health)
}

func TestStatusReturnsDiagnostics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.journal.set(make([]domain.JournalEntry, 3))
	f.supervisor.Session().RecordError("boom")

	diag, err := f.client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "boom", diag.LastError)
	assert.Equal(t, 3, diag.JournalItems)
	assert.True(t, diag.PostingEnabled)
}

func TestTriggerPostWaitsForResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, err := f.client.TriggerPost(context.Background(), true, true)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)
	assert.True(t, resp.Done)
	require.NotNil(t, resp.Result)
	assert.Equal(t, domain.PostStatusPosted, resp.Result.Status)
	require.NotNil(t, resp.Result.ContentID)
	assert.Equal(t, int64(31), *resp.Result.ContentID)

	f.responder.mu.Lock()
	assert.Equal(t, []bool{true}, f.responder.forced)
	f.responder.mu.Unlock()
}

func TestTriggerBrowseReportsJobError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.responder.mu.Lock()
	f.responder.browseErr = errors.New("listing unavailable")
	f.responder.mu.Unlock()

	resp, err := f.client.TriggerBrowse(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, resp.Done)
	assert.Equal(t, "listing unavailable", resp.Error)
}

func TestTriggerWithoutWaitIsAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, err := f.client.TriggerBrowse(context.Background(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)
	assert.False(t, resp.Done)

	require.Eventually(t, func() bool {
		f.responder.mu.Lock()
		defer f.responder.mu.Unlock()
		return f.responder.browsed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJournalEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	want := []domain.JournalEntry{
		{Kind: domain.JournalReplied, Content: "replied to 4", Timestamp: at, Metadata: map[string]string{"thread_id": "4"}},
	}
	f.journal.set(want)

	entries, err := f.client.Journal(context.Background(), domain.JournalReplied, 5)
	require.NoError(t, err)
	assert.Equal(t, want, entries)
	kind, limit := f.journal.lastQuery()
	assert.Equal(t, domain.JournalReplied, kind)
	assert.Equal(t, 5, limit)
}

func TestJournalRejectsBadLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.client.Journal(context.Background(), "", maxJournalLimit+1)
	require.ErrorContains(t, err, "limit must be between 1 and 500")
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	server := NewServer(Deps{Supervisor: f.supervisor, Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestClientUnreachable(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = NewClient(addr, nil).Health(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	server := NewServer(Deps{Supervisor: f.supervisor})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	client := NewClient(listener.Addr().String(), nil)
	require.Eventually(t, func() bool {
		_, err := client.Health(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
