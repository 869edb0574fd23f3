package status

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/forum-agent/internal/domain"
)

func at(t time.Time) *time.Time {
	return &t
}

func TestRenderConnectedSnapshot(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(domain.Diagnostics{
		Connected:        true,
		SelfID:           domain.Int64(42),
		ConnectAttempts:  4,
		ConnectSuccesses: 2,
		Reconnects:       3,
		LastEventType:    "reply",
		LastEventAt:      at(now.Add(-90 * time.Second)),
		NextBrowseAt:     at(now.Add(25 * time.Minute)),
		NextPostAt:       at(now.Add(3 * time.Hour)),
		PostingEnabled:   true,
		JournalItems:     7,
		Tasks: []domain.TaskInfo{
			{Name: "ingest", Kind: domain.TaskKindLoop, StartedAt: now.Add(-2 * time.Hour)},
			{Name: "browse_loop", Kind: domain.TaskKindLoop, StartedAt: now.Add(-2 * time.Hour)},
		},
	}, RenderOptions{Now: now, QuietAfter: 10 * time.Minute})

	require.NoError(t, err)
	assert.Contains(t, output, "Forum Agent")
	assert.Contains(t, output, "tasks: 2  journal: 7")
	assert.Contains(t, output, "connected")
	assert.Contains(t, output, "bot user: 42")
	assert.Contains(t, output, "2/4 connects, 3 reconnects")
	assert.Contains(t, output, "[==========----------]")
	assert.Contains(t, output, "reply (1m ago)")
	assert.Contains(t, output, "next browse: in 25m (11:25)")
	assert.Contains(t, output, "next post: in 3h00m (14:00)")
	assert.Contains(t, output, "ingest [loop] since 2h00m ago")
	assert.NotContains(t, output, "[quiet]")
	assert.NotContains(t, output, "last error")
}

func TestRenderIdleSnapshot(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(domain.Diagnostics{
		LastError:            "ingest: connection refused",
		LastDisconnectReason: "connect_refused",
		LastDisconnectAt:     at(now.Add(-30 * time.Second)),
		LastEventAt:          at(now.Add(-time.Hour)),
		LastEventType:        "pong",
	}, RenderOptions{Now: now, QuietAfter: 10 * time.Minute})

	require.NoError(t, err)
	assert.Contains(t, output, "disconnected")
	assert.Contains(t, output, "bot user: unknown")
	assert.Contains(t, output, "last disconnect: connect_refused (30s ago)")
	assert.Contains(t, output, "[quiet]")
	assert.Contains(t, output, "next browse: not scheduled")
	assert.Contains(t, output, "next post: disabled")
	assert.Contains(t, output, "No tasks running.")
	assert.Contains(t, output, "last error: ingest: connection refused")
}

func TestRenderPostResult(t *testing.T) {
	t.Parallel()

	out := RenderPostResult(domain.PostResult{
		Status:    domain.PostStatusPosted,
		Reason:    "published",
		ContentID: domain.Int64(99),
		Title:     "Weekend reading",
		Category:  "chat",
	})
	assert.Contains(t, out, "posted published")
	assert.Contains(t, out, `"Weekend reading"`)
	assert.Contains(t, out, "in chat")
	assert.Contains(t, out, "(id 99)")

	dry := RenderPostResult(domain.PostResult{Status: domain.PostStatusPosted, Reason: "dry_run: generated but not published", DryRun: true})
	assert.Contains(t, dry, "[dry run]")

	skipped := RenderPostResult(domain.Skipped("posting disabled"))
	assert.Contains(t, skipped, "skipped posting disabled")
}

func TestRenderJournalOldestFirst(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)
	out := RenderJournal([]domain.JournalEntry{
		{Kind: domain.JournalReplied, Content: "second", Timestamp: now.Add(-time.Minute)},
		{Kind: domain.JournalDiary, Content: "first", Timestamp: now.Add(-48 * time.Hour)},
	}, now)

	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
	assert.Contains(t, out, "10:59")
	assert.Contains(t, out, "11:00 on 12 Feb")

	assert.Contains(t, RenderJournal(nil, now), "Journal is empty.")
}

func TestHumanDuration(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		5 * time.Second:               "5s",
		12 * time.Minute:              "12m",
		2*time.Hour + 5*time.Minute:   "2h05m",
		72 * time.Hour:                "3d",
		49*time.Hour + 30*time.Minute: "3d",
	}
	for in, want := range cases {
		assert.Equal(t, want, humanDuration(in), in.String())
	}
}
