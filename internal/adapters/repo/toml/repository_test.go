package toml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/forum-agent/internal/domain"
)

func newTestJournal(t *testing.T, maxItems int) *Journal {
	t.Helper()

	journal, err := NewJournal(filepath.Join(t.TempDir(), "nested", "journal.toml"), maxItems)
	require.NoError(t, err)
	return journal
}

func TestJournalRoundTrip(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, 10)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := domain.JournalEntry{
		Kind:      domain.JournalMentioned,
		Content:   "@bob mentioned you",
		Timestamp: base,
		Metadata:  map[string]string{"thread_id": "5", "from_user": "bob"},
	}
	second := domain.JournalEntry{
		Kind:      domain.JournalDiary,
		Content:   "quiet day",
		Timestamp: base.Add(time.Minute),
	}
	require.NoError(t, journal.Append(ctx, first))
	require.NoError(t, journal.Append(ctx, second))

	reopened, err := NewJournal(journal.Path(), 10)
	require.NoError(t, err)

	got, err := reopened.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.JournalEntry{second, first}, got)

	n, err := reopened.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	info, err := os.Stat(journal.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(journalFileMode), info.Mode().Perm())
}

func TestJournalKeepsNewestEntries(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, 3)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, journal.Append(ctx, domain.JournalEntry{
			Kind:      domain.JournalBrowsed,
			Content:   fmt.Sprintf("entry %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := journal.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "entry 4", got[0].Content)
	assert.Equal(t, "entry 2", got[2].Content)
}

func TestJournalRecentFiltersByKind(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, 10)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	kinds := []domain.JournalKind{domain.JournalReplied, domain.JournalDiary, domain.JournalReplied, domain.JournalReplied}
	for i, kind := range kinds {
		require.NoError(t, journal.Append(ctx, domain.JournalEntry{
			Kind:      kind,
			Content:   fmt.Sprintf("%s %d", kind, i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := journal.Recent(ctx, domain.JournalReplied, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "replied 3", got[0].Content)
	assert.Equal(t, "replied 2", got[1].Content)
}

func TestJournalThreadIDsSince(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, 10)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	entries := []struct {
		offset time.Duration
		thread string
	}{
		{offset: 0, thread: "1"},
		{offset: time.Hour, thread: "2"},
		{offset: 2 * time.Hour, thread: "3"},
		{offset: 3 * time.Hour, thread: "2"},
		{offset: 4 * time.Hour, thread: ""},
		{offset: 5 * time.Hour, thread: "bogus"},
	}
	for _, e := range entries {
		meta := map[string]string{}
		if e.thread != "" {
			meta["thread_id"] = e.thread
		}
		require.NoError(t, journal.Append(ctx, domain.JournalEntry{
			Kind:      domain.JournalReplied,
			Content:   "x",
			Timestamp: base.Add(e.offset),
			Metadata:  meta,
		}))
	}

	ids, err := journal.ThreadIDsSince(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)
}

func TestJournalRejectsEmptyEntries(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, 10)

	err := journal.Append(context.Background(), domain.JournalEntry{Kind: domain.JournalDiary, Content: "   "})
	require.ErrorIs(t, err, domain.ErrJournalEntryEmpty)

	err = journal.Append(context.Background(), domain.JournalEntry{Content: "no kind"})
	require.ErrorIs(t, err, domain.ErrJournalEntryEmpty)
}

func TestJournalMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, 10)

	n, err := journal.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	ids, err := journal.ThreadIDsSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJournalRejectsFutureSchemaVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 9\n"), 0o600))

	journal, err := NewJournal(path, 10)
	require.NoError(t, err)

	_, err = journal.Len(context.Background())
	require.ErrorContains(t, err, "unsupported journal schema version 9")
}

func TestJournalHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := journal.Append(ctx, domain.JournalEntry{Kind: domain.JournalDiary, Content: "x"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestJournalConcurrentAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.toml")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			// Separate instances on one path share the per-path lock.
			journal, err := NewJournal(path, 100)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, journal.Append(ctx, domain.JournalEntry{
				Kind:    domain.JournalDiary,
				Content: fmt.Sprintf("writer %d", i),
			}))
		}(i)
	}
	wg.Wait()

	journal, err := NewJournal(path, 100)
	require.NoError(t, err)
	n, err := journal.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestNewJournalRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewJournal("  ", 10)
	require.EqualError(t, err, "journal path is empty")
}
