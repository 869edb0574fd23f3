package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/forum-agent/internal/adapters/admin"
	tomlrepo "github.com/bnema/forum-agent/internal/adapters/repo/toml"
	"github.com/bnema/forum-agent/internal/domain"
)

func TestVersionPrintsBuildVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestJournalEmpty(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "journal")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Journal is empty.")
}

func TestJournalFiltersAndPrintsJSON(t *testing.T) {
	home := t.TempDir()
	seedJournal(t, home,
		domain.JournalEntry{Kind: domain.JournalMentioned, Content: "@ann mentioned you", Metadata: map[string]string{"thread_id": "7"}},
		domain.JournalEntry{Kind: domain.JournalAutoReply, Content: "answered @ann"},
		domain.JournalEntry{Kind: domain.JournalMentioned, Content: "@bob mentioned you"},
	)

	stdout, _, err := executeCLI(t, home, "journal", "--type", "mentioned", "--json")
	require.NoError(t, err)

	var entries []admin.JournalEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "@bob mentioned you", entries[0].Content)
	assert.Equal(t, "7", entries[1].Metadata["thread_id"])
}

func TestJournalTextOldestFirst(t *testing.T) {
	home := t.TempDir()
	seedJournal(t, home,
		domain.JournalEntry{Kind: domain.JournalBrowsed, Content: "first"},
		domain.JournalEntry{Kind: domain.JournalBrowsed, Content: "second"},
	)

	stdout, _, err := executeCLI(t, home, "journal", "--limit", "5")
	require.NoError(t, err)
	assert.Less(t, strings.Index(stdout, "first"), strings.Index(stdout, "second"))
}

func TestJournalRejectsLimitOutOfRange(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "journal", "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--limit must be between 1 and 500")
}

func TestTokenSetAndClear(t *testing.T) {
	home := t.TempDir()
	secretPath := filepath.Join(home, ".config", "forum-agent", "secrets", "forum-agent", "forum", "token")

	stdout, _, err := executeCLIWithInput(t, home, "tok-123\n", "token", "set")
	require.NoError(t, err)
	assert.Contains(t, stdout, "token stored under forum-agent/forum/token")

	if raw, readErr := os.ReadFile(secretPath); readErr == nil {
		assert.Equal(t, "tok-123", strings.TrimSpace(string(raw)))
	}

	_, _, err = executeCLI(t, home, "token", "clear")
	require.NoError(t, err)
	assert.NoFileExists(t, secretPath)
}

func TestTokenSetRejectsEmptyValue(t *testing.T) {
	_, _, err := executeCLIWithInput(t, t.TempDir(), "   \n", "token", "set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is empty")
}

func TestStatusRendersRemoteDiagnostics(t *testing.T) {
	now := time.Now().UTC()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.Diagnostics{
			Connected:        true,
			ConnectAttempts:  2,
			ConnectSuccesses: 2,
			LastEventType:    "pong",
			LastEventAt:      &now,
			JournalItems:     4,
			Tasks:            []domain.TaskInfo{{ID: "t1", Name: "ingest", Kind: domain.TaskKindLoop, StartedAt: now}},
		})
	}))
	t.Cleanup(server.Close)

	stdout, _, err := executeCLI(t, t.TempDir(), "status", "--addr", server.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Forum Agent")
	assert.Contains(t, stdout, "connected")
	assert.Contains(t, stdout, "ingest")

	stdout, _, err = executeCLI(t, t.TempDir(), "status", "--addr", server.URL, "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"journal_items\": 4")
}

func TestStatusReportsUnreachableAgent(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, _, err := executeCLI(t, t.TempDir(), "status", "--addr", addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, admin.ErrUnreachable)
}

func TestPostLocalDryRun(t *testing.T) {
	home := t.TempDir()

	forum := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("dry run must not reach the forum: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(forum.Close)

	answer := `{"should_post": true, "category": "chat", "title": "Weekend plans", "content": "Anyone trying something new with their setup this weekend?"}`
	drafter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": answer}}},
		})
	}))
	t.Cleanup(drafter.Close)

	configPath := writeConfig(t, home, fmt.Sprintf(`
[forum]
api_base = %q
token = "tok"

[drafter]
api_url = %q
model = "test-model"
api_key = "sk-test"

[posting]
dry_run = true
`, forum.URL, drafter.URL))

	stdout, _, err := executeCLI(t, home, "--config", configPath, "post", "--local", "--force", "--json")
	require.NoError(t, err)

	var result domain.PostResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, domain.PostStatusPosted, result.Status)
	assert.True(t, result.DryRun)
	assert.Equal(t, "Weekend plans", result.Title)

	stdout, _, err = executeCLI(t, home, "--config", configPath, "journal", "--type", "created")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(dry run) planned thread")
}

func TestPostLocalWithoutTokenFails(t *testing.T) {
	home := t.TempDir()
	configPath := writeConfig(t, home, `
[forum]
api_base = "http://127.0.0.1:1"
`)

	stdout, _, err := executeCLI(t, home, "--config", configPath, "post", "--local", "--force", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, "forum token not configured")
	assert.Contains(t, stdout, "\"status\": \"error\"")
}

func seedJournal(t *testing.T, home string, entries ...domain.JournalEntry) {
	t.Helper()

	journal, err := tomlrepo.NewJournal(filepath.Join(home, ".config", "forum-agent", "journal.toml"), 50)
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	for i, entry := range entries {
		entry.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, journal.Append(context.Background(), entry))
	}
}

func writeConfig(t *testing.T, home, body string) string {
	t.Helper()

	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, home, "", args...)
}

func executeCLIWithInput(t *testing.T, home, input string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv(configEnv, "")

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(strings.NewReader(input))
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
