package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	journalFileMode = 0o600
	journalDirMode  = 0o700
	tempFilePattern = ".journal-*.toml.tmp"
	defaultMaxItems = 50
)

// Journal is the persisted activity journal. It keeps at most maxItems
// entries, dropping the oldest first, and rewrites the file atomically on
// every append.
type Journal struct {
	path     string
	maxItems int
	mu       *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.Journal = (*Journal)(nil)

func NewJournal(path string, maxItems int) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is empty")
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	return &Journal{path: path, maxItems: maxItems, mu: lockForPath(path)}, nil
}

func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Append(ctx context.Context, entry domain.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Kind == "" || strings.TrimSpace(entry.Content) == "" {
		return domain.ErrJournalEntryEmpty
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := j.readSchema()
	if err != nil {
		return err
	}

	file.Entries = append(file.Entries, toSchema(entry))
	if overflow := len(file.Entries) - j.maxItems; overflow > 0 {
		file.Entries = append(file.Entries[:0], file.Entries[overflow:]...)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return j.writeSchema(file)
}

// Recent returns up to limit entries, newest first. An empty kind matches
// every entry and a non-positive limit returns all of them.
func (j *Journal) Recent(ctx context.Context, kind domain.JournalKind, limit int) ([]domain.JournalEntry, error) {
	entries, err := j.list(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.JournalEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if kind != "" && entries[i].Kind != kind {
			continue
		}
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ThreadIDsSince lists the distinct thread ids referenced by entries written
// at or after since, newest first.
func (j *Journal) ThreadIDsSince(ctx context.Context, since time.Time) ([]int64, error) {
	entries, err := j.list(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Timestamp.Before(since) {
			continue
		}
		id, ok := entries[i].ThreadID()
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (j *Journal) Len(ctx context.Context) (int, error) {
	entries, err := j.list(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (j *Journal) list(ctx context.Context) ([]domain.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	file, err := j.readSchema()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.JournalEntry, 0, len(file.Entries))
	for _, entry := range file.Entries {
		entries = append(entries, fromSchema(entry))
	}
	return entries, nil
}

func (j *Journal) readSchema() (journalSchema, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return journalSchema{Version: currentSchemaVersion}, nil
		}
		return journalSchema{}, fmt.Errorf("read journal file: %w", err)
	}

	var file journalSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return journalSchema{}, fmt.Errorf("decode journal file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return journalSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve journal path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (j *Journal) writeSchema(file journalSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(j.path), journalDirMode); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode journal file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(j.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp journal file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp journal file: %w", err)
	}
	if err := tempFile.Chmod(journalFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp journal file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp journal file: %w", err)
	}

	if err := os.Rename(tempName, j.path); err != nil {
		return fmt.Errorf("replace journal file: %w", err)
	}
	cleanup = false

	return nil
}

func toSchema(entry domain.JournalEntry) entrySchema {
	var metadata map[string]string
	if len(entry.Metadata) > 0 {
		metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			metadata[k] = v
		}
	}

	return entrySchema{
		Kind:      string(entry.Kind),
		Content:   entry.Content,
		Timestamp: formatTime(entry.Timestamp),
		Metadata:  metadata,
	}
}

func fromSchema(entry entrySchema) domain.JournalEntry {
	return domain.JournalEntry{
		Kind:      domain.JournalKind(entry.Kind),
		Content:   entry.Content,
		Timestamp: parseTime(entry.Timestamp),
		Metadata:  entry.Metadata,
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
