package toml

import "fmt"

const currentSchemaVersion = 1

type journalSchema struct {
	Version int           `toml:"version"`
	Entries []entrySchema `toml:"entries"`
}

func (s *journalSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s journalSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported journal schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type entrySchema struct {
	Kind      string            `toml:"kind"`
	Content   string            `toml:"content"`
	Timestamp string            `toml:"timestamp"`
	Metadata  map[string]string `toml:"metadata,omitempty"`
}
