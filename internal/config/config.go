// Package config loads the agent configuration from a TOML file and FA_*
// environment variables. Every numeric key is clamped to a fixed range so a
// bad value degrades to a bound instead of failing startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".config/forum-agent"
	envPrefix  = "FA"

	defaultAPIBase     = "https://book.astrbot.app"
	defaultTokenRef    = "forum-agent/forum/token"
	defaultDrafterKey  = "forum-agent/drafter/api_key"
	defaultJournalFile = "journal.toml"
)

var defaultReplyTypes = []string{"mention", "reply", "sub_reply"}

type Config struct {
	Forum    ForumConfig
	Realtime RealtimeConfig
	Browse   BrowseConfig
	Posting  PostingConfig
	Journal  JournalConfig
	Drafter  DrafterConfig
	Admin    AdminConfig
	Log      LogConfig
	Secrets  SecretsConfig
}

type ForumConfig struct {
	APIBase  string
	Token    string
	TokenRef string
	Timeout  time.Duration
}

type RealtimeConfig struct {
	Enabled          bool
	AutoReply        bool
	ReplyTypes       []string
	MaxRepliesPerMin int
	ReplyProbability float64
	DedupeWindow     time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	FallbackDelay    time.Duration
	ConnectTimeout   time.Duration
}

type BrowseConfig struct {
	Enabled             bool
	Interval            time.Duration
	InitialDelay        time.Duration
	CategoriesAllowlist []string
	SkipThreadsWindow   time.Duration
	MaxRepliesPerCycle  int
}

type PostingConfig struct {
	Enabled             bool
	Interval            time.Duration
	InitialDelay        time.Duration
	Probability         float64
	MaxPerDay           int
	MaxPerHour          int
	MinInterval         time.Duration
	DedupeWindow        time.Duration
	DryRun              bool
	AllowURLs           bool
	AllowMentions       bool
	MaxContentChars     int
	MaxContextChars     int
	CategoriesAllowlist []string
}

type JournalConfig struct {
	Path     string
	MaxItems int
}

type DrafterConfig struct {
	APIURL      string
	Model       string
	APIKey      string
	APIKeyRef   string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Persona     string
}

type AdminConfig struct {
	Listen string
}

type LogConfig struct {
	Level  string
	Format string
}

type SecretsConfig struct {
	Dir string
}

// Load reads the config file (explicit path, or $HOME/.config/forum-agent)
// and overlays FA_* environment variables. A missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, configDir)

	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(baseDir)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("journal.path", filepath.Join(baseDir, defaultJournalFile))
	v.SetDefault("secrets.dir", filepath.Join(baseDir, "secrets"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return FromViper(v), nil
}

// FromViper builds a Config from already loaded values.
func FromViper(v *viper.Viper) Config {
	return Config{
		Forum: ForumConfig{
			APIBase:  strings.TrimRight(strings.TrimSpace(stringOr(v, "forum.api_base", defaultAPIBase)), "/"),
			Token:    strings.TrimSpace(v.GetString("forum.token")),
			TokenRef: stringOr(v, "forum.token_ref", defaultTokenRef),
			Timeout:  seconds(v, "forum.timeout_sec", 40, 1, 120),
		},
		Realtime: RealtimeConfig{
			Enabled:          boolOr(v, "realtime.enabled", true),
			AutoReply:        boolOr(v, "realtime.auto_reply", true),
			ReplyTypes:       listOr(v, "realtime.reply_types", defaultReplyTypes),
			MaxRepliesPerMin: intIn(v, "realtime.max_auto_replies_per_minute", 3, 0, 60),
			ReplyProbability: floatIn(v, "realtime.reply_probability", 0.3, 0, 1),
			DedupeWindow:     seconds(v, "realtime.dedupe_window_sec", 3600, 0, 86400*30),
			ReconnectInitial: seconds(v, "realtime.reconnect_initial_sec", 5, 1, 300),
			ReconnectMax:     seconds(v, "realtime.reconnect_max_sec", 60, 1, 3600),
			FallbackDelay:    seconds(v, "realtime.fallback_delay_sec", 10, 1, 600),
			ConnectTimeout:   seconds(v, "realtime.connect_timeout_sec", 30, 1, 300),
		},
		Browse: BrowseConfig{
			Enabled:             boolOr(v, "browse.enabled", true),
			Interval:            seconds(v, "browse.browse_interval_sec", 3600, 30, 86400*7),
			InitialDelay:        seconds(v, "browse.initial_delay_sec", 60, 0, 86400),
			CategoriesAllowlist: listOr(v, "browse.categories_allowlist", nil),
			SkipThreadsWindow:   seconds(v, "browse.skip_threads_window_sec", 86400, 0, 86400*30),
			MaxRepliesPerCycle:  intIn(v, "browse.max_replies_per_session", 1, 0, 5),
		},
		Posting: PostingConfig{
			Enabled:             boolOr(v, "posting.enabled", false),
			Interval:            postInterval(v),
			InitialDelay:        seconds(v, "posting.initial_delay_sec", 120, 0, 86400),
			Probability:         floatIn(v, "posting.post_probability", 0.2, 0, 1),
			MaxPerDay:           intIn(v, "posting.max_posts_per_day", 1, 0, 100),
			MaxPerHour:          intIn(v, "posting.max_posts_per_hour", 1, 0, 60),
			MinInterval:         seconds(v, "posting.min_interval_sec", 3600, 0, 86400),
			DedupeWindow:        seconds(v, "posting.dedupe_window_sec", 86400, 0, 86400*30),
			DryRun:              boolOr(v, "posting.dry_run", false),
			AllowURLs:           boolOr(v, "posting.allow_urls", false),
			AllowMentions:       boolOr(v, "posting.allow_mentions", false),
			MaxContentChars:     intIn(v, "posting.max_content_chars", 1200, 200, 20000),
			MaxContextChars:     intIn(v, "posting.max_context_chars", 3500, 500, 20000),
			CategoriesAllowlist: listOr(v, "posting.categories_allowlist", nil),
		},
		Journal: JournalConfig{
			Path:     v.GetString("journal.path"),
			MaxItems: intIn(v, "journal.max_items", 50, 1, 5000),
		},
		Drafter: DrafterConfig{
			APIURL:      strings.TrimRight(stringOr(v, "drafter.api_url", "https://api.openai.com/v1"), "/"),
			Model:       v.GetString("drafter.model"),
			APIKey:      strings.TrimSpace(v.GetString("drafter.api_key")),
			APIKeyRef:   stringOr(v, "drafter.api_key_ref", defaultDrafterKey),
			Timeout:     seconds(v, "drafter.timeout_sec", 60, 5, 600),
			Temperature: floatIn(v, "drafter.temperature", 0.6, 0, 2),
			MaxTokens:   intIn(v, "drafter.max_tokens", 800, 32, 8192),
			Persona:     strings.TrimSpace(v.GetString("drafter.persona")),
		},
		Admin: AdminConfig{
			Listen: stringOr(v, "admin.listen", "127.0.0.1:7788"),
		},
		Log: LogConfig{
			Level:  stringOr(v, "log.level", "info"),
			Format: stringOr(v, "log.format", "text"),
		},
		Secrets: SecretsConfig{
			Dir: v.GetString("secrets.dir"),
		},
	}
}

// postInterval prefers posting.post_interval_min and falls back to the older
// posting.post_interval_sec key.
func postInterval(v *viper.Viper) time.Duration {
	if v.IsSet("posting.post_interval_min") {
		return time.Duration(intIn(v, "posting.post_interval_min", 360, 5, 10080)) * time.Minute
	}
	return seconds(v, "posting.post_interval_sec", 21600, 300, 86400*7)
}

func stringOr(v *viper.Viper, key, fallback string) string {
	if !v.IsSet(key) {
		return fallback
	}
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOr(v *viper.Viper, key string, fallback bool) bool {
	if !v.IsSet(key) {
		return fallback
	}
	b, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return fallback
	}
	return b
}

func intIn(v *viper.Viper, key string, fallback, lo, hi int) int {
	value := fallback
	if v.IsSet(key) {
		if parsed, err := cast.ToIntE(v.Get(key)); err == nil {
			value = parsed
		}
	}
	return min(max(value, lo), hi)
}

func floatIn(v *viper.Viper, key string, fallback, lo, hi float64) float64 {
	value := fallback
	if v.IsSet(key) {
		if parsed, err := cast.ToFloat64E(v.Get(key)); err == nil {
			value = parsed
		}
	}
	return min(max(value, lo), hi)
}

func seconds(v *viper.Viper, key string, fallback, lo, hi int) time.Duration {
	return time.Duration(intIn(v, key, fallback, lo, hi)) * time.Second
}

// listOr accepts a TOML array or a comma separated string.
func listOr(v *viper.Viper, key string, fallback []string) []string {
	if !v.IsSet(key) {
		return fallback
	}

	var raw []string
	switch value := v.Get(key).(type) {
	case string:
		raw = strings.Split(value, ",")
	default:
		items, err := cast.ToStringSliceE(value)
		if err != nil {
			return fallback
		}
		raw = items
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
