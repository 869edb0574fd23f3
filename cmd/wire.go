package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/forum-agent/internal/adapters/admin"
	"github.com/bnema/forum-agent/internal/adapters/draft"
	"github.com/bnema/forum-agent/internal/adapters/forum"
	metricsadapter "github.com/bnema/forum-agent/internal/adapters/metrics"
	statusadapter "github.com/bnema/forum-agent/internal/adapters/render/status"
	tomlrepo "github.com/bnema/forum-agent/internal/adapters/repo/toml"
	"github.com/bnema/forum-agent/internal/adapters/secrets"
	chainstore "github.com/bnema/forum-agent/internal/adapters/secrets/chain"
	"github.com/bnema/forum-agent/internal/adapters/sse"
	"github.com/bnema/forum-agent/internal/application"
	"github.com/bnema/forum-agent/internal/config"
	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
	"github.com/bnema/forum-agent/internal/version"
)

const stopTimeout = 15 * time.Second

type app struct {
	cfg            config.Config
	logger         logging.Logger
	secretStore    ports.SecretStore
	journal        *tomlrepo.Journal
	statusRenderer func(domain.Diagnostics, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client // nil selects the admin client default
	now            func() time.Time
}

// agent is the full service graph. Only commands that talk to the forum
// build one.
type agent struct {
	supervisor *application.Supervisor
	metrics    *metricsadapter.Collector
	journal    ports.Journal
}

func wireApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(viper.New(), configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	secretStore, err := chainstore.NewPassFirstWithFileFallback(cfg.Secrets.Dir)
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	journal, err := tomlrepo.NewJournal(cfg.Journal.Path, cfg.Journal.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("wire journal: %w", err)
	}

	return &app{
		cfg:            cfg,
		logger:         logging.New(logOut, cfg.Log.Level, cfg.Log.Format),
		secretStore:    secretStore,
		journal:        journal,
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}, nil
}

func (a *app) newAgent() *agent {
	cfg := a.cfg
	clock := ports.SystemClock{}
	logger := a.logger
	metrics := metricsadapter.NewCollector(version.Version)

	forumToken := secrets.TokenFunc(cfg.Forum.Token, a.secretStore, cfg.Forum.TokenRef)

	forumClient := forum.NewClient(forum.Config{
		APIBase: cfg.Forum.APIBase,
		Token:   forumToken,
		Timeout: cfg.Forum.Timeout,
	}, forum.WithLogger(logger))

	drafter := draft.New(draft.Config{
		APIURL:      cfg.Drafter.APIURL,
		Model:       cfg.Drafter.Model,
		APIKey:      secrets.TokenFunc(cfg.Drafter.APIKey, a.secretStore, cfg.Drafter.APIKeyRef),
		Timeout:     cfg.Drafter.Timeout,
		Temperature: cfg.Drafter.Temperature,
		MaxTokens:   cfg.Drafter.MaxTokens,
		Persona:     cfg.Drafter.Persona,
	}, draft.WithLogger(logger))

	session := application.NewSession(clock)
	registry := application.NewTaskRegistry(clock, logger, metrics)

	publisher := application.NewPublisher(
		application.NewPostRateLimiter(cfg.Posting.MaxPerDay, cfg.Posting.MaxPerHour, cfg.Posting.MinInterval),
		application.NewContentDedup(cfg.Posting.DedupeWindow),
	)

	responder := application.NewResponder(application.ResponderConfig{
		BrowseCategories:   cfg.Browse.CategoriesAllowlist,
		SkipThreadsWindow:  cfg.Browse.SkipThreadsWindow,
		MaxRepliesPerCycle: cfg.Browse.MaxRepliesPerCycle,
		PostingEnabled:     cfg.Posting.Enabled,
		PostProbability:    cfg.Posting.Probability,
		PostCategories:     cfg.Posting.CategoriesAllowlist,
		DryRun:             cfg.Posting.DryRun,
		Sanitize: application.SanitizeOptions{
			AllowURLs:     cfg.Posting.AllowURLs,
			AllowMentions: cfg.Posting.AllowMentions,
		},
		MaxContentChars: cfg.Posting.MaxContentChars,
		MaxContextChars: cfg.Posting.MaxContextChars,
	}, application.ResponderDeps{
		Forum:     forumClient,
		Drafter:   drafter,
		Journal:   a.journal,
		Session:   session,
		Publisher: publisher,
		Clock:     clock,
		Logger:    logger,
	})

	router := application.NewRouter(application.RouterConfig{
		AutoReply:    cfg.Realtime.AutoReply,
		ReplyTypes:   cfg.Realtime.ReplyTypes,
		MaxPerMinute: cfg.Realtime.MaxRepliesPerMin,
		Probability:  cfg.Realtime.ReplyProbability,
		DedupeWindow: cfg.Realtime.DedupeWindow,
	}, application.RouterDeps{
		Session:   session,
		Journal:   a.journal,
		Responder: responder,
		Spawner:   registry,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	})

	stream := sse.NewConnector(sse.Config{
		APIBase:        cfg.Forum.APIBase,
		Token:          forumToken,
		FallbackDelay:  cfg.Realtime.FallbackDelay,
		ConnectTimeout: cfg.Realtime.ConnectTimeout,
	}, session, sse.WithLogger(logger), sse.WithMetrics(metrics), sse.WithClock(clock))

	supervisor := application.NewSupervisor(application.SupervisorConfig{
		RealtimeEnabled:  cfg.Realtime.Enabled,
		BrowseEnabled:    cfg.Browse.Enabled,
		PostingEnabled:   cfg.Posting.Enabled,
		ReconnectInitial: cfg.Realtime.ReconnectInitial,
		ReconnectMax:     cfg.Realtime.ReconnectMax,
		BrowseInterval:   cfg.Browse.Interval,
		BrowseDelay:      cfg.Browse.InitialDelay,
		PostInterval:     cfg.Posting.Interval,
		PostDelay:        cfg.Posting.InitialDelay,
	}, application.SupervisorDeps{
		Stream:    stream,
		Router:    router,
		Responder: responder,
		Forum:     forumClient,
		Session:   session,
		Registry:  registry,
		Journal:   a.journal,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	})

	return &agent{supervisor: supervisor, metrics: metrics, journal: a.journal}
}

func (a *app) adminClient(addr string) *admin.Client {
	if addr == "" {
		addr = a.cfg.Admin.Listen
	}
	return admin.NewClient(addr, a.httpClient)
}

func (a *app) stopAgent(rt *agent) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := rt.supervisor.Stop(ctx); err != nil {
		a.logger.WithError(err).Warn("stop agent")
	}
}
