package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/claim"
	"github.com/fyrsmithlabs/autopatchd/internal/config"
	"github.com/fyrsmithlabs/autopatchd/internal/configanalyzer"
	"github.com/fyrsmithlabs/autopatchd/internal/executor"
	apihttp "github.com/fyrsmithlabs/autopatchd/internal/http"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/llm"
	"github.com/fyrsmithlabs/autopatchd/internal/logging"
	"github.com/fyrsmithlabs/autopatchd/internal/pattern"
	"github.com/fyrsmithlabs/autopatchd/internal/remote"
	"github.com/fyrsmithlabs/autopatchd/internal/router"
	"github.com/fyrsmithlabs/autopatchd/internal/secrets"
	"github.com/fyrsmithlabs/autopatchd/internal/sqlrpc"
	"github.com/fyrsmithlabs/autopatchd/internal/telemetry"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
	"github.com/fyrsmithlabs/autopatchd/internal/workflows"
	"github.com/fyrsmithlabs/autopatchd/internal/workspace"
)

// app holds every wired component. Optional components are nil when their
// config section is empty.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry

	store     *ticket.SQLiteStore
	scrubber  secrets.Scrubber
	whitelist *remote.Whitelist
	router    *router.Router

	// approvals is set for the in-process backend only.
	approvals *approval.Service
	gate      approval.Gate
	decider   approval.Decider
	telegram  *approval.Telegram
	bridge    *approval.NATSBridge

	temporal client.Client
	worker   worker.Worker

	corpus  *knowledge.Store
	indexer *knowledge.Indexer

	nc    *nats.Conn
	redis *redis.Client

	// listen enables the Temporal worker and inbound decision channels.
	listen bool

	closers []func()
}

// setupLogging builds the telemetry providers and the logger exporting
// through them.
func setupLogging(ctx context.Context, cfg *config.Config, stderr bool) (*zap.Logger, *telemetry.Telemetry, error) {
	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return nil, nil, fmt.Errorf("logging config: %w", err)
	}
	logCfg.Output.Stderr = stderr
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger.Underlying(), tel, nil
}

// newApp wires the components described by cfg. On error everything opened
// so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, tel *telemetry.Telemetry, listen bool) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, tel: tel, listen: listen}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStore(); err != nil {
		return nil, err
	}
	scrubCfg := secrets.DefaultConfig()
	scrubCfg.Gitleaks = !cfg.Secrets.DisableGitleaks
	scrubCfg.AllowList = append(scrubCfg.AllowList, cfg.Secrets.AllowList...)
	if a.scrubber, err = secrets.New(scrubCfg); err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}
	if a.whitelist, err = loadWhitelist(cfg.Remote.WhitelistPath); err != nil {
		return nil, err
	}
	if err := a.connectNATS(); err != nil {
		return nil, err
	}
	if err := a.setupApprovals(ctx); err != nil {
		return nil, err
	}
	if err := a.setupKnowledge(); err != nil {
		return nil, err
	}
	if err := a.setupRouter(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore() error {
	path, err := config.ExpandHome(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	store, err := ticket.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("opening ticket store: %w", err)
	}
	a.store = store
	a.onClose(func() { _ = store.Close() })
	a.logger.Info("ticket store opened", zap.String("path", path))
	return nil
}

func loadWhitelist(path string) (*remote.Whitelist, error) {
	if path == "" {
		return remote.DefaultWhitelist(), nil
	}
	path, err := config.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	w, err := remote.LoadWhitelist(path)
	if err != nil {
		return nil, fmt.Errorf("loading whitelist: %w", err)
	}
	return w, nil
}

func (a *app) connectNATS() error {
	if !a.cfg.NATS.Enabled() {
		return nil
	}
	nc, err := nats.Connect(a.cfg.NATS.URL,
		nats.Name(a.cfg.NATS.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", a.cfg.NATS.URL, err)
	}
	a.nc = nc
	a.onClose(func() { _ = nc.Drain() })
	a.logger.Info("connected to NATS", zap.String("url", a.cfg.NATS.URL))
	return nil
}

// setupApprovals creates the approval backend and its notifiers. Telegram
// and the NATS bridge both decide through whichever backend is active.
func (a *app) setupApprovals(ctx context.Context) error {
	timeout := a.cfg.Approval.Timeout.Duration()

	var notifiers []approval.Notifier
	addNotifiers := func(decider approval.Decider) error {
		if a.cfg.Telegram.Enabled() {
			tg, err := approval.NewTelegram(approval.TelegramConfig{
				Token:     a.cfg.Telegram.Token.Value(),
				ChatID:    a.cfg.Telegram.ChatID,
				AllowFrom: a.cfg.Telegram.AllowFrom,
			}, decider, a.logger)
			if err != nil {
				return fmt.Errorf("creating telegram notifier: %w", err)
			}
			a.telegram = tg
			notifiers = append(notifiers, tg)
		}
		if a.nc != nil {
			a.bridge = approval.NewNATSBridge(a.nc, decider, a.logger)
			if a.listen {
				if err := a.bridge.Subscribe(ctx); err != nil {
					return err
				}
				a.onClose(func() { _ = a.bridge.Close() })
			}
			notifiers = append(notifiers, a.bridge)
		}
		return nil
	}

	switch a.cfg.Approval.Backend {
	case "temporal":
		tc, err := client.Dial(client.Options{
			HostPort:  a.cfg.Temporal.HostPort,
			Namespace: a.cfg.Temporal.Namespace,
		})
		if err != nil {
			return fmt.Errorf("connecting to temporal at %s: %w", a.cfg.Temporal.HostPort, err)
		}
		a.temporal = tc
		a.onClose(tc.Close)

		gate := workflows.NewTemporalGate(tc, workflows.GateConfig{
			TaskQueue: a.cfg.Temporal.TaskQueue,
			Timeout:   timeout,
		}, a.logger)
		a.gate = gate
		a.decider = gate
		if err := addNotifiers(gate); err != nil {
			return err
		}
		if a.listen {
			a.worker = workflows.NewWorker(tc, a.cfg.Temporal.TaskQueue, workflows.NewActivities(a.store, a.logger, notifiers...))
			if err := a.worker.Start(); err != nil {
				return fmt.Errorf("starting temporal worker: %w", err)
			}
			a.onClose(a.worker.Stop)
		}
	default:
		svc := approval.NewService(approval.Config{
			Timeout:     timeout,
			ReuseWindow: a.cfg.Approval.ReuseWindow.Duration(),
		}, a.store, a.logger)
		a.approvals = svc
		a.gate = svc
		a.decider = svc
		if err := addNotifiers(svc); err != nil {
			return err
		}
		for _, n := range notifiers {
			svc.AddNotifier(n)
		}
	}
	a.logger.Info("approval backend ready",
		zap.String("backend", a.cfg.Approval.Backend),
		zap.Int("notifiers", len(notifiers)))
	return nil
}

func (a *app) setupKnowledge() error {
	kc := a.cfg.Knowledge
	if !kc.Enabled() {
		return nil
	}
	emb, err := knowledge.NewEmbedder(knowledge.EmbedderConfig{
		BaseURL: kc.EmbeddingURL,
		Model:   kc.EmbeddingModel,
		APIKey:  kc.EmbeddingKey.Value(),
	})
	if err != nil {
		return err
	}
	path, err := config.ExpandHome(kc.Path)
	if err != nil {
		return err
	}
	dir, err := config.ExpandHome(kc.Dir)
	if err != nil {
		return err
	}
	store, err := knowledge.NewStore(knowledge.StoreConfig{
		Path:       path,
		Compress:   kc.Compress,
		Collection: kc.Collection,
	}, emb, a.logger)
	if err != nil {
		return fmt.Errorf("opening knowledge store: %w", err)
	}
	a.corpus = store
	a.indexer = knowledge.NewIndexer(store, dir, a.logger)
	return nil
}

func (a *app) setupRouter() error {
	cfg := a.cfg
	root, err := config.ExpandHome(cfg.Router.Root)
	if err != nil {
		return err
	}

	var (
		corpus        knowledge.Corpus
		planner       router.Planner
		disambiguator configanalyzer.Disambiguator = configanalyzer.NopDisambiguator{}
		approvals     router.Approvals
		publisher     router.Publisher
		remoteRunner  remote.Runner
		sql           sqlrpc.Executor
		claims        claim.Guard = claim.NewMemoryGuard()
	)
	if a.corpus != nil {
		corpus = a.corpus
	}
	if a.approvals != nil {
		approvals = a.approvals
	}
	if a.nc != nil {
		publisher = router.NewNATSPublisher(a.nc)
	}

	if cfg.LLM.Enabled() {
		lc, err := llm.New(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey.Value(),
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			RateLimit:   cfg.LLM.RateLimit,
			Timeout:     cfg.LLM.Timeout.Duration(),
		}, a.logger)
		if err != nil {
			return fmt.Errorf("creating llm client: %w", err)
		}
		planner = lc
		disambiguator = lc
	}

	if cfg.Remote.Enabled() {
		keyPath, err := config.ExpandHome(cfg.Remote.KeyPath)
		if err != nil {
			return err
		}
		knownHosts, err := config.ExpandHome(cfg.Remote.KnownHostsPath)
		if err != nil {
			return err
		}
		ssh, err := remote.NewSSHClient(remote.SSHConfig{
			Host:                cfg.Remote.Host,
			Port:                cfg.Remote.Port,
			User:                cfg.Remote.User,
			KeyPath:             keyPath,
			KnownHostsPath:      knownHosts,
			InsecureSkipHostKey: cfg.Remote.InsecureSkipHostKey,
			DialTimeout:         cfg.Remote.DialTimeout.Duration(),
			CommandsPerMinute:   cfg.Remote.CommandsPerMinute,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("creating ssh client: %w", err)
		}
		remoteRunner = ssh
	}

	if cfg.Supabase.Enabled() {
		rpc, err := sqlrpc.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey.Value(), cfg.Supabase.Timeout.Duration())
		if err != nil {
			return fmt.Errorf("creating supabase client: %w", err)
		}
		a.logger.Info("supabase sql rpc enabled",
			zap.String("url", cfg.Supabase.URL),
			zap.String("service_role_key", cfg.Supabase.ServiceRoleKey.Hint()))
		sql = rpc
	}

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Value(),
			DB:       cfg.Redis.DB,
		})
		a.onClose(func() { _ = a.redis.Close() })
		claims = claim.NewRedisGuard(a.redis, cfg.Redis.Prefix)
	}

	exec := executor.New(executor.Config{
		MessagesDir:    cfg.Executor.MessagesDir,
		MigrationsDir:  cfg.Executor.MigrationsDir,
		FrontendDir:    cfg.Executor.FrontendDir,
		LintCommand:    config.Fields(cfg.Executor.LintCommand),
		BuildCommand:   config.Fields(cfg.Executor.BuildCommand),
		RestartCommand: config.Fields(cfg.Executor.RestartCommand),
		LintTimeout:    cfg.Executor.LintTimeout.Duration(),
		BuildTimeout:   cfg.Executor.BuildTimeout.Duration(),
		RestartTimeout: cfg.Executor.RestartTimeout.Duration(),
		SkipChecks:     cfg.Executor.SkipChecks,
	}, executor.Deps{
		Gate:      a.gate,
		Remote:    remoteRunner,
		Whitelist: a.whitelist,
		SQL:       sql,
		Runner:    executor.ExecRunner{},
	}, a.logger)

	planDir := cfg.Router.PlanDir
	if !filepath.IsAbs(planDir) {
		planDir = filepath.Join(root, planDir)
	}
	plans, err := autopatch.NewPlanWriter(planDir, a.scrubber, a.logger)
	if err != nil {
		return fmt.Errorf("creating plan writer: %w", err)
	}

	analyzer := configanalyzer.New(configanalyzer.Config{
		Root:       root,
		Threshold:  cfg.Knowledge.Threshold,
		QueryLimit: cfg.Knowledge.QueryLimit,
	}, configanalyzer.Deps{
		Corpus:        corpus,
		Disambiguator: disambiguator,
		Workspace:     workspace.NewInspector(0, a.logger),
	}, a.logger)

	r, err := router.New(router.Config{
		Root:                root,
		PollInterval:        cfg.Router.PollInterval.Duration(),
		PollLimit:           cfg.Router.PollLimit,
		ClaimTTL:            cfg.Router.ClaimTTL.Duration(),
		DuplicateWindow:     cfg.Router.DuplicateWindow.Duration(),
		CacheSize:           cfg.Router.CacheSize,
		CacheTTL:            cfg.Router.CacheTTL.Duration(),
		EscalationThreshold: cfg.Router.EscalationThreshold,
		KnowledgeLimit:      cfg.Knowledge.QueryLimit,
	}, router.Deps{
		Store:     a.store,
		Analyzer:  analyzer,
		Matcher:   pattern.NewMatcher(a.logger),
		Executor:  exec,
		Approvals: approvals,
		Plans:     plans,
		Scrubber:  a.scrubber,
		Claims:    claims,
		Planner:   planner,
		Corpus:    corpus,
		Publisher: publisher,
	}, a.logger)
	if err != nil {
		return err
	}
	a.router = r
	a.logger.Info("router ready",
		zap.String("root", root),
		zap.Bool("knowledge", corpus != nil),
		zap.Bool("llm", planner != nil),
		zap.Bool("remote", remoteRunner != nil),
		zap.Bool("supabase", sql != nil),
		zap.Bool("redis_claims", a.redis != nil))
	return nil
}

// pending returns the in-process approval queue, if any.
func (a *app) pending() interface{ Pending() []approval.Request } {
	if a.approvals == nil {
		return nil
	}
	return a.approvals
}

// healthChecks reports on the store and every optional connection.
func (a *app) healthChecks() map[string]apihttp.HealthCheck {
	checks := map[string]apihttp.HealthCheck{
		"store": func(ctx context.Context) error {
			_, err := a.store.List(ctx, ticket.Filter{Limit: 1})
			return err
		},
		"telemetry": func(context.Context) error {
			h := a.tel.Health()
			if h.Enabled && (!h.Healthy || h.Degraded) {
				return fmt.Errorf("telemetry degraded: %v", h.Reasons)
			}
			return nil
		},
	}
	if a.nc != nil {
		checks["nats"] = func(context.Context) error {
			if !a.nc.IsConnected() {
				return fmt.Errorf("nats %s", a.nc.Status())
			}
			return nil
		}
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	if a.temporal != nil {
		checks["temporal"] = func(ctx context.Context) error {
			_, err := a.temporal.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		}
	}
	return checks
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

var errNoKnowledge = errors.New("knowledge base is not configured (set knowledge.dir)")
