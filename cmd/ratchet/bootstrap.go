package main

import (
	"context"
	"time"

	"github.com/michiel/ratchet-sub007/internal/cache"
	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/executor"
	"github.com/michiel/ratchet-sub007/internal/httpapi"
	"github.com/michiel/ratchet-sub007/internal/jobqueue"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/mcp"
	"github.com/michiel/ratchet-sub007/internal/metrics"
	"github.com/michiel/ratchet-sub007/internal/output"
	"github.com/michiel/ratchet-sub007/internal/registry"
	"github.com/michiel/ratchet-sub007/internal/repository"
	"github.com/michiel/ratchet-sub007/internal/repository/postgres"
	"github.com/michiel/ratchet-sub007/internal/scheduler"
)

// app bundles every wired component a serve/mcp-serve run needs. It exists
// so Start/Stop can sequence the whole pipeline in one place instead of
// each subcommand repeating the wiring, mirroring mcp-north-cloud/main.go's
// single-function bootstrap and crawler/cmd/httpd's RunE closures.
type app struct {
	cfg  *config.RootConfig
	log  logger.Logger
	repo repository.Factory

	queue *jobqueue.Processor
	sched *scheduler.Scheduler
	cch   *cache.Cache
	reg   *registry.Registry
	mtr   *metrics.Metrics

	stdio *mcp.StdioTransport
	sse   *mcp.SSEServer

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// bootstrap loads configuration and wires every component of the execution
// pipeline, but starts nothing: call Start once the caller is ready to run.
// stderrLog forces log output to stderr, required by the stdio MCP
// transport since stdout carries JSON-RPC frames.
func bootstrap(stderrLog bool) (*app, error) {
	cfg, err := config.Load[config.RootConfig](cfgFile)
	if err != nil {
		return nil, errs.Wrap(errs.CategoryConfiguration, err, "load configuration")
	}

	logCfg := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if stderrLog {
		logCfg.OutputPaths = []string{"stderr"}
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, errs.Wrap(errs.CategoryConfiguration, err, "build logger")
	}

	repo, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, errs.Server(err, "connect to database")
	}

	exec := executor.NewExecutor(cfg.Executor)
	cch := cache.New(cfg.Cache, log)
	deliv := output.NewDispatcher(cfg.Output, log)
	mtr := metrics.New()

	queue := jobqueue.New(cfg.JobQueue, repo.Jobs(), repo.Executions(),
		jobqueue.NewRepositoryTaskLookup(repo.Tasks()), exec, cch, deliv, log)
	sched := scheduler.New(cfg.Scheduler, repo.Schedules(), queue, log)

	var sources []registry.Source
	if cfg.Registry.FilesystemRoot != "" {
		sources = append(sources, registry.NewFilesystemSource(cfg.Registry.FilesystemRoot, true))
	}
	reg := registry.New(cfg.Registry, repo.Tasks(), log, sources...)

	sessions := mcp.NewSessionManager(cfg.MCP.SessionTimeout, cfg.MCP.SSEBufferSize)
	scope := mcp.NewToolScope(cfg.MCP.Environment, cfg.MCP.AllowDangerousTasks)
	tools := mcp.NewScopedToolRegistry(repo.Tasks(), repo.Executions(), queue, cch, scope)
	resources := mcp.NewResourceRegistry(repo.Tasks(), repo.Executions())

	authMode := mcp.AuthNone
	if cfg.MCP.RequireAuth {
		authMode = mcp.AuthBearer
	}
	auth := mcp.NewAuthenticator(mcp.AuthConfig{Mode: authMode, JWTSecret: cfg.MCP.JWTSecret})
	limiter := mcp.NewRateLimiter(mcp.RateLimitConfig{
		MaxRequests: cfg.MCP.RateLimitPerWindow,
		Window:      cfg.MCP.RateLimitWindow,
		Burst:       cfg.MCP.RateLimitBurst,
	})
	audit := mcp.NewAuditLogger(true, log)
	dispatcher := mcp.NewDispatcher(sessions, tools, resources, auth, limiter, audit, log)

	return &app{
		cfg:   cfg,
		log:   log,
		repo:  repo,
		queue: queue,
		sched: sched,
		cch:   cch,
		reg:   reg,
		mtr:   mtr,
		stdio: mcp.NewStdioTransport(dispatcher, sessions, log),
		sse:   mcp.NewSSEServer(dispatcher, sessions, log),
	}, nil
}

// Start performs the initial registry sync, then launches the job
// processor, cron scheduler, filesystem watch and result-cache sweep loop.
// It does not block; callers run their chosen transport afterwards.
func (a *app) Start(ctx context.Context) error {
	if err := a.reg.SyncAll(ctx); err != nil {
		return errs.Server(err, "initial task registry sync")
	}
	if err := a.reg.StartWatch(ctx); err != nil {
		return errs.Server(err, "start registry filesystem watch")
	}
	if err := a.queue.Start(ctx); err != nil {
		return errs.Server(err, "start job queue processor")
	}
	if err := a.sched.Start(ctx); err != nil {
		return errs.Server(err, "start scheduler")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	a.sweepCancel = cancel
	a.sweepDone = make(chan struct{})
	go a.sweepLoop(sweepCtx)

	return nil
}

func (a *app) sweepLoop(ctx context.Context) {
	defer close(a.sweepDone)
	interval := a.cfg.Cache.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cch.Sweep()
		}
	}
}

// RunHTTP applies host/port overrides, starts the HTTP API (MCP SSE
// transport plus /metrics) and blocks until it shuts down gracefully.
func (a *app) RunHTTP(ctx context.Context, host string, port int) error {
	if host != "" {
		a.cfg.Server.Host = host
	}
	if port != 0 {
		a.cfg.Server.Port = port
	}
	srv := httpapi.New(a.cfg.Server, a.log, a.mtr, a.sse.Register)
	if err := srv.RunWithGracefulShutdown(ctx); err != nil {
		return errs.Server(err, "http server")
	}
	return nil
}

// Stop tears every component down in reverse dependency order and closes
// the database connection last.
func (a *app) Stop() {
	if a.sweepCancel != nil {
		a.sweepCancel()
		<-a.sweepDone
	}
	a.sched.Stop()
	a.queue.Stop()
	a.reg.StopWatch()
	if err := a.repo.Close(); err != nil {
		a.log.Error("failed to close database connection", logger.Error(err))
	}
	_ = a.log.Sync()
}
