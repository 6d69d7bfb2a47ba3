package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"multiview/internal/adblock"
	"multiview/internal/agent"
	"multiview/internal/browser"
	"multiview/internal/captions"
	"multiview/internal/config"
	"multiview/internal/events"
	"multiview/internal/inspect"
	"multiview/internal/intel"
	"multiview/internal/netguard"
	"multiview/internal/transcript"
)

// runCmd starts the browsing workspace
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the browsing workspace",
	Long: `Launches Chrome (or attaches to a running instance), installs the
request interception pipeline on every agent page, and serves the tiled
workspace until interrupted.`,
	RunE: runWorkspace,
}

func runWorkspace(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rule engine and filter lists, hot-reloaded on change.
	ruleEngine := adblock.NewEngine()
	loader := netguard.NewListLoader(ruleEngine, cfg.Blocking.FilterLists, cfg.Blocking.UseBuiltinList, logger)
	if err := loader.Load(); err != nil {
		return err
	}
	if err := loader.Watch(); err != nil {
		return err
	}
	defer loader.Close()

	audit := netguard.NewAuditLog(cfg.Blocking.AuditCapacity)
	interceptor := netguard.New(ruleEngine, audit, logger)
	interceptor.SetMode(netguard.ParseMode(cfg.Blocking.Mode))
	interceptor.SetAllowlist(cfg.Blocking.Allowlist)

	inspector := inspect.NewInspector(nil, cfg.Blocking.GenericStripping, logger)
	rewriter, err := inspect.NewManifestRewriter(cfg.Blocking.AdURLPattern, logger)
	if err != nil {
		return err
	}

	store := transcript.NewStore()
	extractor := captions.NewExtractor(store, nil, logger)
	bus := events.NewBus()

	facade, err := buildIntel(ctx, cfg, store)
	if err != nil {
		return err
	}

	pipeline := browser.NewPipeline(interceptor, inspector, rewriter, extractor, bus, logger)
	eng := browser.NewEngine(browser.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Headless:            cfg.Browser.Headless,
		NavigationTimeoutMs: cfg.Browser.NavigationTimeoutMs,
	}, pipeline, bus, logger)

	if err := eng.Start(ctx); err != nil {
		return err
	}

	registry := agent.NewRegistry()
	sched := agent.NewScheduler(eng, registry, bus, logger,
		agent.WithSlots(cfg.Workspace.Slots),
		agent.WithReconcileDelay(cfg.ReconcileDelay()),
		agent.WithTranscriptDeleter(store),
		agent.WithSessionDropper(facade),
	)
	sched.SetWindowSize(cfg.Workspace.WindowWidth, cfg.Workspace.WindowHeight)

	go logEvents(bus)

	if cfg.Workspace.StartURL != "" {
		if _, err := sched.NavigateNext(ctx, cfg.Workspace.StartURL); err != nil {
			logger.Warn("start navigation failed", zap.Error(err))
		}
	}

	logger.Info("workspace running",
		zap.Int("slots", cfg.Workspace.Slots),
		zap.String("block_mode", cfg.Blocking.Mode),
		zap.Bool("intel", cfg.Intel.APIKey != ""))

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", zap.Error(err))
	}

	stats := ruleEngine.Stats()
	logger.Info("session stats",
		zap.Uint64("requests_checked", stats.Checked),
		zap.Uint64("requests_blocked", stats.Blocked),
		zap.Int("audit_rows", audit.Len()),
		zap.Uint64("audit_dropped", audit.Dropped()))
	return nil
}

// buildIntel wires the Gemini-backed facade when an API key is configured.
// Without a key the workspace still runs; transcript explanations report
// the missing configuration on use.
func buildIntel(ctx context.Context, cfg *config.Config, store *transcript.Store) (*intel.Facade, error) {
	var client intel.Client
	if cfg.Intel.APIKey == "" {
		logger.Warn("no Gemini API key configured, transcript explanations disabled")
	} else {
		gc, err := intel.NewGeminiClient(ctx, cfg.Intel.APIKey, cfg.Intel.Model)
		if err != nil {
			return nil, err
		}
		client = gc
	}
	return intel.NewFacade(client, store, logger,
		intel.WithSessionLimits(cfg.Intel.MaxSessions, cfg.SessionTTL()),
		intel.WithLLMTimeout(cfg.LLMTimeout()),
	), nil
}

func logEvents(bus *events.Bus) {
	ch, cancel := bus.Subscribe(256)
	defer cancel()
	for ev := range ch {
		switch ev.Type {
		case events.RequestBlocked:
			logger.Debug("request blocked",
				zap.String("agent", ev.AgentID),
				zap.String("url", ev.URL),
				zap.String("rule", ev.Detail))
		case events.TranscriptAvailable:
			logger.Info("transcript captured",
				zap.String("agent", ev.AgentID),
				zap.String("video", ev.Detail))
		default:
			logger.Debug("workspace event",
				zap.String("type", string(ev.Type)),
				zap.String("agent", ev.AgentID),
				zap.String("url", ev.URL))
		}
	}
}
