// Package browser drives the shared Chrome instance. It implements the
// scheduler's view-engine contract: one incognito page per agent, each with
// a network hijack router feeding the interception pipeline, and a CDP
// event stream feeding agent status onto the bus.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"multiview/internal/agent"
	"multiview/internal/events"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser engine configuration.
type Config struct {
	DebuggerURL         string `json:"debugger_url" yaml:"debugger_url"`
	Headless            bool   `json:"headless" yaml:"headless"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms" yaml:"navigation_timeout_ms"`
}

// NavigationTimeout returns the navigation timeout with its default.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

type viewRecord struct {
	agentID string
	page    *rod.Page
	router  *rod.HijackRouter
	cancel  context.CancelFunc

	mu      sync.Mutex
	pageURL string
}

func (v *viewRecord) currentURL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pageURL
}

func (v *viewRecord) setURL(u string) {
	v.mu.Lock()
	v.pageURL = u
	v.mu.Unlock()
}

// Engine owns the Chrome connection and the per-agent pages.
type Engine struct {
	cfg      Config
	pipeline *Pipeline
	bus      *events.Bus
	logger   *zap.Logger

	mu         sync.RWMutex
	browser    *rod.Browser
	views      map[string]*viewRecord
	controlURL string
}

// NewEngine builds an engine. The pipeline may be nil for a passthrough
// engine without interception.
func NewEngine(cfg Config, pipeline *Pipeline, bus *events.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		pipeline: pipeline,
		bus:      bus,
		logger:   logger,
		views:    make(map[string]*viewRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		if _, err := e.browser.Version(); err == nil {
			return nil
		}
		e.logger.Warn("stale browser connection, reconnecting")
		_ = e.browser.Close()
		e.browser = nil
		e.views = make(map[string]*viewRecord)
	}

	controlURL := e.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(e.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	e.browser = browser
	e.controlURL = controlURL
	e.logger.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

func (e *Engine) ensureStarted(ctx context.Context) error {
	e.mu.RLock()
	started := e.browser != nil
	e.mu.RUnlock()
	if started {
		return nil
	}
	return e.Start(ctx)
}

// ControlURL returns the DevTools WebSocket URL.
func (e *Engine) ControlURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.controlURL
}

// Shutdown destroys every view and closes the browser.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, rec := range e.views {
		e.teardown(rec)
		delete(e.views, id)
	}

	var err error
	if e.browser != nil {
		err = e.browser.Close()
		e.browser = nil
	}
	e.controlURL = ""
	return err
}

// CreateView opens an incognito page for the agent, wires the interception
// router, and starts the status event stream.
func (e *Engine) CreateView(ctx context.Context, agentID string, bounds agent.Bounds) error {
	if err := e.ensureStarted(ctx); err != nil {
		return err
	}

	e.mu.RLock()
	browser := e.browser
	e.mu.RUnlock()
	if browser == nil {
		return errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}

	if err := applyBounds(page, bounds); err != nil {
		e.logger.Warn("set viewport failed", zap.String("agent", agentID), zap.Error(err))
	}

	rec := &viewRecord{agentID: agentID, page: page}
	if e.pipeline != nil {
		router, err := e.pipeline.Attach(agentID, page, rec.currentURL)
		if err != nil {
			_ = page.Close()
			return fmt.Errorf("attach hijack router: %w", err)
		}
		rec.router = router
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	rec.cancel = cancel
	e.startStatusStream(streamCtx, rec)

	e.mu.Lock()
	e.views[agentID] = rec
	e.mu.Unlock()

	e.logger.Debug("view created", zap.String("agent", agentID))
	return nil
}

// Navigate sends the agent's page to the URL.
func (e *Engine) Navigate(ctx context.Context, agentID, url string) error {
	rec, ok := e.view(agentID)
	if !ok {
		return fmt.Errorf("no view for agent %s", agentID)
	}
	rec.setURL(url)
	if err := rec.page.Context(ctx).Timeout(e.cfg.NavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// SetBounds resizes the agent's viewport.
func (e *Engine) SetBounds(ctx context.Context, agentID string, bounds agent.Bounds) error {
	rec, ok := e.view(agentID)
	if !ok {
		return fmt.Errorf("no view for agent %s", agentID)
	}
	return applyBounds(rec.page.Context(ctx), bounds)
}

// DestroyView closes the agent's page. Unknown agents are a no-op.
func (e *Engine) DestroyView(ctx context.Context, agentID string) error {
	e.mu.Lock()
	rec, ok := e.views[agentID]
	if ok {
		delete(e.views, agentID)
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}
	e.teardown(rec)
	e.logger.Debug("view destroyed", zap.String("agent", agentID))
	return nil
}

func (e *Engine) teardown(rec *viewRecord) {
	if rec.cancel != nil {
		rec.cancel()
	}
	if rec.router != nil {
		_ = rec.router.Stop()
	}
	if rec.page != nil {
		_ = rec.page.Close()
	}
}

func (e *Engine) view(agentID string) (*viewRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.views[agentID]
	return rec, ok
}

// startStatusStream publishes agent status transitions from CDP page
// events. Frame navigations also refresh the page URL the interception
// pipeline uses for third-party classification.
func (e *Engine) startStatusStream(ctx context.Context, rec *viewRecord) {
	page := rec.page.Context(ctx)
	wait := page.EachEvent(
		func(ev *proto.PageFrameStartedLoading) {
			e.publishStatus(rec, string(agent.StatusLoading), "")
		},
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame.ParentID != "" {
				return
			}
			rec.setURL(ev.Frame.URL)
			e.publishStatus(rec, string(agent.StatusLoading), ev.Frame.URL)
		},
		func(ev *proto.PageLoadEventFired) {
			if e.bus != nil {
				e.bus.Publish(events.Event{
					Type:    events.AgentLoaded,
					AgentID: rec.agentID,
					URL:     rec.currentURL(),
				})
			}
		},
	)
	go wait()
}

func (e *Engine) publishStatus(rec *viewRecord, status, url string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		Type:    events.AgentStatus,
		AgentID: rec.agentID,
		URL:     url,
		Detail:  status,
	})
}

func applyBounds(page *rod.Page, b agent.Bounds) error {
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             b.W,
		Height:            b.H,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}.Call(page)
}
