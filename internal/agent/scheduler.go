package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"multiview/internal/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSlots is the workspace grid size.
const DefaultSlots = 4

// ViewEngine is the browser-engine collaborator the scheduler drives.
type ViewEngine interface {
	CreateView(ctx context.Context, agentID string, bounds Bounds) error
	Navigate(ctx context.Context, agentID, url string) error
	SetBounds(ctx context.Context, agentID string, bounds Bounds) error
	DestroyView(ctx context.Context, agentID string) error
}

// TranscriptDeleter reclaims per-agent transcript memory on destruction.
type TranscriptDeleter interface {
	DeleteAgent(agentID string) int
}

// SessionDropper discards per-agent LLM sessions on destruction.
type SessionDropper interface {
	DropAgent(agentID string)
}

// Scheduler places agents into slots, round-robins navigation across them,
// and keeps every view's bounds reconciled with the current layout.
type Scheduler struct {
	engine      ViewEngine
	registry    *Registry
	bus         *events.Bus
	transcripts TranscriptDeleter
	sessions    SessionDropper
	logger      *zap.Logger

	mu         sync.Mutex
	slots      int
	cursor     int
	width      int
	height     int
	fullscreen string // agent id, "" when none

	reconciler *debouncer
}

// SchedulerOption tweaks construction.
type SchedulerOption func(*Scheduler)

// WithSlots overrides the grid size.
func WithSlots(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.slots = n
		}
	}
}

// WithReconcileDelay overrides the layout debounce; zero reconciles inline.
func WithReconcileDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.reconciler = newDebouncer(d) }
}

// WithTranscriptDeleter wires transcript reclamation into Destroy.
func WithTranscriptDeleter(d TranscriptDeleter) SchedulerOption {
	return func(s *Scheduler) { s.transcripts = d }
}

// WithSessionDropper wires LLM session reclamation into Destroy.
func WithSessionDropper(d SessionDropper) SchedulerOption {
	return func(s *Scheduler) { s.sessions = d }
}

// NewScheduler builds a scheduler over the engine. The bus may be nil when
// nobody listens.
func NewScheduler(engine ViewEngine, registry *Registry, bus *events.Bus, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		engine:     engine,
		registry:   registry,
		bus:        bus,
		logger:     logger,
		slots:      DefaultSlots,
		width:      1920,
		height:     1080,
		reconciler: newDebouncer(DefaultReconcileDelay),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInSlot creates a new agent in the slot and returns its id. Slots
// outside the grid are rejected; every registered slot stays placeable by
// reconciliation.
func (s *Scheduler) CreateInSlot(ctx context.Context, slot int) (string, error) {
	s.mu.Lock()
	if slot < 0 || slot >= s.slots {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %d not in [0..%d)", ErrInvalidSlot, slot, s.slots)
	}
	bounds := s.slotBoundsLocked(slot)
	s.mu.Unlock()

	id := uuid.NewString()
	if err := s.registry.Insert(id, slot, bounds); err != nil {
		return "", err
	}
	if err := s.engine.CreateView(ctx, id, bounds); err != nil {
		s.registry.Remove(id)
		return "", fmt.Errorf("create view: %w", err)
	}

	s.logger.Info("agent created", zap.String("agent", id), zap.Int("slot", slot))
	s.publish(events.Event{Type: events.AgentCreated, AgentID: id, Slot: slot})
	s.requestReconcile()
	return id, nil
}

// Destroy tears an agent down and reclaims its transcripts and sessions.
// Destroying an unknown agent is a no-op.
func (s *Scheduler) Destroy(ctx context.Context, agentID string) error {
	a, ok := s.registry.Get(agentID)
	if !ok {
		return nil
	}

	if err := s.engine.DestroyView(ctx, agentID); err != nil {
		return fmt.Errorf("destroy view: %w", err)
	}
	s.registry.Remove(agentID)

	s.mu.Lock()
	if s.fullscreen == agentID {
		s.fullscreen = ""
	}
	s.mu.Unlock()

	if s.transcripts != nil {
		n := s.transcripts.DeleteAgent(agentID)
		if n > 0 {
			s.logger.Debug("transcripts reclaimed", zap.String("agent", agentID), zap.Int("count", n))
		}
	}
	if s.sessions != nil {
		s.sessions.DropAgent(agentID)
	}

	s.logger.Info("agent destroyed", zap.String("agent", agentID), zap.Int("slot", a.Slot))
	s.publish(events.Event{Type: events.AgentDestroyed, AgentID: agentID, Slot: a.Slot})
	s.requestReconcile()
	return nil
}

// Navigate sends the agent to the URL. Inputs without a scheme get
// https:// prepended; nothing else is rewritten at this layer.
func (s *Scheduler) Navigate(ctx context.Context, agentID, url string) error {
	url = NormalizeURL(url)
	if _, ok := s.registry.Get(agentID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if err := s.engine.Navigate(ctx, agentID, url); err != nil {
		_ = s.registry.SetStatus(agentID, StatusError)
		return err
	}
	_ = s.registry.SetURL(agentID, url)
	_ = s.registry.SetStatus(agentID, StatusLoading)

	s.publish(events.Event{Type: events.AgentNavigated, AgentID: agentID, URL: url})
	return nil
}

// SetBounds moves one agent. Setting the bounds an agent already has is a
// no-op and does not touch the engine.
func (s *Scheduler) SetBounds(ctx context.Context, agentID string, bounds Bounds) error {
	a, ok := s.registry.Get(agentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if a.Bounds == bounds {
		return nil
	}
	if err := s.registry.SetBounds(agentID, bounds); err != nil {
		return err
	}
	return s.engine.SetBounds(ctx, agentID, bounds)
}

// NavigateNext places the URL at the cursor's slot, creating an agent there
// if the slot is empty, and advances the cursor exactly once.
func (s *Scheduler) NavigateNext(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	slot := s.cursor
	s.cursor = (s.cursor + 1) % s.slots
	s.mu.Unlock()

	var agentID string
	if existing, ok := s.registry.AtSlot(slot); ok {
		agentID = existing.ID
	} else {
		id, err := s.CreateInSlot(ctx, slot)
		if err != nil {
			return "", err
		}
		agentID = id
	}
	if err := s.Navigate(ctx, agentID, url); err != nil {
		return "", err
	}
	return agentID, nil
}

// Cursor returns the next slot NavigateNext will use.
func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// SetWindowSize records the window and schedules reconciliation.
func (s *Scheduler) SetWindowSize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
	s.requestReconcile()
}

// Fullscreen expands one agent over the whole window. At most one agent is
// fullscreen at a time; entering preserves identity.
func (s *Scheduler) Fullscreen(agentID string) error {
	if _, ok := s.registry.Get(agentID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	s.mu.Lock()
	s.fullscreen = agentID
	s.mu.Unlock()
	s.requestReconcile()
	return nil
}

// ExitFullscreen restores the grid for everyone.
func (s *Scheduler) ExitFullscreen() {
	s.mu.Lock()
	s.fullscreen = ""
	s.mu.Unlock()
	s.requestReconcile()
}

// ReconcileLayout recomputes every live agent's bounds and pushes the ones
// that changed to the engine. It runs immediately; layout events arriving
// through SetWindowSize and friends are debounced instead.
func (s *Scheduler) ReconcileLayout() {
	s.reconciler.cancel()
	s.reconcile()
}

func (s *Scheduler) requestReconcile() {
	s.reconciler.debounce(s.reconcile)
}

func (s *Scheduler) reconcile() {
	s.mu.Lock()
	width, height := s.width, s.height
	fullscreen := s.fullscreen
	slots := s.slots
	s.mu.Unlock()

	ctx := context.Background()
	grid := GridLayout(width, height, slots)

	for _, a := range s.registry.List() {
		target := Bounds{X: 0, Y: 0, W: width, H: height}
		if fullscreen == "" {
			if a.Slot >= len(grid) {
				continue
			}
			target = grid[a.Slot]
		} else if a.ID != fullscreen {
			continue
		}
		if err := s.SetBounds(ctx, a.ID, target); err != nil {
			s.logger.Warn("reconcile set bounds failed",
				zap.String("agent", a.ID),
				zap.Error(err))
		}
	}
}

// slotBoundsLocked computes the grid rectangle for a slot; callers hold mu.
func (s *Scheduler) slotBoundsLocked(slot int) Bounds {
	grid := GridLayout(s.width, s.height, s.slots)
	if slot >= 0 && slot < len(grid) {
		return grid[slot]
	}
	return Bounds{W: s.width, H: s.height}
}

// Close cancels pending reconciliation work.
func (s *Scheduler) Close() {
	s.reconciler.cancel()
}

// NormalizeURL prepends https:// when the input lacks a scheme.
func NormalizeURL(url string) string {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return trimmed
	}
	if strings.Contains(trimmed, "://") || strings.HasPrefix(trimmed, "about:") {
		return trimmed
	}
	return "https://" + trimmed
}

func (s *Scheduler) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
