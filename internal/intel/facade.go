package intel

import (
	"context"
	"fmt"
	"time"

	"multiview/internal/transcript"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultLLMTimeout caps one LLM round-trip.
const DefaultLLMTimeout = 45 * time.Second

// Facade is the only surface the rest of the program talks to for video
// intelligence. Transcripts are looked up by key on every call, never held
// by reference, so transcript eviction cannot dangle a session.
type Facade struct {
	client  Client
	store   *transcript.Store
	cache   *sessionCache
	group   singleflight.Group
	timeout time.Duration
	logger  *zap.Logger
}

// Option tweaks facade construction.
type Option func(*Facade)

// WithSessionLimits overrides the cache size and idle timeout.
func WithSessionLimits(max int, ttl time.Duration) Option {
	return func(f *Facade) { f.cache = newSessionCache(max, ttl, f.cache.now) }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.cache = newSessionCache(f.cache.max, f.cache.ttl, now) }
}

// WithLLMTimeout overrides the per-round-trip deadline.
func WithLLMTimeout(d time.Duration) Option {
	return func(f *Facade) { f.timeout = d }
}

// NewFacade builds the facade. A nil client is allowed; every session
// construction then fails with ErrConfigMissing.
func NewFacade(client Client, store *transcript.Store, logger *zap.Logger, opts ...Option) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Facade{
		client:  client,
		store:   store,
		cache:   newSessionCache(DefaultMaxSessions, DefaultSessionTTL, time.Now),
		timeout: DefaultLLMTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Explain produces (or returns the cached) mode-specific explanation of the
// video's transcript. Concurrent calls for the same key and mode share a
// single LLM round-trip.
func (f *Facade) Explain(ctx context.Context, agentID, videoID string, mode Mode) (string, error) {
	sess, err := f.ensure(agentID, videoID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	if cached, ok := sess.explanations[mode]; ok {
		sess.mu.Unlock()
		return cached, nil
	}
	sess.mu.Unlock()

	flightKey := fmt.Sprintf("%s\x00%s\x00%s", agentID, videoID, mode)
	v, err, _ := f.group.Do(flightKey, func() (interface{}, error) {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if cached, ok := sess.explanations[mode]; ok {
			return cached, nil
		}

		prompt := f.store.FullText(transcript.Key{AgentID: agentID, VideoID: videoID})
		llmCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		text, err := f.client.Generate(llmCtx, modeInstruction(mode), prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
		}
		sess.explanations[mode] = text
		f.logger.Debug("explanation produced",
			zap.String("agent", agentID),
			zap.String("video", videoID),
			zap.String("mode", string(mode)))
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Ask sends a question to the session's conversational handle. The handle
// carries prior turns; the transcript went in with the first one.
func (f *Facade) Ask(ctx context.Context, agentID, videoID, question string) (string, error) {
	sess, err := f.ensure(agentID, videoID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	llmCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	answer, err := sess.chat.Send(llmCtx, question)
	if err != nil {
		// History stays untouched on failure.
		return "", fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	sess.history = append(sess.history,
		Turn{Role: "user", Text: question},
		Turn{Role: "model", Text: answer},
	)
	return answer, nil
}

// History returns a copy of the session's conversation so far. A session
// that was never created (or has been evicted) has no history.
func (f *Facade) History(agentID, videoID string) []Turn {
	sess, ok := f.cache.get(SessionKey{AgentID: agentID, VideoID: videoID})
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.history))
	copy(out, sess.history)
	return out
}

// DropAgent discards every session belonging to the agent. The scheduler
// calls this on agent destruction, after deleting the transcripts.
func (f *Facade) DropAgent(agentID string) {
	f.cache.deleteAgent(agentID)
}

// SessionCount reports live sessions.
func (f *Facade) SessionCount() int {
	return f.cache.len()
}

// SessionKeys lists live session keys, unordered.
func (f *Facade) SessionKeys() []SessionKey {
	return f.cache.keys()
}

// ensure resolves the session for the pair, creating it when absent. The
// transcript must already exist; the client must be configured.
func (f *Facade) ensure(agentID, videoID string) (*session, error) {
	key := SessionKey{AgentID: agentID, VideoID: videoID}
	if !f.store.Has(transcript.Key{AgentID: agentID, VideoID: videoID}) {
		return nil, ErrTranscriptUnavailable
	}
	if f.client == nil {
		return nil, ErrConfigMissing
	}

	return f.cache.ensure(key, func() *session {
		system := chatInstruction + "\n\n" + f.store.FullText(transcript.Key{AgentID: agentID, VideoID: videoID})
		return &session{
			key:          key,
			chat:         f.client.StartChat(system),
			explanations: make(map[Mode]string),
		}
	}), nil
}
