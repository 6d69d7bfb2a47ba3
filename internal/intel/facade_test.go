package intel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"multiview/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu            sync.Mutex
	generateCalls int
	chatCalls     int
	generateDelay time.Duration
	failWith      error
	lastSystem    string
	lastPrompt    string
}

func (c *fakeClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	c.mu.Lock()
	c.generateCalls++
	n := c.generateCalls
	c.lastSystem, c.lastPrompt = system, prompt
	delay, fail := c.generateDelay, c.failWith
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail != nil {
		return "", fail
	}
	return fmt.Sprintf("generated-%d", n), nil
}

func (c *fakeClient) StartChat(system string) Chat {
	c.mu.Lock()
	c.lastSystem = system
	c.mu.Unlock()
	return &fakeChat{client: c}
}

type fakeChat struct {
	client *fakeClient
}

func (ch *fakeChat) Send(ctx context.Context, message string) (string, error) {
	ch.client.mu.Lock()
	ch.client.chatCalls++
	n := ch.client.chatCalls
	fail := ch.client.failWith
	ch.client.mu.Unlock()
	if fail != nil {
		return "", fail
	}
	return fmt.Sprintf("answer-%d to %s", n, message), nil
}

type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func seededFacade(t *testing.T, client Client, opts ...Option) (*Facade, *transcript.Store) {
	t.Helper()
	store := transcript.NewStore()
	store.Put(transcript.Key{AgentID: "a1", VideoID: "v1"}, "en", []transcript.Segment{
		{StartS: 0, EndS: 5, Text: "the quick brown fox"},
		{StartS: 5, EndS: 10, Text: "jumps over the lazy dog"},
	})
	return NewFacade(client, store, nil, opts...), store
}

func TestExplainCachesPerMode(t *testing.T) {
	client := &fakeClient{}
	f, _ := seededFacade(t, client)

	first, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
	require.NoError(t, err)
	assert.Equal(t, "generated-1", first)
	assert.Contains(t, client.lastPrompt, "quick brown fox")
	assert.Contains(t, client.lastSystem, "Summarize")

	again, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, client.generateCalls, "second call served from cache")

	other, err := f.Explain(context.Background(), "a1", "v1", ModeExplain)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "modes cache independently")
	assert.Equal(t, 2, client.generateCalls)
}

func TestExplainSharesConcurrentRoundTrip(t *testing.T) {
	client := &fakeClient{generateDelay: 30 * time.Millisecond}
	f, _ := seededFacade(t, client)

	const callers = 8
	results := make([]string, callers)
	var wg sync.WaitGroup
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			text, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
			assert.NoError(t, err)
			results[n] = text
		}(n)
	}
	wg.Wait()

	assert.Equal(t, 1, client.generateCalls, "one round-trip per key and mode")
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestExplainWithoutTranscript(t *testing.T) {
	f, _ := seededFacade(t, &fakeClient{})
	_, err := f.Explain(context.Background(), "a1", "unknown", ModeSummary)
	assert.ErrorIs(t, err, ErrTranscriptUnavailable)
}

func TestMissingClientSurfacesAtSessionConstruction(t *testing.T) {
	f, _ := seededFacade(t, nil)
	_, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
	assert.ErrorIs(t, err, ErrConfigMissing)
	_, err = f.Ask(context.Background(), "a1", "v1", "q")
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestLLMFailureDoesNotPoisonCache(t *testing.T) {
	client := &fakeClient{failWith: errors.New("boom")}
	f, _ := seededFacade(t, client)

	_, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
	require.ErrorIs(t, err, ErrLLMUnavailable)

	client.mu.Lock()
	client.failWith = nil
	client.mu.Unlock()

	text, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestExplainTimeout(t *testing.T) {
	client := &fakeClient{generateDelay: time.Second}
	f, _ := seededFacade(t, client, WithLLMTimeout(10*time.Millisecond))

	_, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
	assert.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestAskAppendsHistoryInOrder(t *testing.T) {
	client := &fakeClient{}
	f, _ := seededFacade(t, client)

	_, err := f.Ask(context.Background(), "a1", "v1", "what is this about?")
	require.NoError(t, err)
	_, err = f.Ask(context.Background(), "a1", "v1", "and then?")
	require.NoError(t, err)

	assert.Contains(t, client.lastSystem, "quick brown fox", "transcript rides in with the session")

	turns := f.History("a1", "v1")
	require.Len(t, turns, 4)
	assert.Equal(t, Turn{Role: "user", Text: "what is this about?"}, turns[0])
	assert.Equal(t, "model", turns[1].Role)
	assert.Equal(t, Turn{Role: "user", Text: "and then?"}, turns[2])
}

func TestAskFailureLeavesHistoryUntouched(t *testing.T) {
	client := &fakeClient{}
	f, _ := seededFacade(t, client)

	_, err := f.Ask(context.Background(), "a1", "v1", "first")
	require.NoError(t, err)

	client.mu.Lock()
	client.failWith = errors.New("boom")
	client.mu.Unlock()

	_, err = f.Ask(context.Background(), "a1", "v1", "second")
	require.ErrorIs(t, err, ErrLLMUnavailable)
	assert.Len(t, f.History("a1", "v1"), 2)
}

func TestSessionEvictionByTimeout(t *testing.T) {
	clock := &testClock{at: time.Unix(1_700_000_000, 0)}
	client := &fakeClient{}
	f, store := seededFacade(t, client,
		WithSessionLimits(10, time.Minute),
		WithClock(clock.now),
	)
	store.Put(transcript.Key{AgentID: "a1", VideoID: "v2"}, "en", []transcript.Segment{{Text: "x"}})

	_, err := f.Explain(context.Background(), "a1", "v1", ModeSummary)
	require.NoError(t, err)
	require.Equal(t, 1, f.SessionCount())

	clock.advance(61 * time.Second)
	_, err = f.Ask(context.Background(), "a1", "v2", "q")
	require.NoError(t, err)

	assert.Equal(t, 1, f.SessionCount(), "expired session evicted before size check")
	assert.Equal(t, []SessionKey{{AgentID: "a1", VideoID: "v2"}}, f.SessionKeys())
}

func TestSessionEvictionByLRU(t *testing.T) {
	clock := &testClock{at: time.Unix(1_700_000_000, 0)}
	client := &fakeClient{}
	f, store := seededFacade(t, client,
		WithSessionLimits(2, 100*time.Hour),
		WithClock(clock.now),
	)
	for _, v := range []string{"k1", "k2", "k3"} {
		store.Put(transcript.Key{AgentID: "a1", VideoID: v}, "en", []transcript.Segment{{Text: v}})
	}

	for _, v := range []string{"k1", "k2", "k3"} {
		clock.advance(time.Second)
		_, err := f.Ask(context.Background(), "a1", v, "q")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, f.SessionCount())
	keys := f.SessionKeys()
	assert.ElementsMatch(t, []SessionKey{
		{AgentID: "a1", VideoID: "k2"},
		{AgentID: "a1", VideoID: "k3"},
	}, keys)
}

func TestDropAgentDiscardsSessions(t *testing.T) {
	client := &fakeClient{}
	f, _ := seededFacade(t, client)

	_, err := f.Ask(context.Background(), "a1", "v1", "q")
	require.NoError(t, err)
	require.Equal(t, 1, f.SessionCount())

	f.DropAgent("a1")
	assert.Equal(t, 0, f.SessionCount())
	assert.Nil(t, f.History("a1", "v1"))
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode(" Summary ")
	assert.True(t, ok)
	assert.Equal(t, ModeSummary, m)

	m, ok = ParseMode("explain")
	assert.True(t, ok)
	assert.Equal(t, ModeExplain, m)

	_, ok = ParseMode("eli5")
	assert.False(t, ok)
}
