//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"multiview/internal/adblock"
	"multiview/internal/agent"
	"multiview/internal/browser"
	"multiview/internal/captions"
	"multiview/internal/events"
	"multiview/internal/inspect"
	"multiview/internal/netguard"
	"multiview/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a local Chrome; run with -tags integration.
func TestEngineInterceptsAndCaptures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body>
			<script src="/tracker/ad.js"></script>
			<h1>Hello</h1>
			<script>fetch('/api/timedtext?v=vid1&lang=en');</script>
		</body></html>`)
	})
	mux.HandleFunc("/tracker/ad.js", func(w http.ResponseWriter, r *http.Request) {
		t.Error("ad script was fetched despite block rule")
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"events":[{"tStartMs":0,"dDurationMs":1000,"segs":[{"utf8":"hi"}]}]}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	engine := adblock.NewEngine()
	res := adblock.ParseList("test", "/tracker/*\n")
	require.Empty(t, res.Warnings)
	engine.Load(res.Rules)

	store := transcript.NewStore()
	audit := netguard.NewAuditLog(64)
	bus := events.NewBus()
	rewriter, err := inspect.NewManifestRewriter("", nil)
	require.NoError(t, err)

	pipeline := browser.NewPipeline(
		netguard.New(engine, audit, nil),
		inspect.NewInspector(nil, false, nil),
		rewriter,
		captions.NewExtractor(store, nil, nil),
		bus,
		nil,
	)

	eng := browser.NewEngine(browser.Config{Headless: true}, pipeline, bus, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, eng.Start(ctx))
	defer eng.Shutdown(ctx)

	const agentID = "agent-it"
	require.NoError(t, eng.CreateView(ctx, agentID, agent.Bounds{W: 1280, H: 720}))
	require.NoError(t, eng.Navigate(ctx, agentID, ts.URL))

	require.Eventually(t, func() bool {
		return audit.Len() > 0 && store.Has(transcript.Key{AgentID: agentID, VideoID: "vid1"})
	}, 30*time.Second, 200*time.Millisecond)

	rows := audit.Rows()
	assert.Equal(t, "test:1", rows[0].RuleID)
	assert.Equal(t, "hi", store.FullText(transcript.Key{AgentID: agentID, VideoID: "vid1"}))

	require.NoError(t, eng.DestroyView(ctx, agentID))
	require.NoError(t, eng.DestroyView(ctx, agentID), "idempotent")
}
