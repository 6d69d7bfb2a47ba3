package netguard

import (
	"net/http"
	"testing"

	"multiview/internal/adblock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInterceptor(t *testing.T, rules string) *Interceptor {
	t.Helper()
	engine := adblock.NewEngine()
	if rules != "" {
		res := adblock.ParseList("X", rules)
		require.Empty(t, res.Warnings)
		engine.Load(res.Rules)
	}
	return New(engine, NewAuditLog(16), nil)
}

func TestDecideOffModeAllowsEverything(t *testing.T) {
	i := newTestInterceptor(t, "||ads.example.com^\n")
	i.SetMode(ModeOff)
	d := i.Decide("a1", &InterceptRequest{URL: "https://ads.example.com/a.js", ResourceType: "script"})
	assert.False(t, d.Block)
	assert.Equal(t, "off", d.Reason)
	assert.Equal(t, 0, i.Audit().Len())
}

func TestDecideBlockRecordsAudit(t *testing.T) {
	i := newTestInterceptor(t, "||ads.example.com^\n")
	d := i.Decide("a1", &InterceptRequest{
		URL:          "https://ads.example.com/a.jpg",
		Method:       "GET",
		ResourceType: "image",
		PageURL:      "https://news.example.org/story",
	})
	require.True(t, d.Block)
	assert.Equal(t, "X:1", d.RuleID)
	assert.Equal(t, "rule", d.Reason)

	rows := i.Audit().Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].AgentID)
	assert.Equal(t, "ads.example.com", rows[0].Host)
	assert.Equal(t, "X:1", rows[0].RuleID)
	assert.Equal(t, "block", rows[0].Action)
	assert.NotEmpty(t, rows[0].RequestID)
}

func TestDecideBlockThenAllowScenario(t *testing.T) {
	i := newTestInterceptor(t, "||ads.example.com^\n@@||ads.example.com^$script\n")

	script := i.Decide("a1", &InterceptRequest{
		URL: "https://ads.example.com/a.js", Method: "GET", ResourceType: "script",
	})
	assert.False(t, script.Block)
	assert.Equal(t, "X:2", script.RuleID)

	image := i.Decide("a1", &InterceptRequest{
		URL: "https://ads.example.com/a.jpg", Method: "GET", ResourceType: "image",
	})
	assert.True(t, image.Block)
	assert.Equal(t, "X:1", image.RuleID)
}

func TestAllowlistShortCircuitsRules(t *testing.T) {
	i := newTestInterceptor(t, "||ads.example.com^\n")
	i.SetAllowlist([]string{"*.example.com"})
	d := i.Decide("a1", &InterceptRequest{URL: "https://ads.example.com/a.js", ResourceType: "script"})
	assert.False(t, d.Block)
	assert.Equal(t, "allowlist", d.Reason)
}

func TestAllowlistModeSkipsEngine(t *testing.T) {
	i := newTestInterceptor(t, "||ads.example.com^\n")
	i.SetMode(ModeAllowlist)
	d := i.Decide("a1", &InterceptRequest{URL: "https://ads.example.com/a.js", ResourceType: "script"})
	assert.False(t, d.Block)
	assert.Equal(t, "default", d.Reason)
}

func TestStrictModeStripsThirdPartyReferer(t *testing.T) {
	i := newTestInterceptor(t, "")
	i.SetMode(ModeStrict)

	headers := http.Header{}
	headers.Set("Referer", "https://news.example.org/")
	headers.Set("X-Client-Data", "blob")

	third := i.Decide("a1", &InterceptRequest{
		URL:          "https://cdn.widgets.net/w.js",
		ResourceType: "script",
		PageURL:      "https://news.example.org/story",
		Headers:      headers,
	})
	require.NotNil(t, third.HeaderMods)
	assert.Equal(t, "", third.HeaderMods["Referer"])
	assert.Equal(t, "", third.HeaderMods["X-Client-Data"])

	first := i.Decide("a1", &InterceptRequest{
		URL:          "https://news.example.org/app.js",
		ResourceType: "script",
		PageURL:      "https://news.example.org/story",
		Headers:      http.Header{"Referer": []string{"https://news.example.org/"}},
	})
	_, hasReferer := first.HeaderMods["Referer"]
	assert.False(t, hasReferer, "first-party Referer survives strict mode")
}

func TestTrackingHeadersStrippedInBalancedMode(t *testing.T) {
	i := newTestInterceptor(t, "")
	headers := http.Header{}
	headers.Set("X-Tracking-ID", "t")
	headers.Set("Accept", "*/*")

	d := i.Decide("a1", &InterceptRequest{
		URL: "https://site.example/app.js", ResourceType: "script", Headers: headers,
	})
	require.NotNil(t, d.HeaderMods)
	assert.Equal(t, "", d.HeaderMods["X-Tracking-Id"])
	_, hasAccept := d.HeaderMods["Accept"]
	assert.False(t, hasAccept)
}

func TestThirdPartyClassification(t *testing.T) {
	cases := []struct {
		request, page string
		want          bool
	}{
		{"ads.example.com", "www.example.com", false},
		{"tracker.net", "www.example.com", true},
		{"static.news.co.uk", "www.news.co.uk", false},
		{"evil.co.uk", "news.co.uk", true},
		{"anything.example", "", false},
	}
	for _, tc := range cases {
		got := isThirdParty(tc.request, tc.page)
		assert.Equal(t, tc.want, got, "%s on %s", tc.request, tc.page)
	}
}

func TestAuditHalvesWhenFull(t *testing.T) {
	l := NewAuditLog(10)
	for n := 0; n < 10; n++ {
		l.Append(AuditRow{URL: "u", Host: "h"})
	}
	assert.Equal(t, 10, l.Len())

	l.Append(AuditRow{Host: "newest"})
	assert.Equal(t, 6, l.Len(), "oldest half dropped in one operation")
	assert.Equal(t, uint64(5), l.Dropped())

	rows := l.Recent(1)
	require.Len(t, rows, 1)
	assert.Equal(t, "newest", rows[0].Host)
}
