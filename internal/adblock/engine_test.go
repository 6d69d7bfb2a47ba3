package adblock

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRules(t *testing.T, source, text string) []*Rule {
	t.Helper()
	res := ParseList(source, text)
	require.Empty(t, res.Warnings)
	return res.Rules
}

func TestEmptyEngineNeverBlocks(t *testing.T) {
	e := NewEngine()
	for _, host := range []string{"", "example.com", "ads.example.com"} {
		res := e.Match(&Request{Host: host, Path: "/x", ResourceType: "script"})
		assert.False(t, res.Matched, "host %q", host)
	}
}

func TestBlockThenAllowWithPriority(t *testing.T) {
	// Exceptions get half the priority of block rules, so allow beats block
	// at the same source when both predicates hold.
	e := NewEngine()
	e.Load(mustRules(t, "X", "||ads.example.com^\n@@||ads.example.com^$script\n"))

	script := e.Match(&Request{
		URL: "https://ads.example.com/a.js", Host: "ads.example.com",
		Path: "/a.js", ResourceType: "script", ThirdParty: true,
	})
	require.True(t, script.Matched)
	assert.Equal(t, ActionAllow, script.Action)
	assert.Equal(t, "X:2", script.RuleID)

	image := e.Match(&Request{
		URL: "https://ads.example.com/a.jpg", Host: "ads.example.com",
		Path: "/a.jpg", ResourceType: "image", ThirdParty: true,
	})
	require.True(t, image.Matched)
	assert.Equal(t, ActionBlock, image.Action)
	assert.Equal(t, "X:1", image.RuleID)
}

func TestWildcardHostMatchesDeeperSubdomainsOnly(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "t", "||*.tracker.net^\n"))

	deep := e.Match(&Request{Host: "cdn.tracker.net", Path: "/", ResourceType: "script"})
	assert.True(t, deep.Matched)

	deeper := e.Match(&Request{Host: "a.b.tracker.net", Path: "/", ResourceType: "script"})
	assert.True(t, deeper.Matched)

	bare := e.Match(&Request{Host: "tracker.net", Path: "/", ResourceType: "script"})
	assert.False(t, bare.Matched, "*.tracker.net must not match the bare domain")
}

func TestHostlessRuleMatchesEverything(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "t", "/pagead/*\n"))

	hit := e.Match(&Request{Host: "anything.example", Path: "/pagead/js/ads.js", ResourceType: "script"})
	assert.True(t, hit.Matched)

	emptyHost := e.Match(&Request{Host: "", Path: "/pagead/x", ResourceType: "script"})
	assert.True(t, emptyHost.Matched, "empty host matches only host-unconstrained rules")

	miss := e.Match(&Request{Host: "", Path: "/content/x", ResourceType: "script"})
	assert.False(t, miss.Matched)
}

func TestEmptyHostSkipsHostAnchoredRules(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "t", "||ads.example.com^\n"))
	res := e.Match(&Request{Host: "", Path: "/a.js", ResourceType: "script"})
	assert.False(t, res.Matched)
}

func TestPartyAndPageDomainPredicates(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "t", "||beacon.net^$third-party\n||pixel.net^$domain=news.example|~sports.news.example\n"))

	firstParty := e.Match(&Request{Host: "beacon.net", Path: "/p", ResourceType: "image", ThirdParty: false})
	assert.False(t, firstParty.Matched)

	thirdParty := e.Match(&Request{Host: "beacon.net", Path: "/p", ResourceType: "image", ThirdParty: true})
	assert.True(t, thirdParty.Matched)

	onNews := e.Match(&Request{Host: "pixel.net", Path: "/p", ResourceType: "image", PageHost: "news.example"})
	assert.True(t, onNews.Matched)

	onSports := e.Match(&Request{Host: "pixel.net", Path: "/p", ResourceType: "image", PageHost: "sports.news.example"})
	assert.False(t, onSports.Matched)

	elsewhere := e.Match(&Request{Host: "pixel.net", Path: "/p", ResourceType: "image", PageHost: "other.example"})
	assert.False(t, elsewhere.Matched)
}

func TestCosmeticRulesSkippedAtNetworkPath(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "t", "##.ad-banner\n"))
	res := e.Match(&Request{Host: "example.com", Path: "/", ResourceType: "document"})
	assert.False(t, res.Matched)
	assert.Len(t, e.CosmeticRules(), 1)
}

func TestPriorityOrderingWithTies(t *testing.T) {
	// Two block rules match; insertion order breaks the tie.
	e := NewEngine()
	e.Load(mustRules(t, "t", "||ads.example.com^\n||ads.example.com^$image\n"))
	res := e.Match(&Request{Host: "ads.example.com", Path: "/a.png", ResourceType: "image"})
	require.True(t, res.Matched)
	assert.Equal(t, "t:1", res.RuleID)
}

func TestAtomicReload(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "v1", "||old.example^\n"))
	e.Load(mustRules(t, "v2", "||new.example^\n"))

	old := e.Match(&Request{Host: "old.example", Path: "/", ResourceType: "script"})
	assert.False(t, old.Matched)
	fresh := e.Match(&Request{Host: "new.example", Path: "/", ResourceType: "script"})
	assert.True(t, fresh.Matched)
	assert.Len(t, e.Rules(), 1)
}

func TestStats(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "t", "||ads.example.com^\n"))

	e.Match(&Request{Host: "ads.example.com", Path: "/", ResourceType: "script"})
	e.Match(&Request{Host: "fine.example.com", Path: "/", ResourceType: "script"})

	s := e.Stats()
	assert.Equal(t, uint64(2), s.Checked)
	assert.Equal(t, uint64(1), s.Blocked)
	assert.Equal(t, uint64(1), s.Allowed)

	e.ResetStats()
	assert.Equal(t, uint64(0), e.Stats().Checked)
}

func TestConcurrentMatchAndReload(t *testing.T) {
	e := NewEngine()
	e.Load(mustRules(t, "t", "||ads.example.com^\n"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			e.Load(mustRules(t, fmt.Sprintf("gen%d", i), "||ads.example.com^\n"))
		}
	}()
	for i := 0; i < 200; i++ {
		res := e.Match(&Request{Host: "ads.example.com", Path: "/", ResourceType: "script"})
		assert.True(t, res.Matched)
	}
	<-done
}
