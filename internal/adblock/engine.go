package adblock

import (
	"sort"
	"sync"
	"time"
)

// Request is the engine's view of one outgoing request. Derived fields
// (Host, Path, ThirdParty) are computed by the interceptor before matching.
type Request struct {
	URL          string
	Host         string
	Path         string // path + "?" + query when a query is present
	ResourceType string
	PageHost     string
	ThirdParty   bool
	Method       string
}

// MatchResult is produced per request and consumed by the interceptor and
// the audit log.
type MatchResult struct {
	Matched bool
	RuleID  string
	Action  Action
	Rule    *Rule
}

// Stats are the engine's running counters. AvgMatch is the mean wall time
// of a Match call since the last reset.
type Stats struct {
	Checked  uint64
	Blocked  uint64
	Allowed  uint64
	AvgMatch time.Duration
}

// snapshot is one immutable rule index. The engine replaces the whole
// snapshot on load, so matchers never see a half-built trie.
type snapshot struct {
	root     *trieNode
	rules    []*Rule
	cosmetic []*Rule
}

// Engine indexes network rules by host and answers match queries. It is
// safe for concurrent use: loads are writes, matches are reads.
type Engine struct {
	mu   sync.RWMutex
	snap *snapshot

	statsMu   sync.Mutex
	checked   uint64
	blocked   uint64
	allowed   uint64
	totalTime time.Duration
}

// NewEngine returns an engine with an empty rule set. An empty set never
// blocks anything.
func NewEngine() *Engine {
	e := &Engine{}
	e.Load(nil)
	return e
}

// Load replaces the rule set atomically. Disabled rules are kept in the
// listing but excluded from the index; cosmetic rules are indexed separately
// and never matched on the network path.
func (e *Engine) Load(rules []*Rule) {
	snap := &snapshot{root: newTrieNode(), rules: rules}
	seq := 0
	for _, r := range rules {
		if r.Kind == KindCosmetic {
			snap.cosmetic = append(snap.cosmetic, r)
			continue
		}
		if !r.Enabled {
			continue
		}
		if len(r.HostPatterns) == 0 {
			snap.root.insert("", r, seq)
			seq++
			continue
		}
		for _, h := range r.HostPatterns {
			snap.root.insert(h, r, seq)
			seq++
		}
	}
	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
}

// Rules returns the currently loaded rule set.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.rules
}

// CosmeticRules returns the indexed cosmetic rules.
func (e *Engine) CosmeticRules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.cosmetic
}

// Match walks the host trie for the request, orders the candidates by
// priority (lower wins, insertion order breaks ties), and returns the first
// rule whose predicates all hold.
func (e *Engine) Match(req *Request) MatchResult {
	start := time.Now()
	e.mu.RLock()
	snap := e.snap
	e.mu.RUnlock()

	candidates := snap.root.collect(req.Host)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rule.Priority != candidates[j].rule.Priority {
			return candidates[i].rule.Priority < candidates[j].rule.Priority
		}
		return candidates[i].seq < candidates[j].seq
	})

	result := MatchResult{}
	for _, c := range candidates {
		r := c.rule
		if !r.MatchesType(req.ResourceType) {
			continue
		}
		if !r.matchesParty(req.ThirdParty) {
			continue
		}
		if !r.matchesPageDomain(req.PageHost) {
			continue
		}
		if r.PathRegex != nil && !r.PathRegex.MatchString(req.Path) {
			continue
		}
		result = MatchResult{Matched: true, RuleID: r.ID, Action: r.Action, Rule: r}
		break
	}

	e.statsMu.Lock()
	e.checked++
	if result.Matched && result.Action == ActionBlock {
		e.blocked++
	} else {
		e.allowed++
	}
	e.totalTime += time.Since(start)
	e.statsMu.Unlock()
	return result
}

// Stats returns the engine's counters since the last reset.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	s := Stats{Checked: e.checked, Blocked: e.blocked, Allowed: e.allowed}
	if e.checked > 0 {
		s.AvgMatch = e.totalTime / time.Duration(e.checked)
	}
	return s
}

// ResetStats zeroes the counters.
func (e *Engine) ResetStats() {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.checked, e.blocked, e.allowed, e.totalTime = 0, 0, 0, 0
}
