// Package netguard classifies outgoing requests against the rule engine,
// computes header modifications, and keeps the audit trail of blocked
// traffic. It sits between the browser engine's network hook and the
// adblock engine: the hook hands in one request, netguard hands back
// exactly one decision.
package netguard

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"multiview/internal/adblock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode selects the interception posture.
type Mode string

const (
	ModeOff       Mode = "off"       // pass everything through untouched
	ModeBalanced  Mode = "balanced"  // allowlist, then rules, then header mods
	ModeStrict    Mode = "strict"    // balanced plus third-party Referer stripping
	ModeAllowlist Mode = "allowlist" // host allowlist only, rules skipped
)

// ParseMode maps a config string to a Mode, defaulting to balanced.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOff:
		return ModeOff
	case ModeStrict:
		return ModeStrict
	case ModeAllowlist:
		return ModeAllowlist
	default:
		return ModeBalanced
	}
}

// InterceptRequest is the transient view of one outgoing request handed in
// by the browser collaborator.
type InterceptRequest struct {
	URL          string
	Method       string
	ResourceType string
	PageURL      string
	Headers      http.Header
}

// Decision is the at-most-one verdict per request. HeaderMods maps header
// name to replacement value; an empty value means "remove". Blocking is
// expressed by the decision alone; cancellation is the caller's job.
type Decision struct {
	Block      bool
	RuleID     string
	Reason     string
	HeaderMods map[string]string
}

// Header name prefixes stripped from every outgoing request.
var trackingHeaderPrefixes = []string{
	"x-client-data",
	"x-adid",
	"x-tracking",
	"x-uidh",
	"x-fb-",
}

// Interceptor is shared between the UI world (mode and allowlist changes)
// and the network world (Decide); reads dominate, so it carries an RWMutex.
type Interceptor struct {
	mu        sync.RWMutex
	mode      Mode
	allowlist []string

	engine *adblock.Engine
	audit  *AuditLog
	logger *zap.Logger
}

// New creates an interceptor in balanced mode.
func New(engine *adblock.Engine, audit *AuditLog, logger *zap.Logger) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{
		mode:   ModeBalanced,
		engine: engine,
		audit:  audit,
		logger: logger,
	}
}

// SetMode switches the interception posture.
func (i *Interceptor) SetMode(m Mode) {
	i.mu.Lock()
	i.mode = m
	i.mu.Unlock()
}

// Mode returns the current posture.
func (i *Interceptor) Mode() Mode {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.mode
}

// SetAllowlist replaces the host allowlist. Entries are exact hosts or
// "*.domain" globs; a glob also admits the bare domain.
func (i *Interceptor) SetAllowlist(hosts []string) {
	cleaned := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			cleaned = append(cleaned, h)
		}
	}
	i.mu.Lock()
	i.allowlist = cleaned
	i.mu.Unlock()
}

// Audit exposes the audit log for subscribers (UI, CLI).
func (i *Interceptor) Audit() *AuditLog {
	return i.audit
}

// Engine exposes the rule engine for stats inspection.
func (i *Interceptor) Engine() *adblock.Engine {
	return i.engine
}

// Decide classifies one request. It derives host, path, and third-party
// standing, consults the allowlist and the rule engine, and computes header
// modifications for requests that proceed.
func (i *Interceptor) Decide(agentID string, req *InterceptRequest) Decision {
	i.mu.RLock()
	mode := i.mode
	allowlist := i.allowlist
	i.mu.RUnlock()

	if mode == ModeOff {
		return Decision{Reason: "off"}
	}

	host, pathQuery := splitURL(req.URL)
	pageHost, _ := splitURL(req.PageURL)
	third := isThirdParty(host, pageHost)

	if hostAllowed(allowlist, host) {
		return Decision{Reason: "allowlist"}
	}
	if mode == ModeAllowlist {
		// Allowlist-only posture skips the rules; everything not listed
		// proceeds with header hygiene applied.
		return Decision{Reason: "default", HeaderMods: i.headerMods(mode, third, req.Headers)}
	}

	match := i.engine.Match(&adblock.Request{
		URL:          req.URL,
		Host:         host,
		Path:         pathQuery,
		ResourceType: adblock.NormalizeResourceType(req.ResourceType),
		PageHost:     pageHost,
		ThirdParty:   third,
		Method:       req.Method,
	})
	if match.Matched && match.Action == adblock.ActionBlock {
		row := AuditRow{
			RequestID:    uuid.NewString(),
			AgentID:      agentID,
			Timestamp:    time.Now(),
			URL:          req.URL,
			Host:         host,
			ResourceType: adblock.NormalizeResourceType(req.ResourceType),
			RuleID:       match.RuleID,
			Action:       "block",
			PageURL:      req.PageURL,
			Method:       req.Method,
		}
		i.audit.Append(row)
		i.logger.Debug("request blocked",
			zap.String("agent", agentID),
			zap.String("host", host),
			zap.String("rule", match.RuleID))
		return Decision{Block: true, RuleID: match.RuleID, Reason: "rule"}
	}

	d := Decision{Reason: "default", HeaderMods: i.headerMods(mode, third, req.Headers)}
	if match.Matched {
		d.RuleID = match.RuleID
		d.Reason = "rule"
	}
	return d
}

func (i *Interceptor) headerMods(mode Mode, thirdParty bool, headers http.Header) map[string]string {
	mods := make(map[string]string)
	for name := range headers {
		lower := strings.ToLower(name)
		for _, prefix := range trackingHeaderPrefixes {
			if strings.HasPrefix(lower, prefix) {
				mods[name] = ""
				break
			}
		}
	}
	if mode == ModeStrict && thirdParty {
		mods["Referer"] = ""
	}
	if len(mods) == 0 {
		return nil
	}
	return mods
}

// splitURL derives the lowercased host and the path+query matching text.
func splitURL(raw string) (host, pathQuery string) {
	if raw == "" {
		return "", ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", raw
	}
	host = strings.ToLower(u.Hostname())
	pathQuery = u.Path
	if pathQuery == "" {
		pathQuery = "/"
	}
	if u.RawQuery != "" {
		pathQuery += "?" + u.RawQuery
	}
	return host, pathQuery
}

func hostAllowed(allowlist []string, host string) bool {
	for _, entry := range allowlist {
		if strings.HasPrefix(entry, "*.") {
			base := entry[2:]
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}
