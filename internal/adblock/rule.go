// Package adblock implements an EasyList-compatible rule model, a filter
// list parser, and a reverse-label trie matching engine. Rule sets are
// immutable once loaded; the engine swaps whole snapshots so readers on the
// network thread never observe a partially updated index.
package adblock

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind distinguishes network rules (matched per request) from cosmetic
// rules (element hiding; indexed but never consulted on the network path).
type Kind int

const (
	KindNetwork Kind = iota
	KindCosmetic
)

func (k Kind) String() string {
	if k == KindCosmetic {
		return "cosmetic"
	}
	return "network"
}

// Action is the outcome a rule requests.
type Action int

const (
	ActionBlock Action = iota
	ActionAllow
)

func (a Action) String() string {
	if a == ActionAllow {
		return "allow"
	}
	return "block"
}

// Party constrains a rule to first- or third-party requests.
type Party int

const (
	PartyAny Party = iota
	PartyFirst
	PartyThird
)

// Resource type keywords recognized in the $ option block.
const (
	TypeScript      = "script"
	TypeImage       = "image"
	TypeStylesheet  = "stylesheet"
	TypeXHR         = "xhr"
	TypeFetch       = "fetch"
	TypeWebsocket   = "websocket"
	TypeMedia       = "media"
	TypeDocument    = "document"
	TypeSubdocument = "subdocument"
	TypeFont        = "font"
	TypePing        = "ping"
	TypeOther       = "other"
)

var knownResourceTypes = map[string]bool{
	TypeScript: true, TypeImage: true, TypeStylesheet: true,
	TypeXHR: true, TypeFetch: true, TypeWebsocket: true,
	TypeMedia: true, TypeDocument: true, TypeSubdocument: true,
	TypeFont: true, TypePing: true, TypeOther: true,
}

// NormalizeResourceType maps an arbitrary resource type label to one of the
// recognized keywords. Unknown labels collapse to "other".
func NormalizeResourceType(rt string) string {
	rt = strings.ToLower(strings.TrimSpace(rt))
	switch rt {
	case "xmlhttprequest":
		rt = TypeXHR
	case "sub_frame", "subframe":
		rt = TypeSubdocument
	case "main_frame", "mainframe":
		rt = TypeDocument
	case "img":
		rt = TypeImage
	case "css":
		rt = TypeStylesheet
	}
	if knownResourceTypes[rt] {
		return rt
	}
	return TypeOther
}

// Default priorities. Lower wins; exceptions get half the priority of block
// rules so an allow rule beats a block rule from the same source.
const (
	DefaultBlockPriority = 100
	DefaultAllowPriority = DefaultBlockPriority / 2
)

// Rule is one parsed filter-list entry. Rules are immutable after parsing.
type Rule struct {
	ID       string
	Kind     Kind
	Action   Action
	Priority int

	// HostPatterns holds the domain anchors. An entry prefixed "*." matches
	// strictly deeper subdomains; a bare domain matches that host exactly.
	// Empty means the rule has no host constraint and matches every host.
	HostPatterns []string

	// Pattern is the raw pattern text as written (including any "||" anchor),
	// kept for canonical export. PathRegex is the compiled form of the
	// non-anchor remainder; nil when the pattern reduces to a bare anchor.
	Pattern   string
	PathRegex *regexp.Regexp

	// ResourceTypes is a set constraint; empty means any type.
	ResourceTypes []string
	Party         Party

	// Page-domain constraints from $domain=a.com|~b.com.
	IncludeDomains []string
	ExcludeDomains []string

	// Selector is set for cosmetic rules only.
	Selector string

	Source  string
	Line    int
	Enabled bool
}

// MatchesType reports whether the rule applies to the given (normalized)
// resource type.
func (r *Rule) MatchesType(rt string) bool {
	if len(r.ResourceTypes) == 0 {
		return true
	}
	for _, t := range r.ResourceTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// matchesParty evaluates the first/third-party constraint.
func (r *Rule) matchesParty(thirdParty bool) bool {
	switch r.Party {
	case PartyFirst:
		return !thirdParty
	case PartyThird:
		return thirdParty
	default:
		return true
	}
}

// matchesPageDomain evaluates $domain= constraints against the page host.
func (r *Rule) matchesPageDomain(pageHost string) bool {
	if len(r.IncludeDomains) == 0 && len(r.ExcludeDomains) == 0 {
		return true
	}
	for _, d := range r.ExcludeDomains {
		if hostMatchesDomain(pageHost, d) {
			return false
		}
	}
	if len(r.IncludeDomains) == 0 {
		return true
	}
	for _, d := range r.IncludeDomains {
		if hostMatchesDomain(pageHost, d) {
			return true
		}
	}
	return false
}

func hostMatchesDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// String renders the rule in canonical filter syntax. Parsing the canonical
// form yields an equivalent rule (IDs and line numbers aside).
func (r *Rule) String() string {
	var b strings.Builder
	if r.Kind == KindCosmetic {
		b.WriteString(strings.Join(r.IncludeDomains, ","))
		if r.Action == ActionAllow {
			b.WriteString("#@#")
		} else {
			b.WriteString("##")
		}
		b.WriteString(r.Selector)
		return b.String()
	}
	if r.Action == ActionAllow {
		b.WriteString("@@")
	}
	b.WriteString(r.Pattern)
	opts := r.canonicalOptions()
	if len(opts) > 0 {
		b.WriteString("$")
		b.WriteString(strings.Join(opts, ","))
	}
	return b.String()
}

func (r *Rule) canonicalOptions() []string {
	var opts []string
	types := append([]string(nil), r.ResourceTypes...)
	sort.Strings(types)
	opts = append(opts, types...)
	switch r.Party {
	case PartyThird:
		opts = append(opts, "third-party")
	case PartyFirst:
		opts = append(opts, "~third-party")
	}
	if len(r.IncludeDomains) > 0 || len(r.ExcludeDomains) > 0 {
		parts := append([]string(nil), r.IncludeDomains...)
		for _, d := range r.ExcludeDomains {
			parts = append(parts, "~"+d)
		}
		opts = append(opts, "domain="+strings.Join(parts, "|"))
	}
	return opts
}

// ExportList renders a rule set back to filter-list text in canonical form.
func ExportList(rules []*Rule) string {
	var b strings.Builder
	for _, r := range rules {
		b.WriteString(r.String())
		b.WriteString("\n")
	}
	return b.String()
}

// ruleID derives the stable rule identifier from its source and 1-based
// line ordinal, so reloading the same list yields the same IDs.
func ruleID(source string, line int) string {
	return fmt.Sprintf("%s:%d", source, line)
}
