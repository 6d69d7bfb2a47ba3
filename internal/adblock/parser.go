package adblock

import (
	"regexp"
	"strings"
)

// ParseWarning records a filter line that could not be parsed. Warnings are
// data, not errors: bad lines are skipped and the rest of the list loads.
type ParseWarning struct {
	Line   int
	Text   string
	Reason string
}

// ParseResult bundles the rules and warnings produced from one list.
type ParseResult struct {
	Source   string
	Rules    []*Rule
	Warnings []ParseWarning
}

// ParseList parses filter-list text in the EasyList dialect. One rule per
// line; lines starting with "!" or "[" are comments/headers; blank lines are
// ignored. Syntactically invalid lines are recorded as warnings and skipped.
func ParseList(source, text string) *ParseResult {
	res := &ParseResult{Source: source}
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") {
			continue
		}
		rule, reason := parseLine(source, lineNo, line)
		if rule == nil {
			res.Warnings = append(res.Warnings, ParseWarning{Line: lineNo, Text: line, Reason: reason})
			continue
		}
		res.Rules = append(res.Rules, rule)
	}
	return res
}

func parseLine(source string, lineNo int, line string) (*Rule, string) {
	// Cosmetic rules first: the "#@#" / "##" separators take precedence over
	// anything that looks like a network pattern.
	if idx := strings.Index(line, "#@#"); idx >= 0 {
		return parseCosmetic(source, lineNo, line[:idx], line[idx+3:], ActionAllow)
	}
	if idx := strings.Index(line, "##"); idx >= 0 {
		return parseCosmetic(source, lineNo, line[:idx], line[idx+2:], ActionBlock)
	}
	return parseNetwork(source, lineNo, line)
}

func parseCosmetic(source string, lineNo int, domains, selector string, action Action) (*Rule, string) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, "empty selector"
	}
	r := &Rule{
		ID:       ruleID(source, lineNo),
		Kind:     KindCosmetic,
		Action:   action,
		Priority: DefaultBlockPriority,
		Selector: selector,
		Source:   source,
		Line:     lineNo,
		Enabled:  true,
	}
	if action == ActionAllow {
		r.Priority = DefaultAllowPriority
	}
	for _, d := range strings.Split(domains, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if strings.HasPrefix(d, "~") {
			r.ExcludeDomains = append(r.ExcludeDomains, d[1:])
		} else {
			r.IncludeDomains = append(r.IncludeDomains, d)
		}
	}
	return r, ""
}

func parseNetwork(source string, lineNo int, line string) (*Rule, string) {
	r := &Rule{
		ID:       ruleID(source, lineNo),
		Kind:     KindNetwork,
		Action:   ActionBlock,
		Priority: DefaultBlockPriority,
		Source:   source,
		Line:     lineNo,
		Enabled:  true,
	}
	if strings.HasPrefix(line, "@@") {
		r.Action = ActionAllow
		r.Priority = DefaultAllowPriority
		line = line[2:]
	}

	pattern := line
	if idx := strings.LastIndex(line, "$"); idx >= 0 && looksLikeOptions(line[idx+1:]) {
		pattern = line[:idx]
		if reason := applyOptions(r, line[idx+1:]); reason != "" {
			return nil, reason
		}
	}
	if pattern == "" {
		return nil, "empty pattern"
	}
	r.Pattern = pattern

	hosts, pathRe, ok := compilePattern(pattern)
	if !ok {
		return nil, "bad pattern"
	}
	r.HostPatterns = hosts
	r.PathRegex = pathRe
	return r, ""
}

// looksLikeOptions guards against a literal "$" inside the pattern body.
func looksLikeOptions(s string) bool {
	if s == "" {
		return false
	}
	for _, opt := range strings.Split(s, ",") {
		opt = strings.TrimPrefix(opt, "~")
		if opt == "" {
			return false
		}
		key := opt
		if eq := strings.Index(opt, "="); eq >= 0 {
			key = opt[:eq]
		}
		if !knownResourceTypes[key] && key != "third-party" && key != "first-party" && key != "domain" {
			return false
		}
	}
	return true
}

func applyOptions(r *Rule, opts string) string {
	for _, opt := range strings.Split(opts, ",") {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "":
			return "empty option"
		case knownResourceTypes[opt]:
			r.ResourceTypes = append(r.ResourceTypes, opt)
		case opt == "third-party":
			r.Party = PartyThird
		case opt == "~third-party" || opt == "first-party":
			r.Party = PartyFirst
		case strings.HasPrefix(opt, "domain="):
			for _, d := range strings.Split(opt[len("domain="):], "|") {
				d = strings.TrimSpace(d)
				if d == "" {
					continue
				}
				if strings.HasPrefix(d, "~") {
					r.ExcludeDomains = append(r.ExcludeDomains, d[1:])
				} else {
					r.IncludeDomains = append(r.IncludeDomains, d)
				}
			}
		default:
			return "unknown option: " + opt
		}
	}
	return ""
}

// compilePattern splits a network pattern into its host anchors and the
// compiled remainder. A "||" prefix anchors the pattern to a domain; "^"
// means end-of-host or a path delimiter; "*" is a wildcard.
func compilePattern(pattern string) (hosts []string, pathRe *regexp.Regexp, ok bool) {
	body := pattern
	if strings.HasPrefix(pattern, "||") {
		rest := pattern[2:]
		cut := strings.IndexAny(rest, "/^*")
		host := rest
		body = ""
		if cut >= 0 {
			host = rest[:cut]
			body = rest[cut:]
		}
		if host == "" {
			return nil, nil, false
		}
		hosts = []string{host}
		// A pattern that reduces to a bare domain anchor carries no path
		// regex; the host predicate alone suffices.
		if body == "" || body == "^" {
			return hosts, nil, true
		}
	}
	if body == "" || body == "*" {
		return hosts, nil, true
	}
	re, err := regexp.Compile(patternToRegexp(body))
	if err != nil {
		return nil, nil, false
	}
	return hosts, re, true
}

func patternToRegexp(body string) string {
	var b strings.Builder
	for _, ch := range body {
		switch ch {
		case '*':
			b.WriteString(".*")
		case '^':
			b.WriteString(`([/?#]|$)`)
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	return b.String()
}
