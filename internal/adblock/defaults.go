package adblock

import _ "embed"

//go:embed default_list.txt
var defaultListText string

// DefaultListSource names the compiled-in list in rule IDs and audit rows.
const DefaultListSource = "builtin"

// DefaultRules parses the compiled-in filter list.
func DefaultRules() []*Rule {
	return ParseList(DefaultListSource, defaultListText).Rules
}
