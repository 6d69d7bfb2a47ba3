package adblock

import "strings"

// indexedRule pairs a rule with its insertion ordinal so candidate sorting
// can break priority ties deterministically.
type indexedRule struct {
	rule *Rule
	seq  int
}

// trieNode is one node of the reverse-label host trie. "ads.example.com" is
// inserted along the path ["com","example","ads"] from the root. Bare
// domains land in rules at the terminal node; "*.domain" patterns land in
// wildcard at the node for "domain" and match strictly deeper subdomains.
type trieNode struct {
	children map[string]*trieNode
	rules    []indexedRule
	wildcard []indexedRule
}

func newTrieNode() *trieNode {
	return &trieNode{}
}

func (n *trieNode) child(label string) *trieNode {
	if n.children == nil {
		n.children = make(map[string]*trieNode)
	}
	c, ok := n.children[label]
	if !ok {
		c = newTrieNode()
		n.children[label] = c
	}
	return c
}

// insert places a rule under one host pattern. An empty host means no host
// constraint: the rule goes to the root bucket and matches every request.
func (n *trieNode) insert(host string, r *Rule, seq int) {
	entry := indexedRule{rule: r, seq: seq}
	if host == "" {
		n.rules = append(n.rules, entry)
		return
	}
	wildcard := false
	if strings.HasPrefix(host, "*.") {
		wildcard = true
		host = host[2:]
	}
	node := n
	labels := strings.Split(host, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		node = node.child(labels[i])
	}
	if wildcard {
		node.wildcard = append(node.wildcard, entry)
	} else {
		node.rules = append(node.rules, entry)
	}
}

// collect walks the trie for a request host and returns every candidate
// rule: the root bucket, wildcard buckets of strict ancestors, and the
// terminal node's exact bucket when the full host is present in the index.
func (n *trieNode) collect(host string) []indexedRule {
	out := append([]indexedRule(nil), n.rules...)
	if host == "" {
		return out
	}
	labels := strings.Split(host, ".")
	node := n
	for i := len(labels) - 1; i >= 0; i-- {
		next, ok := node.children[labels[i]]
		if !ok {
			return out
		}
		if i > 0 {
			// Wildcards stored here cover all deeper subdomains, which the
			// remaining labels make this host one of.
			out = append(out, next.wildcard...)
		}
		node = next
	}
	out = append(out, node.rules...)
	return out
}
