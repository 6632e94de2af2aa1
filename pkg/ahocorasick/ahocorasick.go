// Package ahocorasick provides multi-keyword substring search in a single
// pass over the input.
//
// Vigil uses it as a cheap pre-filter in front of the regex signature set:
// a request surface that contains none of the attack keywords never reaches
// the expensive regex evaluation. Matching is case-insensitive.
//
// Thread Safety: a Matcher is immutable after New and safe for concurrent use.
package ahocorasick

import "unicode"

// Matcher is an Aho-Corasick automaton over a fixed keyword set.
type Matcher struct {
	root  *state
	count int
}

// state is one trie node. suffix points at the longest proper suffix of the
// path to this node that is also a trie path, and is followed when the next
// rune has no edge here.
type state struct {
	edges  map[rune]*state
	suffix *state
	hits   []string
}

// New builds a matcher for the given keywords. Empty keywords are ignored.
func New(keywords []string) *Matcher {
	m := &Matcher{root: &state{edges: map[rune]*state{}}}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		m.insert(kw)
	}
	m.link()
	return m
}

func (m *Matcher) insert(keyword string) {
	cur := m.root
	for _, r := range keyword {
		r = unicode.ToLower(r)
		next := cur.edges[r]
		if next == nil {
			next = &state{edges: map[rune]*state{}}
			cur.edges[r] = next
		}
		cur = next
	}
	cur.hits = append(cur.hits, keyword)
	m.count++
}

// link wires suffix pointers breadth-first and folds suffix hits into each
// state, so reaching a state reports every keyword ending there.
func (m *Matcher) link() {
	var queue []*state
	for _, s := range m.root.edges {
		s.suffix = m.root
		queue = append(queue, s)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for r, child := range cur.edges {
			queue = append(queue, child)

			s := cur.suffix
			for s != nil && s.edges[r] == nil {
				s = s.suffix
			}
			if s == nil {
				child.suffix = m.root
			} else {
				child.suffix = s.edges[r]
				child.hits = append(child.hits, child.suffix.hits...)
			}
		}
	}
}

// step advances the automaton by one rune, following suffix links on misses.
func (m *Matcher) step(cur *state, r rune) *state {
	for cur != m.root && cur.edges[r] == nil {
		cur = cur.suffix
	}
	if next := cur.edges[r]; next != nil {
		return next
	}
	return cur
}

// Match reports whether any keyword occurs in text.
func (m *Matcher) Match(text string) bool {
	if m.count == 0 {
		return false
	}
	cur := m.root
	for _, r := range text {
		cur = m.step(cur, unicode.ToLower(r))
		if len(cur.hits) > 0 {
			return true
		}
	}
	return false
}

// Find returns the distinct keywords occurring in text, in first-hit order.
func (m *Matcher) Find(text string) []string {
	if m.count == 0 {
		return nil
	}

	var found []string
	seen := make(map[string]bool)
	cur := m.root
	for _, r := range text {
		cur = m.step(cur, unicode.ToLower(r))
		for _, kw := range cur.hits {
			if !seen[kw] {
				seen[kw] = true
				found = append(found, kw)
			}
		}
	}
	return found
}

// Size returns the number of keywords the matcher was built with.
func (m *Matcher) Size() int {
	return m.count
}
