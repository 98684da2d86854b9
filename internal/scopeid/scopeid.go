// Package scopeid implements the group-scoped producer-id rules spec.md §3
// describes: a producer id is unique only among its siblings (nested
// groups carry isolated scopes), and a dependency resolves either within
// the referencing job's own scope or via a qualified ancestor path —
// never into a cousin or descendant scope. planspec and mcp both have
// their own job/group argument shapes, so this package works in plain
// strings and group-id parent maps rather than either package's types.
package scopeid

import "strings"

// AncestorChain returns the ordered list of group ids from the outermost
// ancestor down to groupID itself, e.g. ["platform", "backend", "db"].
// parents maps each group id to its parent id ("" for a top-level group).
// groupID == "" (the implicit root scope) yields a nil chain. A cyclic
// parents map is broken at the repeated id rather than looping forever;
// callers are expected to have already rejected cycles separately.
func AncestorChain(parents map[string]string, groupID string) []string {
	if groupID == "" {
		return nil
	}
	var chain []string
	seen := make(map[string]bool)
	for id := groupID; id != ""; id = parents[id] {
		if seen[id] {
			break
		}
		seen[id] = true
		chain = append([]string{id}, chain...)
	}
	return chain
}

// Qualify joins a scope chain and a leaf producer id into the qualified
// path that serves as a node's canonical identity (spec.md §3), e.g.
// Qualify([]string{"backend", "db"}, "migrate") == "backend/db/migrate".
// An empty chain (root scope) yields the leaf id unchanged.
func Qualify(scopeChain []string, leaf string) string {
	if len(scopeChain) == 0 {
		return leaf
	}
	return strings.Join(scopeChain, "/") + "/" + leaf
}

// Resolve finds the qualified id a dependency reference resolves to, from
// within a job whose own ancestor chain is ownChain (outermost first,
// e.g. ["backend", "db"] for a job in group "db" nested under "backend").
// known holds every job's already-computed qualified id.
//
// A bare reference (no "/") is tried first in the job's own scope, then
// in each enclosing ancestor scope out to the root — the "current scope"
// half of spec.md §3's resolution rule, with an implicit upward search so
// a name doesn't have to be re-qualified just because it lives one scope
// out.
//
// A reference containing "/" names an explicit ancestor scope chain; that
// chain must be a genuine prefix of ownChain, so it can only reach an
// ancestor scope, never a cousin or descendant one ("a qualified ancestor
// path").
func Resolve(dep string, ownChain []string, known map[string]bool) (string, bool) {
	if !strings.Contains(dep, "/") {
		for i := len(ownChain); i >= 0; i-- {
			candidate := Qualify(ownChain[:i], dep)
			if known[candidate] {
				return candidate, true
			}
		}
		return "", false
	}

	segments := strings.Split(dep, "/")
	leaf := segments[len(segments)-1]
	prefix := segments[:len(segments)-1]
	if !isPrefixOf(prefix, ownChain) {
		return "", false
	}
	candidate := Qualify(prefix, leaf)
	if known[candidate] {
		return candidate, true
	}
	return "", false
}

func isPrefixOf(prefix, chain []string) bool {
	if len(prefix) > len(chain) {
		return false
	}
	for i, s := range prefix {
		if chain[i] != s {
			return false
		}
	}
	return true
}
