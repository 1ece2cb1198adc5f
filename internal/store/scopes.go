// ABOUTME: ScopeSet models the set of services an API key is authorized for
// ABOUTME: The comma-joined string form is purely a storage/wire encoding

package store

import (
	"sort"
	"strings"
)

// Wildcard is the scope marker granting access to all services.
const Wildcard = "*"

// ScopeSet is an unordered set of service names. It may contain the
// Wildcard marker, which authorizes every service.
type ScopeSet map[string]struct{}

// NewScopeSet builds a ScopeSet from the given service names. Empty and
// whitespace-only names are dropped.
func NewScopeSet(scopes ...string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// ParseScopes decodes the comma-joined storage encoding into a ScopeSet.
func ParseScopes(encoded string) ScopeSet {
	return NewScopeSet(strings.Split(encoded, ",")...)
}

// Allows reports whether the set authorizes the given service, either by
// direct membership or via the wildcard marker.
func (s ScopeSet) Allows(service string) bool {
	if _, ok := s[Wildcard]; ok {
		return true
	}
	_, ok := s[service]
	return ok
}

// List returns the scopes in sorted order.
func (s ScopeSet) List() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// String returns the comma-joined storage encoding.
func (s ScopeSet) String() string {
	return strings.Join(s.List(), ",")
}
