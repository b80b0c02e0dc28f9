// Package headers implements the case-insensitive header multimap and the
// drop/add/force rewrite rule applied to it before a request is forwarded
// upstream.
package headers

import (
	"net/http"
	"sort"
	"strings"
)

// hopByHop lists headers that are scoped to a single transport connection and
// must never be forwarded to an upstream, regardless of any configured rule.
var hopByHop = map[string]bool{
	"host":                true,
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"content-length":      true,
}

// IsHopByHop reports whether name (in any case) is a hop-by-hop header.
func IsHopByHop(name string) bool {
	return hopByHop[strings.ToLower(name)]
}

// Set is a case-insensitive, multi-value header map. Keys are stored
// lower-cased; Canonical preserves the first-seen casing for output.
type Set struct {
	order     []string          // lower-cased names, insertion order
	canonical map[string]string // lower-cased name -> display name
	values    map[string][]string
}

// NewSet returns an empty header set.
func NewSet() *Set {
	return &Set{
		canonical: make(map[string]string),
		values:    make(map[string][]string),
	}
}

// FromHTTPHeader builds a Set from a net/http.Header, preserving order as
// Go's map iteration allows (order is not semantically significant on read).
func FromHTTPHeader(h http.Header) *Set {
	s := NewSet()
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range h[name] {
			s.Add(name, v)
		}
	}
	return s
}

// Add appends a value under name, preserving any existing values.
func (s *Set) Add(name, value string) {
	key := strings.ToLower(name)
	if _, ok := s.canonical[key]; !ok {
		s.canonical[key] = name
		s.order = append(s.order, key)
	}
	s.values[key] = append(s.values[key], value)
}

// Set replaces all values under name with the single given value.
func (s *Set) Set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := s.canonical[key]; !ok {
		s.canonical[key] = name
		s.order = append(s.order, key)
	}
	s.canonical[key] = name
	s.values[key] = []string{value}
}

// Del removes every value under name.
func (s *Set) Del(name string) {
	key := strings.ToLower(name)
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	delete(s.canonical, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Has reports whether any value is present under name.
func (s *Set) Has(name string) bool {
	_, ok := s.values[strings.ToLower(name)]
	return ok
}

// Get returns the first value under name, if any.
func (s *Set) Get(name string) (string, bool) {
	vs, ok := s.values[strings.ToLower(name)]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Values returns all values under name in insertion order.
func (s *Set) Values(name string) []string {
	return s.values[strings.ToLower(name)]
}

// Each calls fn once per (canonical name, value) pair, in insertion order.
func (s *Set) Each(fn func(name, value string)) {
	for _, key := range s.order {
		name := s.canonical[key]
		for _, v := range s.values[key] {
			fn(name, v)
		}
	}
}

// ToHTTPHeader materializes the set as a net/http.Header.
func (s *Set) ToHTTPHeader() http.Header {
	h := make(http.Header, len(s.order))
	s.Each(func(name, value string) {
		h.Add(name, value)
	})
	return h
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := NewSet()
	s.Each(func(name, value string) {
		out.Add(name, value)
	})
	return out
}

// Rule is the header rewrite rule from spec section 4.2: dropAll / drop list
// / add-if-absent / force-overwrite, applied in that order.
type Rule struct {
	DropAll bool
	Drop    []string
	Add     [][2]string // ordered name/value pairs
	Force   [][2]string // ordered name/value pairs
}

// Apply runs the four-step algorithm against in, returning a new Set. Hop-by-
// hop headers are stripped unconditionally as a final step, independent of
// the rule, so Apply is always safe to hand straight to an upstream client.
func Apply(in *Set, rule Rule) *Set {
	out := NewSet()
	if !rule.DropAll {
		drop := make(map[string]bool, len(rule.Drop))
		for _, name := range rule.Drop {
			drop[strings.ToLower(name)] = true
		}
		in.Each(func(name, value string) {
			if !drop[strings.ToLower(name)] {
				out.Add(name, value)
			}
		})
	}

	for _, kv := range rule.Add {
		if !out.Has(kv[0]) {
			out.Add(kv[0], kv[1])
		}
	}

	for _, kv := range rule.Force {
		out.Set(kv[0], kv[1])
	}

	stripHopByHop(out)
	return out
}

func stripHopByHop(s *Set) {
	for name := range hopByHop {
		s.Del(name)
	}
}
