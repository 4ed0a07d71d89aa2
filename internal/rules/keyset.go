package rules

import "sort"

// KeySet is an immutable set of routing keys. The zero value is empty.
type KeySet struct {
	keys map[string]struct{}
}

// NewKeySet builds a set from keys. Empty strings are ignored.
func NewKeySet(keys ...string) KeySet {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		m[k] = struct{}{}
	}
	return KeySet{keys: m}
}

// Contains reports whether key is in the set.
func (s KeySet) Contains(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of keys.
func (s KeySet) Len() int {
	return len(s.keys)
}

// Keys returns the keys in sorted order.
func (s KeySet) Keys() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same keys.
func (s KeySet) Equal(other KeySet) bool {
	if len(s.keys) != len(other.keys) {
		return false
	}
	for k := range s.keys {
		if _, ok := other.keys[k]; !ok {
			return false
		}
	}
	return true
}
