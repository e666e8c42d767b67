package access

import (
	"slices"
	"strings"
)

const (
	// Wildcard matches every permission, or every permission under a prefix
	// when used as a suffix ("project.*").
	Wildcard = "*"

	delimiter = "."
)

// PermissionSet is a normalized, sorted set of permission scopes.
type PermissionSet []string

// EmptyPermissionSet is the resolution result for users with no membership.
var EmptyPermissionSet = PermissionSet{}

// NewPermissionSet normalizes the given permissions: trims whitespace, drops
// empties and duplicates, sorts.
func NewPermissionSet(permissions ...string) PermissionSet {
	set := make(PermissionSet, 0, len(permissions))
	for _, p := range permissions {
		if p = strings.TrimSpace(p); p != "" && !slices.Contains(set, p) {
			set = append(set, p)
		}
	}
	slices.Sort(set)
	return set
}

// Has reports whether the set grants the permission, directly or through a
// wildcard.
func (s PermissionSet) Has(permission string) bool {
	for _, granted := range s {
		if matches(permission, granted) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set grants every given permission.
func (s PermissionSet) HasAll(permissions ...string) bool {
	for _, p := range permissions {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// HasAny reports whether the set grants at least one of the given
// permissions.
func (s PermissionSet) HasAny(permissions ...string) bool {
	for _, p := range permissions {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Union merges another set into a new normalized set.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	merged := make([]string, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewPermissionSet(merged...)
}

// matches reports whether a granted scope covers the requested permission.
// Grants may end in a wildcard segment ("project.*") or be the global
// wildcard.
func matches(permission, granted string) bool {
	if permission == granted || granted == Wildcard {
		return true
	}

	if strings.HasSuffix(granted, Wildcard) {
		prefix := strings.TrimSuffix(granted, Wildcard)
		prefix = strings.TrimSuffix(prefix, delimiter)
		return strings.HasPrefix(permission, prefix+delimiter)
	}

	return false
}
