// Package identity defines the two fixed subject slots tracked by the sync service.
package identity

import (
	"fmt"
	"strings"
)

// Identity is one of exactly two monitored subjects.
type Identity string

const (
	TwinA Identity = "twin_a"
	TwinB Identity = "twin_b"
)

// All returns both slots in processing order.
func All() []Identity {
	return []Identity{TwinA, TwinB}
}

// Parse accepts the canonical literal or the short a/b forms used on the command line and in URLs.
func Parse(s string) (Identity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "twin_a", "a", "twin-a":
		return TwinA, nil
	case "twin_b", "b", "twin-b":
		return TwinB, nil
	}
	return "", fmt.Errorf("unknown twin %q (expected twin_a or twin_b)", s)
}

// Valid reports whether id is one of the two known slots.
func (id Identity) Valid() bool {
	return id == TwinA || id == TwinB
}

// KeyPrefix is the namespace used for this identity's persisted keys.
func (id Identity) KeyPrefix() string {
	return string(id) + "_"
}

// Label is the human-readable name, e.g. "Twin A".
func (id Identity) Label() string {
	switch id {
	case TwinA:
		return "Twin A"
	case TwinB:
		return "Twin B"
	}
	return string(id)
}

func (id Identity) String() string {
	return string(id)
}
