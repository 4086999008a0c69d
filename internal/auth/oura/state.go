package oura

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pysugar/oura-twin-sync/internal/identity"
)

const stateSalt = "oura_twin_study"

// GenerateState returns "<twin>_<16 hex>", a pure function of client id and twin.
// It binds a callback to a slot; it does not protect against replay.
func GenerateState(clientID string, id identity.Identity) string {
	sum := sha256.Sum256([]byte(clientID + "_" + string(id) + "_" + stateSalt))
	return string(id) + "_" + hex.EncodeToString(sum[:])[:16]
}

// ValidateState recomputes the state for the prefixed twin and requires an exact match.
func ValidateState(clientID, state string) (identity.Identity, error) {
	for _, id := range identity.All() {
		if !strings.HasPrefix(state, id.KeyPrefix()) {
			continue
		}
		if state == GenerateState(clientID, id) {
			return id, nil
		}
		return "", fmt.Errorf("%w: digest mismatch for %s", ErrInvalidState, id)
	}
	return "", fmt.Errorf("%w: unknown twin prefix", ErrInvalidState)
}

// StateIssuer creates the state for an authorization URL and resolves it at callback time.
type StateIssuer interface {
	Issue(ctx context.Context, clientID string, id identity.Identity) (string, error)
	Resolve(ctx context.Context, clientID, state string) (identity.Identity, error)
}

// DeterministicStates derives state from the client id. Nothing is stored.
type DeterministicStates struct{}

func (DeterministicStates) Issue(_ context.Context, clientID string, id identity.Identity) (string, error) {
	return GenerateState(clientID, id), nil
}

func (DeterministicStates) Resolve(_ context.Context, clientID, state string) (identity.Identity, error) {
	return ValidateState(clientID, state)
}
