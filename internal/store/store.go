// Package store provides the persistence interface behind the credential and token stores.
//
// A Backend holds named documents, each a flat string map. Update is the only write
// path and is atomic per document, so partial writes from one twin can never clobber
// keys owned by the other.
package store

import (
	"context"
	"errors"
)

// Document names used by the auth layer.
const (
	DocCredentials = "credentials"
	DocTokens      = "tokens"
)

// ErrUnknownBackend is returned by Open for an unsupported storage kind.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend persists named documents.
type Backend interface {
	// Read returns a copy of the document. A missing document yields an empty map.
	Read(ctx context.Context, document string) (map[string]string, error)
	// Update loads the document, lets fn mutate it in place and writes the result back
	// as one read-modify-write. Nothing is written when fn returns an error.
	Update(ctx context.Context, document string, fn func(doc map[string]string) error) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, document string) error
}

func copyDoc(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
