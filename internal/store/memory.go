package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps documents in process memory. Used by tests and the "memory" storage mode.
type MemoryBackend struct {
	mu   sync.Mutex
	docs map[string]map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]map[string]string)}
}

func (m *MemoryBackend) Read(ctx context.Context, document string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyDoc(m.docs[document]), nil
}

func (m *MemoryBackend) Update(ctx context.Context, document string, fn func(doc map[string]string) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := copyDoc(m.docs[document])
	if err := fn(doc); err != nil {
		return err
	}
	m.docs[document] = doc
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, document string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, document)
	return nil
}
