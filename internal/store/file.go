package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileBackend stores each document as one flat JSON object in <dir>/<document>.json.
// Writes go through a temp file and rename. A single process is assumed; the mutex
// only serializes writers inside this process.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(document string) string {
	return filepath.Join(f.dir, document+".json")
}

func (f *FileBackend) Read(ctx context.Context, document string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(document)
}

func (f *FileBackend) Update(ctx context.Context, document string, fn func(doc map[string]string) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load(document)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return atomicWriteFileJSON(f.path(document), doc)
}

func (f *FileBackend) Delete(ctx context.Context, document string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(document)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// load decodes the document leniently: null values are dropped and scalars are
// stringified, so files written by older tooling still load.
func (f *FileBackend) load(document string) (map[string]string, error) {
	data, err := os.ReadFile(f.path(document))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", document, err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", document, err)
	}

	doc := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			doc[k] = val
		case float64:
			doc[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			doc[k] = strconv.FormatBool(val)
		default:
			b, _ := json.Marshal(val)
			doc[k] = string(b)
		}
	}
	return doc, nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.OpenFile(tempFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}
