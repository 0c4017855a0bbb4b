package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// JSONTable is a file-backed document table: one JSON object per file,
// keyed by string, each key holding an append-only list of documents.
// Every mutation reads the whole file, modifies it, and atomically
// replaces it.
type JSONTable struct {
	mu   sync.Mutex
	path string
}

// NewJSONTable opens (lazily) the table stored at path.
func NewJSONTable(path string) *JSONTable {
	return &JSONTable{path: path}
}

// Path returns the backing file location.
func (t *JSONTable) Path() string {
	return t.path
}

// Append adds doc to the list stored under key.
func (t *JSONTable) Append(key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.load()
	if err != nil {
		return err
	}
	data[key] = append(data[key], raw)
	return t.store(data)
}

// Put replaces the documents under key with doc.
func (t *JSONTable) Put(key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.load()
	if err != nil {
		return err
	}
	data[key] = []json.RawMessage{raw}
	return t.store(data)
}

// Latest decodes the newest document under key into v. It reports false
// when the key holds nothing.
func (t *JSONTable) Latest(key string, v any) (bool, error) {
	docs, err := t.Get(key)
	if err != nil || len(docs) == 0 {
		return false, err
	}
	if err := json.Unmarshal(docs[len(docs)-1], v); err != nil {
		return false, fmt.Errorf("decode %s[%s]: %w", t.path, key, err)
	}
	return true, nil
}

// Get returns every document stored under key, oldest first.
func (t *JSONTable) Get(key string) ([]json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.load()
	if err != nil {
		return nil, err
	}
	return data[key], nil
}

// Keys lists the stored keys in lexical order.
func (t *JSONTable) Keys() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (t *JSONTable) load() (map[string][]json.RawMessage, error) {
	data := make(map[string][]json.RawMessage)
	content, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	if len(content) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.path, err)
	}
	return data, nil
}

func (t *JSONTable) store(data map[string][]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), t.path)
}
