package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

// DocumentStore is a process-local port.DocumentStore used for development and tests.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]port.Document
	now  func() time.Time
}

// NewDocumentStore constructs an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]port.Document),
		now:  time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *DocumentStore) WithClock(now func() time.Time) *DocumentStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Get returns the document stored at path.
func (s *DocumentStore) Get(ctx context.Context, path string) (port.Document, error) {
	if err := ctx.Err(); err != nil {
		return port.Document{}, err
	}
	clean, err := repository.CleanPath(path)
	if err != nil {
		return port.Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[clean]
	if !ok {
		return port.Document{}, repository.ErrNotFound
	}
	return copyDocument(doc), nil
}

// Put writes data at path honouring expectedVersion.
func (s *DocumentStore) Put(ctx context.Context, path string, data json.RawMessage, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	clean, err := repository.CleanPath(path)
	if err != nil {
		return 0, err
	}
	if !json.Valid(data) {
		return 0, fmt.Errorf("put %s: invalid json payload", clean)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.docs[clean]
	switch {
	case expectedVersion == port.AnyVersion:
	case expectedVersion == 0 && exists:
		return 0, repository.ErrVersionConflict
	case expectedVersion > 0 && (!exists || current.Version != expectedVersion):
		return 0, repository.ErrVersionConflict
	}

	next := int64(1)
	if exists {
		next = current.Version + 1
	}

	payload := make(json.RawMessage, len(data))
	copy(payload, data)
	s.docs[clean] = port.Document{
		Path:      clean,
		Data:      payload,
		Version:   next,
		UpdatedAt: s.now().UTC(),
	}
	return next, nil
}

// Delete removes the document at path. Missing documents are not an error.
func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := repository.CleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.docs, clean)
	s.mu.Unlock()
	return nil
}

// DeleteTree removes prefix and every document below it.
func (s *DocumentStore) DeleteTree(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	clean, err := repository.CleanPath(prefix)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for path := range s.docs {
		if path == clean || strings.HasPrefix(path, clean+"/") {
			delete(s.docs, path)
			removed++
		}
	}
	return removed, nil
}

// List returns the direct child documents of parent ordered by key.
func (s *DocumentStore) List(ctx context.Context, parent string) ([]port.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := repository.CleanParent(parent)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]port.Document, 0)
	for path, doc := range s.docs {
		if repository.ParentOf(path) == clean {
			out = append(out, copyDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ListChildKeys returns the distinct first segments below parent, documents or not.
func (s *DocumentStore) ListChildKeys(ctx context.Context, parent string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := repository.CleanParent(parent)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for path := range s.docs {
		if key, ok := repository.ChildSegment(clean, path); ok {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Push stores data under a generated, time ordered child key.
func (s *DocumentStore) Push(ctx context.Context, parent string, data json.RawMessage) (string, error) {
	clean, err := repository.CleanPath(parent)
	if err != nil {
		return "", err
	}
	key := repository.NewPushKey()
	if _, err := s.Put(ctx, repository.JoinPath(clean, key), data, 0); err != nil {
		return "", err
	}
	return key, nil
}

func copyDocument(doc port.Document) port.Document {
	data := make(json.RawMessage, len(doc.Data))
	copy(data, doc.Data)
	doc.Data = data
	return doc
}

var _ port.DocumentStore = (*DocumentStore)(nil)
