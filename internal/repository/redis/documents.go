package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const (
	defaultDocumentPrefix = "smartlock"

	fieldData      = "data"
	fieldVersion   = "version"
	fieldUpdatedAt = "updated_at"

	maxUnconditionalRetries = 5
)

// DocumentStore implements port.DocumentStore with one hash per document and a
// children set per node. Optimistic writes use WATCH/MULTI on the document key.
//
// Deleting single documents does not prune empty ancestors from the index, so
// ListChildKeys may report nodes whose subtree has become empty.
type DocumentStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewDocumentStore constructs a Redis-backed document store.
func NewDocumentStore(client *red.Client, keyPrefix string) *DocumentStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultDocumentPrefix
	}
	return &DocumentStore{client: client, prefix: prefix, now: time.Now}
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
	clean, err := repository.CleanPath(path)
	if err != nil {
		return port.Document{}, err
	}

	values, err := s.client.HGetAll(ctx, s.docKey(clean)).Result()
	if err != nil {
		return port.Document{}, repository.WrapTimeout("redis hgetall", fmt.Errorf("redis hgetall: %w", err))
	}
	return decodeDocument(clean, values)
}

// Put writes data at path honouring expectedVersion.
func (s *DocumentStore) Put(ctx context.Context, path string, data json.RawMessage, expectedVersion int64) (int64, error) {
	clean, err := repository.CleanPath(path)
	if err != nil {
		return 0, err
	}
	if !json.Valid(data) {
		return 0, fmt.Errorf("put %s: invalid json payload", clean)
	}

	attempts := 1
	if expectedVersion == port.AnyVersion {
		attempts = maxUnconditionalRetries
	}

	var version int64
	docKey := s.docKey(clean)

	for i := 0; i < attempts; i++ {
		err = s.client.Watch(ctx, func(tx *red.Tx) error {
			current, err := tx.HGet(ctx, docKey, fieldVersion).Int64()
			exists := true
			if err != nil {
				if !errors.Is(err, red.Nil) {
					return fmt.Errorf("redis hget version: %w", err)
				}
				exists = false
				current = 0
			}

			switch {
			case expectedVersion == port.AnyVersion:
			case expectedVersion == 0 && exists:
				return repository.ErrVersionConflict
			case expectedVersion > 0 && (!exists || current != expectedVersion):
				return repository.ErrVersionConflict
			}

			version = current + 1
			_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
				pipe.HSet(ctx, docKey,
					fieldData, string(data),
					fieldVersion, version,
					fieldUpdatedAt, s.now().UTC().Format(time.RFC3339Nano),
				)
				s.indexAncestors(ctx, pipe, clean)
				return nil
			})
			return err
		}, docKey)

		if errors.Is(err, red.TxFailedErr) {
			if expectedVersion == port.AnyVersion {
				continue
			}
			return 0, repository.ErrVersionConflict
		}
		break
	}

	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return 0, err
		}
		if errors.Is(err, red.TxFailedErr) {
			return 0, repository.ErrTooManyConflicts
		}
		return 0, repository.WrapTimeout("redis put document", fmt.Errorf("redis put document: %w", err))
	}
	return version, nil
}

// Delete removes the document at path. Missing documents are not an error.
func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	clean, err := repository.CleanPath(path)
	if err != nil {
		return err
	}

	docKey, childrenKey := s.docKey(clean), s.childrenKey(clean)
	for i := 0; i < maxUnconditionalRetries; i++ {
		// A Put racing on the same path touches docKey and aborts this
		// transaction, so its index entry is never removed after the fact.
		err = s.client.Watch(ctx, func(tx *red.Tx) error {
			children, err := tx.SCard(ctx, childrenKey).Result()
			if err != nil {
				return fmt.Errorf("redis scard: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
				pipe.Del(ctx, docKey)
				if children == 0 {
					pipe.SRem(ctx, s.childrenKey(repository.ParentOf(clean)), lastSegment(clean))
				}
				return nil
			})
			return err
		}, docKey, childrenKey)
		if !errors.Is(err, red.TxFailedErr) {
			break
		}
	}

	if err != nil {
		if errors.Is(err, red.TxFailedErr) {
			return repository.ErrTooManyConflicts
		}
		return repository.WrapTimeout("redis delete document", fmt.Errorf("redis delete document: %w", err))
	}
	return nil
}

// DeleteTree removes prefix and every document below it.
func (s *DocumentStore) DeleteTree(ctx context.Context, prefix string) (int, error) {
	clean, err := repository.CleanPath(prefix)
	if err != nil {
		return 0, err
	}

	nodes := []string{clean}
	docKeys := make([]string, 0)
	setKeys := make([]string, 0)

	for len(nodes) > 0 {
		node := nodes[0]
		nodes = nodes[1:]

		docKeys = append(docKeys, s.docKey(node))
		setKeys = append(setKeys, s.childrenKey(node))

		children, err := s.client.SMembers(ctx, s.childrenKey(node)).Result()
		if err != nil {
			return 0, repository.WrapTimeout("redis smembers", fmt.Errorf("redis smembers: %w", err))
		}
		for _, child := range children {
			nodes = append(nodes, repository.JoinPath(node, child))
		}
	}

	var removed *red.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		removed = pipe.Del(ctx, docKeys...)
		pipe.Del(ctx, setKeys...)
		pipe.SRem(ctx, s.childrenKey(repository.ParentOf(clean)), lastSegment(clean))
		return nil
	})
	if err != nil {
		return 0, repository.WrapTimeout("redis delete tree", fmt.Errorf("redis delete tree: %w", err))
	}
	return int(removed.Val()), nil
}

// List returns the direct child documents of parent ordered by key.
func (s *DocumentStore) List(ctx context.Context, parent string) ([]port.Document, error) {
	clean, err := repository.CleanParent(parent)
	if err != nil {
		return nil, err
	}

	keys, err := s.ListChildKeys(ctx, clean)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []port.Document{}, nil
	}

	cmds := make([]*red.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe red.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(repository.JoinPath(clean, key)))
		}
		return nil
	})
	if err != nil {
		return nil, repository.WrapTimeout("redis list documents", fmt.Errorf("redis list documents: %w", err))
	}

	docs := make([]port.Document, 0, len(keys))
	for i, key := range keys {
		doc, err := decodeDocument(repository.JoinPath(clean, key), cmds[i].Val())
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ListChildKeys returns the child node names indexed below parent.
func (s *DocumentStore) ListChildKeys(ctx context.Context, parent string) ([]string, error) {
	clean, err := repository.CleanParent(parent)
	if err != nil {
		return nil, err
	}

	keys, err := s.client.SMembers(ctx, s.childrenKey(clean)).Result()
	if err != nil {
		return nil, repository.WrapTimeout("redis smembers", fmt.Errorf("redis smembers: %w", err))
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

func (s *DocumentStore) indexAncestors(ctx context.Context, pipe red.Pipeliner, path string) {
	node := path
	for node != "" {
		parent := repository.ParentOf(node)
		pipe.SAdd(ctx, s.childrenKey(parent), lastSegment(node))
		node = parent
	}
}

func (s *DocumentStore) docKey(path string) string {
	return fmt.Sprintf("%s:doc:%s", s.prefix, path)
}

func (s *DocumentStore) childrenKey(path string) string {
	return fmt.Sprintf("%s:children:%s", s.prefix, path)
}

func decodeDocument(path string, values map[string]string) (port.Document, error) {
	if len(values) == 0 {
		return port.Document{}, repository.ErrNotFound
	}

	version, err := strconv.ParseInt(values[fieldVersion], 10, 64)
	if err != nil {
		return port.Document{}, fmt.Errorf("parse version of %s: %w", path, err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, values[fieldUpdatedAt])
	if err != nil {
		return port.Document{}, fmt.Errorf("parse updated_at of %s: %w", path, err)
	}

	return port.Document{
		Path:      path,
		Data:      json.RawMessage(values[fieldData]),
		Version:   version,
		UpdatedAt: updatedAt,
	}, nil
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

var _ port.DocumentStore = (*DocumentStore)(nil)
