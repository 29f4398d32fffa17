package repository

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CleanPath normalises a document path and rejects empty or relative segments.
func CleanPath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return trimmed, nil
}

// CleanParent is like CleanPath but allows the root ("").
func CleanParent(path string) (string, error) {
	if strings.Trim(strings.TrimSpace(path), "/") == "" {
		return "", nil
	}
	return CleanPath(path)
}

// JoinPath builds a path from segments.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// ParentOf returns the parent path, or "" for top-level paths.
func ParentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// ChildSegment returns the first segment of path below parent.
func ChildSegment(parent, path string) (string, bool) {
	rest := path
	if parent != "" {
		if !strings.HasPrefix(path, parent+"/") {
			return "", false
		}
		rest = path[len(parent)+1:]
	}
	if rest == "" {
		return "", false
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx], true
	}
	return rest, true
}

// NewPushKey returns a child key that sorts by creation time.
func NewPushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
