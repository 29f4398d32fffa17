package docstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

// ActivityLogRepository stores entries under locks/{lockId}/activity_log.
type ActivityLogRepository struct {
	base
}

func activityParent(lockID string) (string, error) {
	id, err := segment("lock id", lockID)
	if err != nil {
		return "", err
	}
	return repository.JoinPath(locksRoot, id, activityNode), nil
}

// Append pushes an entry and returns its generated id.
func (r *ActivityLogRepository) Append(ctx context.Context, lockID string, entry domain.ActivityEntry) (string, error) {
	parent, err := activityParent(lockID)
	if err != nil {
		return "", err
	}
	entry.ID = ""
	key, err := r.push(ctx, parent, entry)
	if err != nil {
		return "", fmt.Errorf("append activity: %w", err)
	}
	return key, nil
}

// List returns entries newest first.
func (r *ActivityLogRepository) List(ctx context.Context, lockID string) ([]domain.ActivityEntry, error) {
	parent, err := activityParent(lockID)
	if err != nil {
		return nil, err
	}

	docs, err := r.list(ctx, parent)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ActivityEntry, 0, len(docs))
	for _, doc := range docs {
		var entry domain.ActivityEntry
		if err := decode(doc, &entry); err != nil {
			return nil, err
		}
		entry.ID = doc.Key()
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Delete removes a single entry.
func (r *ActivityLogRepository) Delete(ctx context.Context, lockID, entryID string) error {
	parent, err := activityParent(lockID)
	if err != nil {
		return err
	}
	id, err := segment("entry id", entryID)
	if err != nil {
		return err
	}
	return r.delete(ctx, repository.JoinPath(parent, id))
}

// AuditLogRepository stores entries under audit_logs.
type AuditLogRepository struct {
	base
}

// Append pushes an audit entry.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditEntry) (string, error) {
	entry.ID = ""
	key, err := r.push(ctx, auditRoot, entry)
	if err != nil {
		return "", fmt.Errorf("append audit entry: %w", err)
	}
	return key, nil
}

// List returns audit entries newest first.
func (r *AuditLogRepository) List(ctx context.Context) ([]domain.AuditEntry, error) {
	docs, err := r.list(ctx, auditRoot)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		var entry domain.AuditEntry
		if err := decode(doc, &entry); err != nil {
			return nil, err
		}
		entry.ID = doc.Key()
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Delete removes one audit entry.
func (r *AuditLogRepository) Delete(ctx context.Context, entryID string) error {
	id, err := segment("entry id", entryID)
	if err != nil {
		return err
	}
	return r.delete(ctx, repository.JoinPath(auditRoot, id))
}

// PendingUserRepository stores enrolment requests under locks/{lockId}/pending_users.
type PendingUserRepository struct {
	base
}

// Save upserts the pending user.
func (r *PendingUserRepository) Save(ctx context.Context, user domain.PendingUser) error {
	lockID, err := segment("lock id", user.LockID)
	if err != nil {
		return err
	}
	userID, err := segment("user id", user.ID)
	if err != nil {
		return err
	}
	if _, err := r.put(ctx, repository.JoinPath(locksRoot, lockID, pendingUsersNode, userID), user, port.AnyVersion); err != nil {
		return fmt.Errorf("save pending user: %w", err)
	}
	return nil
}

// List returns pending users ordered by request time.
func (r *PendingUserRepository) List(ctx context.Context, lockID string) ([]domain.PendingUser, error) {
	id, err := segment("lock id", lockID)
	if err != nil {
		return nil, err
	}

	docs, err := r.list(ctx, repository.JoinPath(locksRoot, id, pendingUsersNode))
	if err != nil {
		return nil, err
	}

	users := make([]domain.PendingUser, 0, len(docs))
	for _, doc := range docs {
		var user domain.PendingUser
		if err := decode(doc, &user); err != nil {
			return nil, err
		}
		user.ID = doc.Key()
		users = append(users, user)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].RequestedAt.Before(users[j].RequestedAt)
	})
	return users, nil
}

// Delete removes a pending user.
func (r *PendingUserRepository) Delete(ctx context.Context, lockID, userID string) error {
	id, err := segment("lock id", lockID)
	if err != nil {
		return err
	}
	uid, err := segment("user id", userID)
	if err != nil {
		return err
	}
	return r.delete(ctx, repository.JoinPath(locksRoot, id, pendingUsersNode, uid))
}

var (
	_ port.ActivityLogRepository = (*ActivityLogRepository)(nil)
	_ port.AuditLogRepository    = (*AuditLogRepository)(nil)
	_ port.PendingUserRepository = (*PendingUserRepository)(nil)
)
