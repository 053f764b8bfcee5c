package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/auth"
)

// SnapshotWriter rewrites the copies of a user's name embedded in projects.
// Both methods only touch documents whose copy differs from fullName.
type SnapshotWriter interface {
	RenameStudent(ctx context.Context, studentID primitive.ObjectID, fullName string) (int64, error)
	RenameLeader(ctx context.Context, leaderID primitive.ObjectID, fullName string) (int64, error)
}

// SnapshotSyncError reports that a profile change was saved but its name
// could not be copied into every project.
type SnapshotSyncError struct {
	UserID primitive.ObjectID
	Err    error
}

func (e *SnapshotSyncError) Error() string {
	return fmt.Sprintf("sync name snapshots of user %s: %v", e.UserID.Hex(), e.Err)
}

func (e *SnapshotSyncError) Unwrap() error { return e.Err }

// Propagator copies user names into project snapshots.
type Propagator struct {
	users  Repository
	writer SnapshotWriter
	logger *zap.Logger
}

func NewPropagator(users Repository, writer SnapshotWriter, logger *zap.Logger) *Propagator {
	return &Propagator{users: users, writer: writer, logger: logger}
}

// Propagate writes the user's current name into the snapshots its role owns.
// Admins appear in no snapshot.
func (p *Propagator) Propagate(ctx context.Context, user *User) (int64, error) {
	var (
		modified int64
		err      error
	)
	switch user.Role {
	case auth.RoleStudent:
		modified, err = p.writer.RenameStudent(ctx, user.ID, user.FullName)
	case auth.RoleLeader:
		modified, err = p.writer.RenameLeader(ctx, user.ID, user.FullName)
	default:
		return 0, nil
	}
	if err != nil {
		return modified, &SnapshotSyncError{UserID: user.ID, Err: err}
	}
	return modified, nil
}

// SyncAll re-applies every user's name. Failures of single users do not stop
// the walk; they are joined into the returned error.
func (p *Propagator) SyncAll(ctx context.Context) error {
	start := time.Now()
	users, err := p.users.List(ctx, Filter{})
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var (
		errs     []error
		modified int64
	)
	for i := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := p.Propagate(ctx, &users[i])
		modified += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Info("Snapshot reconciliation finished",
		zap.Int("users", len(users)),
		zap.Int64("projects_modified", modified),
		zap.Int("failures", len(errs)),
		zap.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}
