package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/apperrors"
	"research-portal/project-portal-backend/internal/auth"
	"research-portal/project-portal-backend/pkg/password"
)

// Service manages accounts, sign in and profile changes.
type Service struct {
	repo       Repository
	propagator *Propagator
	tokens     *auth.TokenManager
	guard      *auth.Guard
	validate   *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(repo Repository, propagator *Propagator, tokens *auth.TokenManager, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		propagator: propagator,
		tokens:     tokens,
		guard:      auth.NewGuard(),
		validate:   validator.New(),
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Register creates a pending account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	const op = "users.Register"
	req.Email = normalizeEmail(req.Email)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if err := s.validateRequest(op, req); err != nil {
		return nil, err
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock()
	user := &User{
		ID:                   primitive.NewObjectID(),
		Email:                req.Email,
		FullName:             req.FullName,
		IdentificationNumber: req.IdentificationNumber,
		Role:                 auth.Role(req.Role),
		Status:               StatusPending,
		Address:              req.Address,
		Phone:                req.Phone,
		PasswordHash:         hash,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperrors.AlreadyExists(op, "email is already registered")
		}
		return nil, err
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID.Hex()),
		zap.String("role", string(user.Role)))
	return user, nil
}

// Authenticate checks the credentials of an authorized account and issues
// an access token.
func (s *Service) Authenticate(ctx context.Context, email, pass string) (*auth.Session, error) {
	const op = "users.Authenticate"
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.Unauthorized(op, "invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !password.Verify(pass, user.PasswordHash) {
		return nil, apperrors.Unauthorized(op, "invalid email or password")
	}
	if user.Status != StatusAuthorized {
		return nil, apperrors.Forbidden(op, "account is not authorized")
	}

	token, err := s.tokens.Issue(user.Actor(), string(user.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &auth.Session{Token: token, Actor: user.Actor()}, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*User, error) {
	return s.load(ctx, "users.Get", id)
}

// List returns every user.
func (s *Service) List(ctx context.Context, actor auth.Actor) ([]User, error) {
	if err := s.guard.Authorize(actor, auth.ActionListUsers); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Filter{})
}

// ListStudents returns the users with the STUDENT role.
func (s *Service) ListStudents(ctx context.Context, actor auth.Actor) ([]User, error) {
	if err := s.guard.Authorize(actor, auth.ActionListStudents); err != nil {
		return nil, err
	}
	role := auth.RoleStudent
	return s.repo.List(ctx, Filter{Role: &role})
}

// UpdateProfile changes a user's own profile. When the name changes it is
// copied into every project snapshot before returning; if that copy fails
// the updated user is returned together with a *SnapshotSyncError.
func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, id primitive.ObjectID, req UpdateProfileRequest) (*User, error) {
	const op = "users.UpdateProfile"
	if actor.ID != id && !actor.Is(auth.RoleAdmin) {
		return nil, apperrors.Forbidden(op, "users may only update their own profile")
	}
	if req.Empty() {
		return nil, apperrors.Validation(op, "nothing to update")
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		req.Email = &email
	}
	if err := s.validateRequest(op, req); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusAuthorized {
		return nil, apperrors.Forbidden(op, "account is not authorized")
	}

	update := ProfileUpdate{FullName: req.FullName, Email: req.Email, Address: req.Address, Phone: req.Phone}
	if req.Password != nil {
		hash, err := password.Hash(*req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		update.PasswordHash = &hash
	}

	user, err := s.repo.UpdateProfile(ctx, id, update, s.clock())
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, apperrors.NotFound(op, "user not found")
	case errors.Is(err, ErrEmailTaken):
		return nil, apperrors.AlreadyExists(op, "email is already registered")
	case err != nil:
		return nil, err
	}

	if req.FullName == nil || *req.FullName == current.FullName {
		return user, nil
	}

	modified, err := s.propagator.Propagate(ctx, user)
	if err != nil {
		s.logger.Error("Name snapshot sync failed",
			zap.String("user_id", id.Hex()),
			zap.Error(err))
		return user, err
	}
	s.logger.Info("Profile renamed",
		zap.String("user_id", id.Hex()),
		zap.Int64("projects_modified", modified))
	return user, nil
}

// ChangeStatus authorizes or blocks an account. Leaders may only change
// students.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Actor, id primitive.ObjectID, status Status) (*User, error) {
	const op = "users.ChangeStatus"
	if err := s.guard.Authorize(actor, auth.ActionChangeUserStatus); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.Validation(op, fmt.Sprintf("unknown status %q", status))
	}

	target, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if actor.Is(auth.RoleLeader) && target.Role != auth.RoleStudent {
		return nil, apperrors.Forbidden(op, "leaders may only change the status of students")
	}

	user, err := s.repo.UpdateStatus(ctx, id, status, s.clock())
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NotFound(op, "user not found")
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("User status changed",
		zap.String("user_id", id.Hex()),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.ID.Hex()))
	return user, nil
}

func (s *Service) load(ctx context.Context, op string, id primitive.ObjectID) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NotFound(op, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) validateRequest(op string, req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Wrap(op, apperrors.ErrValidation, "invalid request", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return apperrors.Validation(op, strings.Join(msgs, "; "))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
