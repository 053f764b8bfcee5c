package projects

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
)

// maxTransitionAttempts bounds how often a lifecycle change is re-planned
// when the project changed between reading it and the conditional update.
const maxTransitionAttempts = 3

// Service provides the project lifecycle, enrollment, progress and objective
// operations.
type Service struct {
	repo      Repository
	cache     Cache
	guard     *auth.Guard
	lifecycle *Lifecycle
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new projects service
func NewService(repo Repository, cache Cache, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		guard:     auth.NewGuard(),
		lifecycle: NewLifecycle(),
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// clock truncates to the storage precision so returned dates match what
// a later read returns.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// =====================================================
// Queries
// =====================================================

// ListProjects returns every project.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx, ListFilter{})
}

// ListActiveProjects returns the active projects, read through the cache.
func (s *Service) ListActiveProjects(ctx context.Context) ([]Project, error) {
	if cached, ok, err := s.cache.GetActive(ctx); err != nil {
		s.logger.Warn("Active projects cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	active := StatusActive
	projects, err := s.repo.List(ctx, ListFilter{Status: &active})
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetActive(ctx, projects); err != nil {
		s.logger.Warn("Active projects cache write failed", zap.Error(err))
	}
	return projects, nil
}

// GetLeaderProject returns a project if the actor is its leader.
func (s *Service) GetLeaderProject(ctx context.Context, actor auth.Actor, id primitive.ObjectID) (*Project, error) {
	const op = "projects.GetLeaderProject"
	if err := s.guard.Authorize(actor, auth.ActionViewLeaderProjects); err != nil {
		return nil, err
	}
	project, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizeOwner(actor, auth.ActionViewLeaderProjects, project.LeaderInCharge.ID); err != nil {
		return nil, err
	}
	return project, nil
}

// ListLeaderProjects returns the projects led by leaderID. Leaders default
// to, and are restricted to, their own projects.
func (s *Service) ListLeaderProjects(ctx context.Context, actor auth.Actor, leaderID *primitive.ObjectID) ([]Project, error) {
	const op = "projects.ListLeaderProjects"
	if err := s.guard.Authorize(actor, auth.ActionViewLeaderProjects); err != nil {
		return nil, err
	}
	if owner, scoped := s.guard.OwnerScope(actor, auth.ActionViewLeaderProjects); scoped {
		if leaderID != nil && *leaderID != owner {
			return nil, apperrors.Forbidden(op, "leaders may only list their own projects")
		}
		leaderID = &owner
	}
	if leaderID == nil {
		return nil, apperrors.Validation(op, "leaderId is required")
	}
	return s.repo.List(ctx, ListFilter{LeaderID: leaderID})
}

// =====================================================
// Project data
// =====================================================

// RegisterProject creates a project led by the actor in the initial state.
func (s *Service) RegisterProject(ctx context.Context, actor auth.Actor, req RegisterProjectRequest) (*Project, error) {
	const op = "projects.RegisterProject"
	if err := s.guard.Authorize(actor, auth.ActionRegisterProject); err != nil {
		return nil, err
	}
	if err := s.validateRequest(op, req); err != nil {
		return nil, err
	}

	now := s.clock()
	objectives := make([]Objective, 0, len(req.SpecificObjectives))
	for _, title := range req.SpecificObjectives {
		objectives = append(objectives, Objective{ID: primitive.NewObjectID(), Title: title})
	}

	project := &Project{
		ID:                 primitive.NewObjectID(),
		Title:              req.Title,
		GeneralObjective:   req.GeneralObjective,
		Budget:             req.Budget,
		Status:             InitialState.Status,
		Stage:              InitialState.Stage,
		LeaderInCharge:     LeaderRef{ID: actor.ID, FullName: actor.FullName},
		SpecificObjectives: objectives,
		StudentsInProject:  []Membership{},
		Progress:           []ProgressEntry{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to register project: %w", err)
	}

	s.logger.Info("Project registered",
		zap.String("project_id", project.ID.Hex()),
		zap.String("leader_id", actor.ID.Hex()))
	return project, nil
}

// UpdateProjectData edits the descriptive fields of a project owned by the actor.
func (s *Service) UpdateProjectData(ctx context.Context, actor auth.Actor, id primitive.ObjectID, req UpdateProjectRequest) (*Project, error) {
	const op = "projects.UpdateProjectData"
	if err := s.guard.Authorize(actor, auth.ActionEditProjectData); err != nil {
		return nil, err
	}
	if req.Empty() {
		return nil, apperrors.Validation(op, "nothing to update")
	}
	if err := s.validateRequest(op, req); err != nil {
		return nil, err
	}

	project, err := s.repo.UpdateData(ctx, id, actor.ID, req, s.clock())
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, s.diagnoseOwned(ctx, op, actor, auth.ActionEditProjectData, id, nil)
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return project, nil
}

// =====================================================
// Lifecycle
// =====================================================

// UpdateStatus activates or deactivates a project.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id primitive.ObjectID, status Status) (*Project, error) {
	switch status {
	case StatusActive:
		return s.Activate(ctx, actor, id)
	case StatusInactive:
		return s.Deactivate(ctx, actor, id)
	default:
		return nil, apperrors.Validation("projects.UpdateStatus", fmt.Sprintf("unknown status %q", status))
	}
}

// Activate switches a project on. The first activation starts it.
func (s *Service) Activate(ctx context.Context, actor auth.Actor, id primitive.ObjectID) (*Project, error) {
	return s.fire(ctx, "projects.Activate", actor, auth.ActionActivateProject, TriggerActivate, id)
}

// Deactivate switches a project off and closes the participation of its
// accepted students.
func (s *Service) Deactivate(ctx context.Context, actor auth.Actor, id primitive.ObjectID) (*Project, error) {
	return s.fire(ctx, "projects.Deactivate", actor, auth.ActionDeactivateProject, TriggerDeactivate, id)
}

// Finish terminates an in-progress project.
func (s *Service) Finish(ctx context.Context, actor auth.Actor, id primitive.ObjectID) (*Project, error) {
	return s.fire(ctx, "projects.Finish", actor, auth.ActionFinishProject, TriggerFinish, id)
}

// fire plans trigger against the persisted state and applies it with that
// state as the update's precondition. If the project moved in between, the
// transition is planned again from the new state.
func (s *Service) fire(ctx context.Context, op string, actor auth.Actor, action auth.Action, trigger Trigger, id primitive.ObjectID) (*Project, error) {
	if err := s.guard.Authorize(actor, action); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := s.load(ctx, op, id)
		if err != nil {
			return nil, err
		}

		t, err := s.lifecycle.Plan(trigger, current.State())
		if err != nil {
			var appErr *apperrors.Error
			if errors.As(err, &appErr) {
				return nil, apperrors.InvalidTransition(op, appErr.Message)
			}
			return nil, err
		}
		if t.NoOp() {
			return current, nil
		}

		updated, err := s.repo.ApplyTransition(ctx, id, t, s.clock())
		if errors.Is(err, ErrPreconditionFailed) {
			s.logger.Debug("Project changed during transition, replanning",
				zap.String("project_id", id.Hex()),
				zap.String("trigger", string(trigger)),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.invalidate(ctx)
		s.logger.Info("Project transitioned",
			zap.String("project_id", id.Hex()),
			zap.String("trigger", string(trigger)),
			zap.String("from", t.From.String()),
			zap.String("to", t.To.String()),
			zap.String("actor_id", actor.ID.Hex()))
		return updated, nil
	}

	return nil, apperrors.New(op, apperrors.ErrConflict, "project is being modified concurrently, retry the request")
}

// =====================================================
// Helpers
// =====================================================

func (s *Service) load(ctx context.Context, op string, id primitive.ObjectID) (*Project, error) {
	project, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NotFound(op, "project not found")
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

// diagnoseOwned explains why an owner scoped conditional update matched
// nothing. check, when set, inspects the loaded project for the
// operation specific precondition.
func (s *Service) diagnoseOwned(ctx context.Context, op string, actor auth.Actor, action auth.Action, id primitive.ObjectID, check func(*Project) error) error {
	project, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if err := s.guard.AuthorizeOwner(actor, action, project.LeaderInCharge.ID); err != nil {
		return err
	}
	if check != nil {
		if err := check(project); err != nil {
			return err
		}
	}
	return apperrors.New(op, apperrors.ErrConflict, "project changed concurrently, retry the request")
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Active projects cache invalidation failed", zap.Error(err))
	}
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
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return apperrors.Validation(op, strings.Join(msgs, "; "))
}

func requireText(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.Validation(op, field+" is required")
	}
	return nil
}
