package projects

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/apperrors"
	"research-portal/project-portal-backend/internal/auth"
)

// AddObjective appends a new, unaccomplished objective.
func (s *Service) AddObjective(ctx context.Context, actor auth.Actor, projectID primitive.ObjectID, title string) (*Project, error) {
	const op = "projects.AddObjective"
	if err := s.guard.Authorize(actor, auth.ActionManageObjectives); err != nil {
		return nil, err
	}
	if err := requireText(op, "title", title); err != nil {
		return nil, err
	}

	objective := Objective{ID: primitive.NewObjectID(), Title: title}
	project, err := s.repo.AddObjective(ctx, projectID, actor.ID, objective, s.clock())
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, s.diagnoseOwned(ctx, op, actor, auth.ActionManageObjectives, projectID, nil)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Objective added",
		zap.String("project_id", projectID.Hex()),
		zap.String("objective_id", objective.ID.Hex()))
	return project, nil
}

// RenameObjective changes the title of an objective.
func (s *Service) RenameObjective(ctx context.Context, actor auth.Actor, projectID, objectiveID primitive.ObjectID, title string) (*Project, error) {
	const op = "projects.RenameObjective"
	if err := requireText(op, "title", title); err != nil {
		return nil, err
	}
	return s.updateObjective(ctx, op, actor, projectID, objectiveID, ObjectivePatch{Title: &title})
}

// SetObjectiveAccomplished marks an objective done or not done.
func (s *Service) SetObjectiveAccomplished(ctx context.Context, actor auth.Actor, projectID, objectiveID primitive.ObjectID, accomplished bool) (*Project, error) {
	return s.updateObjective(ctx, "projects.SetObjectiveAccomplished", actor, projectID, objectiveID,
		ObjectivePatch{Accomplished: &accomplished})
}

func (s *Service) updateObjective(ctx context.Context, op string, actor auth.Actor, projectID, objectiveID primitive.ObjectID, patch ObjectivePatch) (*Project, error) {
	if err := s.guard.Authorize(actor, auth.ActionManageObjectives); err != nil {
		return nil, err
	}

	project, err := s.repo.UpdateObjective(ctx, projectID, actor.ID, objectiveID, patch, s.clock())
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, s.diagnoseOwned(ctx, op, actor, auth.ActionManageObjectives, projectID, func(p *Project) error {
			if _, ok := p.Objective(objectiveID); !ok {
				return apperrors.NotFound(op, "objective not found")
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Objective updated",
		zap.String("project_id", projectID.Hex()),
		zap.String("objective_id", objectiveID.Hex()))
	return project, nil
}
