package projects

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/apperrors"
	"research-portal/project-portal-backend/internal/auth"
)

// AppendProgress records a progress entry of an accepted student and moves
// the project to in-progress.
func (s *Service) AppendProgress(ctx context.Context, actor auth.Actor, projectID primitive.ObjectID, description string) (*Project, error) {
	const op = "projects.AppendProgress"
	if err := s.guard.Authorize(actor, auth.ActionSubmitProgress); err != nil {
		return nil, err
	}
	if err := requireText(op, "description", description); err != nil {
		return nil, err
	}

	now := s.clock()
	entry := ProgressEntry{
		ID:              primitive.NewObjectID(),
		StudentID:       actor.ID,
		StudentFullName: actor.FullName,
		Description:     description,
		CreatedDate:     now,
	}

	project, err := s.repo.AppendProgress(ctx, projectID, entry, s.lifecycle.ProgressStages(), now)
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, s.diagnoseProgress(ctx, op, projectID, actor.ID)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Progress registered",
		zap.String("project_id", projectID.Hex()),
		zap.String("progress_id", entry.ID.Hex()),
		zap.String("student_id", actor.ID.Hex()))
	return project, nil
}

func (s *Service) diagnoseProgress(ctx context.Context, op string, projectID, studentID primitive.ObjectID) error {
	project, err := s.load(ctx, op, projectID)
	if err != nil {
		return err
	}
	if _, err := s.lifecycle.Plan(TriggerProgress, project.State()); err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return apperrors.InvalidTransition(op, appErr.Message)
		}
		return err
	}
	if m, ok := project.Membership(studentID); !ok || m.InscriptionStatus != InscriptionAccepted {
		return apperrors.Forbidden(op, "only accepted students may report progress")
	}
	return apperrors.New(op, apperrors.ErrConflict, "project changed concurrently, retry the request")
}

// AmendDescription replaces the description of a progress entry.
func (s *Service) AmendDescription(ctx context.Context, actor auth.Actor, projectID, progressID primitive.ObjectID, text string) (*Project, error) {
	const op = "projects.AmendDescription"
	if err := requireText(op, "description", text); err != nil {
		return nil, err
	}
	return s.amendProgress(ctx, op, actor, projectID, progressID, ProgressDescription, text)
}

// AmendObservation sets the leader's observation on a progress entry.
func (s *Service) AmendObservation(ctx context.Context, actor auth.Actor, projectID, progressID primitive.ObjectID, text string) (*Project, error) {
	return s.amendProgress(ctx, "projects.AmendObservation", actor, projectID, progressID, ProgressObservation, text)
}

func (s *Service) amendProgress(ctx context.Context, op string, actor auth.Actor, projectID, progressID primitive.ObjectID, field ProgressField, text string) (*Project, error) {
	if err := s.guard.Authorize(actor, auth.ActionAmendProgress); err != nil {
		return nil, err
	}

	var owner *primitive.ObjectID
	if id, scoped := s.guard.OwnerScope(actor, auth.ActionAmendProgress); scoped {
		owner = &id
	}

	project, err := s.repo.AmendProgress(ctx, projectID, owner, progressID, field, text, s.clock())
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, s.diagnoseOwned(ctx, op, actor, auth.ActionAmendProgress, projectID, func(p *Project) error {
			if _, ok := p.ProgressEntry(progressID); !ok {
				return apperrors.NotFound(op, "progress entry not found")
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Progress amended",
		zap.String("project_id", projectID.Hex()),
		zap.String("progress_id", progressID.Hex()),
		zap.String("field", string(field)),
		zap.String("actor_id", actor.ID.Hex()))
	return project, nil
}

// ProgressForStudent returns the progress of a project the student is
// registered in.
func (s *Service) ProgressForStudent(ctx context.Context, actor auth.Actor, projectID primitive.ObjectID) (*ProgressView, error) {
	const op = "projects.ProgressForStudent"
	if err := s.guard.Authorize(actor, auth.ActionViewOwnProgress); err != nil {
		return nil, err
	}

	project, err := s.repo.FindForMember(ctx, projectID, actor.ID)
	if errors.Is(err, ErrNotFound) {
		if _, err := s.load(ctx, op, projectID); err != nil {
			return nil, err
		}
		return nil, apperrors.Forbidden(op, "student is not registered in this project")
	}
	if err != nil {
		return nil, err
	}

	progress := project.Progress
	if progress == nil {
		progress = []ProgressEntry{}
	}
	return &ProgressView{ProjectID: project.ID, Title: project.Title, Progress: progress}, nil
}
