package projects

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/apperrors"
	"research-portal/project-portal-backend/internal/auth"
)

// RequestEnrollment adds a pending membership for the student on an active project.
func (s *Service) RequestEnrollment(ctx context.Context, actor auth.Actor, projectID primitive.ObjectID) (*Project, error) {
	const op = "projects.RequestEnrollment"
	if err := s.guard.Authorize(actor, auth.ActionRequestEnrollment); err != nil {
		return nil, err
	}

	membership := Membership{
		StudentID:         actor.ID,
		FullName:          actor.FullName,
		InscriptionStatus: InscriptionPending,
	}
	project, err := s.repo.AddMembership(ctx, projectID, membership, s.clock())
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, s.diagnoseEnrollment(ctx, op, projectID, actor.ID)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Enrollment requested",
		zap.String("project_id", projectID.Hex()),
		zap.String("student_id", actor.ID.Hex()))
	return project, nil
}

func (s *Service) diagnoseEnrollment(ctx context.Context, op string, projectID, studentID primitive.ObjectID) error {
	project, err := s.load(ctx, op, projectID)
	if err != nil {
		return err
	}
	if _, ok := project.Membership(studentID); ok {
		return apperrors.AlreadyExists(op, "student is already registered in this project")
	}
	if project.Status != StatusActive {
		return apperrors.InvalidTransition(op, "enrollment is only open on active projects")
	}
	return apperrors.New(op, apperrors.ErrConflict, "project changed concurrently, retry the request")
}

// ResolveEnrollment accepts or rejects a pending membership. Leaders may only
// resolve inscriptions of their own projects.
func (s *Service) ResolveEnrollment(ctx context.Context, actor auth.Actor, projectID, studentID primitive.ObjectID, decision InscriptionStatus) (*Project, error) {
	const op = "projects.ResolveEnrollment"
	if !decision.IsDecision() {
		return nil, apperrors.Validation(op, fmt.Sprintf("inscription status must be %s or %s, got %q",
			InscriptionAccepted, InscriptionRejected, decision))
	}
	if err := s.guard.Authorize(actor, auth.ActionResolveEnrollment); err != nil {
		return nil, err
	}

	var owner *primitive.ObjectID
	if id, scoped := s.guard.OwnerScope(actor, auth.ActionResolveEnrollment); scoped {
		owner = &id
	}

	project, err := s.repo.ResolveMembership(ctx, projectID, owner, studentID, decision, s.clock())
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, s.diagnoseOwned(ctx, op, actor, auth.ActionResolveEnrollment, projectID, func(p *Project) error {
			m, ok := p.Membership(studentID)
			if !ok {
				return apperrors.NotFound(op, "student has no inscription in this project")
			}
			if m.InscriptionStatus != InscriptionPending {
				return apperrors.InvalidTransition(op,
					fmt.Sprintf("inscription was already %s", m.InscriptionStatus))
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Enrollment resolved",
		zap.String("project_id", projectID.Hex()),
		zap.String("student_id", studentID.Hex()),
		zap.String("decision", string(decision)),
		zap.String("actor_id", actor.ID.Hex()))
	return project, nil
}

// PendingInscriptions lists the leader's projects that have pending
// memberships, each with only those memberships.
func (s *Service) PendingInscriptions(ctx context.Context, actor auth.Actor) ([]InscriptionSummary, error) {
	if err := s.guard.Authorize(actor, auth.ActionViewPendingInscriptions); err != nil {
		return nil, err
	}

	projects, err := s.repo.ListWithPendingInscriptions(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]InscriptionSummary, 0, len(projects))
	for _, p := range projects {
		pending := make([]Membership, 0, len(p.StudentsInProject))
		for _, m := range p.StudentsInProject {
			if m.InscriptionStatus == InscriptionPending {
				pending = append(pending, m)
			}
		}
		if len(pending) == 0 {
			continue
		}
		summaries = append(summaries, InscriptionSummary{
			ProjectID:         p.ID,
			Title:             p.Title,
			StudentsInProject: pending,
		})
	}
	return summaries, nil
}
