package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"research-portal/project-portal-backend/internal/apperrors"
)

func actor(role Role) Actor {
	return Actor{ID: primitive.NewObjectID(), Role: role, FullName: string(role) + " user"}
}

func TestAuthorizeRoleTable(t *testing.T) {
	g := NewGuard()
	admin, leader, student := actor(RoleAdmin), actor(RoleLeader), actor(RoleStudent)

	cases := []struct {
		name    string
		actor   Actor
		action  Action
		allowed bool
	}{
		{"admin activates", admin, ActionActivateProject, true},
		{"leader cannot activate", leader, ActionActivateProject, false},
		{"student cannot finish", student, ActionFinishProject, false},
		{"admin finishes", admin, ActionFinishProject, true},
		{"leader registers project", leader, ActionRegisterProject, true},
		{"admin cannot register project", admin, ActionRegisterProject, false},
		{"student requests enrollment", student, ActionRequestEnrollment, true},
		{"leader cannot request enrollment", leader, ActionRequestEnrollment, false},
		{"student submits progress", student, ActionSubmitProgress, true},
		{"admin cannot submit progress", admin, ActionSubmitProgress, false},
		{"admin resolves enrollment", admin, ActionResolveEnrollment, true},
		{"student cannot resolve enrollment", student, ActionResolveEnrollment, false},
		{"student cannot amend progress", student, ActionAmendProgress, false},
		{"empty role is rejected", Actor{}, ActionListStudents, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Authorize(tc.actor, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, apperrors.ErrForbidden))
			}
		})
	}
}

func TestAuthorizeOwner(t *testing.T) {
	g := NewGuard()
	owner := actor(RoleLeader)
	other := actor(RoleLeader)
	admin := actor(RoleAdmin)

	assert.NoError(t, g.AuthorizeOwner(owner, ActionManageObjectives, owner.ID))

	err := g.AuthorizeOwner(other, ActionManageObjectives, owner.ID)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	// admins are not owner scoped for enrollment decisions
	assert.NoError(t, g.AuthorizeOwner(admin, ActionResolveEnrollment, owner.ID))
	// but may not edit objectives at all
	assert.Error(t, g.AuthorizeOwner(admin, ActionManageObjectives, owner.ID))
}

func TestOwnerScope(t *testing.T) {
	g := NewGuard()
	leader := actor(RoleLeader)

	id, scoped := g.OwnerScope(leader, ActionAmendProgress)
	assert.True(t, scoped)
	assert.Equal(t, leader.ID, id)

	_, scoped = g.OwnerScope(actor(RoleAdmin), ActionAmendProgress)
	assert.False(t, scoped)

	_, scoped = g.OwnerScope(actor(RoleStudent), ActionAmendProgress)
	assert.False(t, scoped)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" leader ")
	assert.NoError(t, err)
	assert.Equal(t, RoleLeader, r)

	_, err = ParseRole("LIDER")
	assert.Error(t, err)
	assert.Equal(t, "finish project", ActionFinishProject.String())
}
