package auth

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"research-portal/project-portal-backend/internal/apperrors"
)

// Action is a guarded operation.
type Action int

const (
	ActionActivateProject Action = iota + 1
	ActionDeactivateProject
	ActionFinishProject
	ActionRegisterProject
	ActionEditProjectData
	ActionManageObjectives
	ActionResolveEnrollment
	ActionAmendProgress
	ActionRequestEnrollment
	ActionSubmitProgress
	ActionViewOwnProgress
	ActionViewLeaderProjects
	ActionViewPendingInscriptions
	ActionListStudents
	ActionListUsers
	ActionChangeUserStatus
)

var actionNames = map[Action]string{
	ActionActivateProject:         "activate project",
	ActionDeactivateProject:       "deactivate project",
	ActionFinishProject:           "finish project",
	ActionRegisterProject:         "register project",
	ActionEditProjectData:         "edit project data",
	ActionManageObjectives:        "manage objectives",
	ActionResolveEnrollment:       "resolve enrollment",
	ActionAmendProgress:           "amend progress",
	ActionRequestEnrollment:       "request enrollment",
	ActionSubmitProgress:          "submit progress",
	ActionViewOwnProgress:         "view own progress",
	ActionViewLeaderProjects:      "view leader projects",
	ActionViewPendingInscriptions: "view pending inscriptions",
	ActionListStudents:            "list students",
	ActionListUsers:               "list users",
	ActionChangeUserStatus:        "change user status",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// scope says whether a permitted role is further restricted to projects it owns.
type scope uint8

const (
	scopeAny scope = iota
	scopeOwner
)

var permissions = map[Action]map[Role]scope{
	ActionActivateProject:         {RoleAdmin: scopeAny},
	ActionDeactivateProject:       {RoleAdmin: scopeAny},
	ActionFinishProject:           {RoleAdmin: scopeAny},
	ActionRegisterProject:         {RoleLeader: scopeAny},
	ActionEditProjectData:         {RoleLeader: scopeOwner},
	ActionManageObjectives:        {RoleLeader: scopeOwner},
	ActionResolveEnrollment:       {RoleLeader: scopeOwner, RoleAdmin: scopeAny},
	ActionAmendProgress:           {RoleLeader: scopeOwner, RoleAdmin: scopeAny},
	ActionRequestEnrollment:       {RoleStudent: scopeAny},
	ActionSubmitProgress:          {RoleStudent: scopeAny},
	ActionViewOwnProgress:         {RoleStudent: scopeAny},
	ActionViewLeaderProjects:      {RoleLeader: scopeOwner, RoleAdmin: scopeAny},
	ActionViewPendingInscriptions: {RoleLeader: scopeOwner},
	ActionListStudents:            {RoleAdmin: scopeAny, RoleLeader: scopeAny},
	ActionListUsers:               {RoleAdmin: scopeAny},
	ActionChangeUserStatus:        {RoleAdmin: scopeAny, RoleLeader: scopeAny},
}

// Guard decides whether an actor may perform an action. It holds no state
// besides the permission table and never touches storage.
type Guard struct {
	table map[Action]map[Role]scope
}

func NewGuard() *Guard {
	return &Guard{table: permissions}
}

// Authorize checks the actor's role against the action.
func (g *Guard) Authorize(actor Actor, action Action) error {
	if _, ok := g.table[action][actor.Role]; !ok {
		return apperrors.Forbidden("auth.Authorize",
			fmt.Sprintf("role %s is not allowed to %s", roleName(actor.Role), action))
	}
	return nil
}

// AuthorizeOwner checks the role and, when the role is owner scoped for the
// action, that the actor is the owner.
func (g *Guard) AuthorizeOwner(actor Actor, action Action, ownerID primitive.ObjectID) error {
	if err := g.Authorize(actor, action); err != nil {
		return err
	}
	if g.table[action][actor.Role] == scopeOwner && actor.ID != ownerID {
		return apperrors.Forbidden("auth.AuthorizeOwner",
			fmt.Sprintf("only the leader in charge may %s", action))
	}
	return nil
}

// OwnerScope returns the owner id a storage filter must be restricted to, and
// false when the actor's role is not owner scoped for the action.
func (g *Guard) OwnerScope(actor Actor, action Action) (primitive.ObjectID, bool) {
	if s, ok := g.table[action][actor.Role]; ok && s == scopeOwner {
		return actor.ID, true
	}
	return primitive.NilObjectID, false
}

func roleName(r Role) string {
	if r == "" {
		return "<none>"
	}
	return string(r)
}
