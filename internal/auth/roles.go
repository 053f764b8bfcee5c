package auth

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the closed set of portal roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleLeader  Role = "LEADER"
	RoleStudent Role = "STUDENT"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLeader, RoleStudent:
		return true
	}
	return false
}

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID       primitive.ObjectID `json:"id"`
	Role     Role               `json:"role"`
	FullName string             `json:"fullName"`
	Email    string             `json:"email,omitempty"`
}

func (a Actor) Is(role Role) bool { return a.Role == role }
