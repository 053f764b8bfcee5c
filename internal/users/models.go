package users

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"research-portal/project-portal-backend/internal/auth"
)

// Status is the account authorization state
type Status string

const (
	StatusPending      Status = "pending"
	StatusAuthorized   Status = "authorized"
	StatusUnauthorized Status = "unauthorized"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAuthorized, StatusUnauthorized:
		return true
	}
	return false
}

// User is a portal account
type User struct {
	ID                   primitive.ObjectID `json:"id" bson:"_id"`
	Email                string             `json:"email" bson:"email"`
	FullName             string             `json:"fullName" bson:"fullName"`
	IdentificationNumber string             `json:"identificationNumber" bson:"identificationNumber"`
	Role                 auth.Role          `json:"role" bson:"role"`
	Status               Status             `json:"status" bson:"status"`
	Address              string             `json:"address,omitempty" bson:"address,omitempty"`
	Phone                string             `json:"phone,omitempty" bson:"phone,omitempty"`
	PasswordHash         string             `json:"-" bson:"password"`
	CreatedAt            time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Actor returns the user as an authenticated caller.
func (u *User) Actor() auth.Actor {
	return auth.Actor{ID: u.ID, Role: u.Role, FullName: u.FullName, Email: u.Email}
}

type RegisterRequest struct {
	IdentificationNumber string `json:"identificationNumber" validate:"required"`
	FullName             string `json:"fullName" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=8"`
	Role                 string `json:"role" validate:"required,oneof=ADMIN LEADER STUDENT"`
	Address              string `json:"address"`
	Phone                string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest changes exactly the non-nil fields.
type UpdateProfileRequest struct {
	FullName *string `json:"fullName" validate:"omitempty,min=1"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	Address  *string `json:"address"`
	Phone    *string `json:"phone"`
}

func (r UpdateProfileRequest) Empty() bool {
	return r.FullName == nil && r.Email == nil && r.Password == nil && r.Address == nil && r.Phone == nil
}

// ProfileUpdate is the persisted form of a profile change
type ProfileUpdate struct {
	FullName     *string
	Email        *string
	PasswordHash *string
	Address      *string
	Phone        *string
}

// Filter narrows user listings. Nil fields do not filter.
type Filter struct {
	Role *auth.Role
}
