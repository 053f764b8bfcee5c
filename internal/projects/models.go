package projects

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the administrative on/off switch of a project
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Stage tracks substantive progress independently from Status
type Stage string

const (
	StageNone       Stage = "none"
	StageStarted    Stage = "started"
	StageInProgress Stage = "in-progress"
	StageFinished   Stage = "finished"
)

// InscriptionStatus is the enrollment decision on a membership
type InscriptionStatus string

const (
	InscriptionPending  InscriptionStatus = "pending"
	InscriptionAccepted InscriptionStatus = "accepted"
	InscriptionRejected InscriptionStatus = "rejected"
)

// IsDecision reports whether s is a terminal enrollment decision.
func (s InscriptionStatus) IsDecision() bool {
	return s == InscriptionAccepted || s == InscriptionRejected
}

// LeaderRef is the immutable owner reference of a project. Only FullName
// changes, following profile renames.
type LeaderRef struct {
	ID       primitive.ObjectID `json:"id" bson:"id"`
	FullName string             `json:"fullName" bson:"fullName"`
}

// Objective is a specific objective owned by its project
type Objective struct {
	ID           primitive.ObjectID `json:"id" bson:"_id"`
	Title        string             `json:"title" bson:"title"`
	Accomplished bool               `json:"accomplished" bson:"accomplished"`
}

// Membership is a student's relationship to a project
type Membership struct {
	StudentID         primitive.ObjectID `json:"studentId" bson:"studentId"`
	FullName          string             `json:"fullName" bson:"fullName"`
	InscriptionStatus InscriptionStatus  `json:"inscriptionStatus" bson:"inscriptionStatus"`
	DateOfAdmission   *time.Time         `json:"dateOfAdmission" bson:"dateOfAdmission"`
	EgressDate        *time.Time         `json:"egressDate" bson:"egressDate"`
}

// ProgressEntry is one append-only progress report of a student
type ProgressEntry struct {
	ID              primitive.ObjectID `json:"id" bson:"_id"`
	StudentID       primitive.ObjectID `json:"studentId" bson:"studentId"`
	StudentFullName string             `json:"studentFullName" bson:"studentFullName"`
	Description     string             `json:"description" bson:"description"`
	Observation     string             `json:"observation,omitempty" bson:"observation,omitempty"`
	CreatedDate     time.Time          `json:"createdDate" bson:"createdDate"`
}

// Project is the aggregate root of the portal
type Project struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id"`
	Title              string             `json:"title" bson:"title"`
	GeneralObjective   string             `json:"generalObjective" bson:"generalObjective"`
	Budget             float64            `json:"budget" bson:"budget"`
	Status             Status             `json:"status" bson:"status"`
	Stage              Stage              `json:"stage" bson:"stage"`
	StartDate          *time.Time         `json:"startDate" bson:"startDate"`
	FinishDate         *time.Time         `json:"finishDate" bson:"finishDate"`
	LeaderInCharge     LeaderRef          `json:"leaderInCharge" bson:"leaderInCharge"`
	SpecificObjectives []Objective        `json:"specificObjectives" bson:"specificObjectives"`
	StudentsInProject  []Membership       `json:"studentsInProject" bson:"studentsInProject"`
	Progress           []ProgressEntry    `json:"progress" bson:"progress"`
	CreatedAt          time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// State returns the project's lifecycle state.
func (p *Project) State() State {
	return State{Status: p.Status, Stage: p.Stage}
}

// Membership returns the membership of studentID, if any.
func (p *Project) Membership(studentID primitive.ObjectID) (*Membership, bool) {
	for i := range p.StudentsInProject {
		if p.StudentsInProject[i].StudentID == studentID {
			return &p.StudentsInProject[i], true
		}
	}
	return nil, false
}

func (p *Project) Objective(id primitive.ObjectID) (*Objective, bool) {
	for i := range p.SpecificObjectives {
		if p.SpecificObjectives[i].ID == id {
			return &p.SpecificObjectives[i], true
		}
	}
	return nil, false
}

func (p *Project) ProgressEntry(id primitive.ObjectID) (*ProgressEntry, bool) {
	for i := range p.Progress {
		if p.Progress[i].ID == id {
			return &p.Progress[i], true
		}
	}
	return nil, false
}

// Requests

type RegisterProjectRequest struct {
	Title              string   `json:"title" validate:"required"`
	GeneralObjective   string   `json:"generalObjective" validate:"required"`
	Budget             float64  `json:"budget" validate:"gte=0"`
	SpecificObjectives []string `json:"specificObjectives" validate:"dive,required"`
}

type UpdateProjectRequest struct {
	Title            *string  `json:"title" validate:"omitempty,min=1"`
	GeneralObjective *string  `json:"generalObjective" validate:"omitempty,min=1"`
	Budget           *float64 `json:"budget" validate:"omitempty,gte=0"`
}

// Empty reports whether the request changes nothing.
func (r UpdateProjectRequest) Empty() bool {
	return r.Title == nil && r.GeneralObjective == nil && r.Budget == nil
}

// ObjectivePatch changes exactly the non-nil fields of one objective
type ObjectivePatch struct {
	Title        *string
	Accomplished *bool
}

// ProgressField names the amendable fields of a progress entry
type ProgressField string

const (
	ProgressDescription ProgressField = "description"
	ProgressObservation ProgressField = "observation"
)

// ListFilter narrows project listings. Nil fields do not filter.
type ListFilter struct {
	Status   *Status
	LeaderID *primitive.ObjectID
}

// InscriptionSummary lists the pending memberships of one project
type InscriptionSummary struct {
	ProjectID         primitive.ObjectID `json:"id"`
	Title             string             `json:"title"`
	StudentsInProject []Membership       `json:"studentsInProject"`
}

// ProgressView is the progress of a project as seen by an enrolled student
type ProgressView struct {
	ProjectID primitive.ObjectID `json:"id"`
	Title     string             `json:"title"`
	Progress  []ProgressEntry    `json:"progress"`
}
