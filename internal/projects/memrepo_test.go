package projects

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memRepository keeps projects in memory and applies each conditional update
// under one lock, checking the same preconditions the Mongo filters encode.
type memRepository struct {
	mu       sync.Mutex
	projects map[primitive.ObjectID]*Project

	// onTransition runs under the lock before a transition's precondition is
	// checked, to simulate a concurrent writer.
	onTransition func(p *Project)
}

func newMemRepository() *memRepository {
	return &memRepository{projects: make(map[primitive.ObjectID]*Project)}
}

func cloneProject(p *Project) *Project {
	c := *p
	c.SpecificObjectives = append([]Objective{}, p.SpecificObjectives...)
	c.StudentsInProject = append([]Membership{}, p.StudentsInProject...)
	c.Progress = append([]ProgressEntry{}, p.Progress...)
	return &c
}

func ownedBy(p *Project, owner *primitive.ObjectID) bool {
	return owner == nil || p.LeaderInCharge.ID == *owner
}

func (r *memRepository) Create(_ context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; ok {
		return errors.New("duplicate key")
	}
	r.projects[project.ID] = cloneProject(project)
	return nil
}

func (r *memRepository) FindByID(_ context.Context, id primitive.ObjectID) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(p), nil
}

func (r *memRepository) List(_ context.Context, filter ListFilter) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Project{}
	for _, p := range r.projects {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.LeaderID != nil && p.LeaderInCharge.ID != *filter.LeaderID {
			continue
		}
		out = append(out, *cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (r *memRepository) ListWithPendingInscriptions(_ context.Context, leaderID primitive.ObjectID) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Project{}
	for _, p := range r.projects {
		if p.LeaderInCharge.ID != leaderID {
			continue
		}
		for _, m := range p.StudentsInProject {
			if m.InscriptionStatus == InscriptionPending {
				out = append(out, Project{ID: p.ID, Title: p.Title, StudentsInProject: append([]Membership{}, p.StudentsInProject...)})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (r *memRepository) FindForMember(_ context.Context, id, studentID primitive.ObjectID) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := p.Membership(studentID); !ok {
		return nil, ErrNotFound
	}
	return &Project{ID: p.ID, Title: p.Title, Progress: append([]ProgressEntry{}, p.Progress...)}, nil
}

// update applies fn to the stored project when it exists and pred holds.
func (r *memRepository) update(id primitive.ObjectID, pred func(*Project) bool, fn func(*Project)) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || !pred(p) {
		return nil, ErrPreconditionFailed
	}
	fn(p)
	return cloneProject(p), nil
}

func (r *memRepository) UpdateData(_ context.Context, id, leaderID primitive.ObjectID, req UpdateProjectRequest, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool { return ownedBy(p, &leaderID) },
		func(p *Project) {
			if req.Title != nil {
				p.Title = *req.Title
			}
			if req.GeneralObjective != nil {
				p.GeneralObjective = *req.GeneralObjective
			}
			if req.Budget != nil {
				p.Budget = *req.Budget
			}
			p.UpdatedAt = now
		})
}

func (r *memRepository) ApplyTransition(_ context.Context, id primitive.ObjectID, t Transition, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool {
			if r.onTransition != nil {
				r.onTransition(p)
			}
			return p.State() == t.From
		},
		func(p *Project) {
			p.Status, p.Stage = t.To.Status, t.To.Stage
			if t.Has(EffectSetStartDate) {
				p.StartDate = &now
			}
			if t.Has(EffectSetFinishDate) {
				p.FinishDate = &now
			}
			if t.Has(EffectCloseMemberships) {
				for i := range p.StudentsInProject {
					m := &p.StudentsInProject[i]
					if m.InscriptionStatus == InscriptionAccepted && m.EgressDate == nil {
						m.EgressDate = &now
					}
				}
			}
			p.UpdatedAt = now
		})
}

func (r *memRepository) AddMembership(_ context.Context, id primitive.ObjectID, m Membership, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool {
			_, exists := p.Membership(m.StudentID)
			return p.Status == StatusActive && !exists
		},
		func(p *Project) {
			p.StudentsInProject = append(p.StudentsInProject, m)
			p.UpdatedAt = now
		})
}

func (r *memRepository) ResolveMembership(_ context.Context, id primitive.ObjectID, owner *primitive.ObjectID, studentID primitive.ObjectID, decision InscriptionStatus, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool {
			m, ok := p.Membership(studentID)
			return ownedBy(p, owner) && ok && m.InscriptionStatus == InscriptionPending
		},
		func(p *Project) {
			m, _ := p.Membership(studentID)
			m.InscriptionStatus = decision
			m.DateOfAdmission = &now
			p.UpdatedAt = now
		})
}

func (r *memRepository) AppendProgress(_ context.Context, id primitive.ObjectID, entry ProgressEntry, stages []Stage, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool {
			stageOK := false
			for _, s := range stages {
				if p.Stage == s {
					stageOK = true
				}
			}
			m, ok := p.Membership(entry.StudentID)
			return stageOK && ok && m.InscriptionStatus == InscriptionAccepted
		},
		func(p *Project) {
			p.Progress = append(p.Progress, entry)
			p.Stage = StageInProgress
			p.UpdatedAt = now
		})
}

func (r *memRepository) AmendProgress(_ context.Context, id primitive.ObjectID, owner *primitive.ObjectID, progressID primitive.ObjectID, field ProgressField, value string, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool {
			_, ok := p.ProgressEntry(progressID)
			return ownedBy(p, owner) && ok
		},
		func(p *Project) {
			e, _ := p.ProgressEntry(progressID)
			switch field {
			case ProgressDescription:
				e.Description = value
			case ProgressObservation:
				e.Observation = value
			}
			p.UpdatedAt = now
		})
}

func (r *memRepository) AddObjective(_ context.Context, id, leaderID primitive.ObjectID, objective Objective, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool { return ownedBy(p, &leaderID) },
		func(p *Project) {
			p.SpecificObjectives = append(p.SpecificObjectives, objective)
			p.UpdatedAt = now
		})
}

func (r *memRepository) UpdateObjective(_ context.Context, id, leaderID, objectiveID primitive.ObjectID, patch ObjectivePatch, now time.Time) (*Project, error) {
	return r.update(id,
		func(p *Project) bool {
			_, ok := p.Objective(objectiveID)
			return ownedBy(p, &leaderID) && ok
		},
		func(p *Project) {
			o, _ := p.Objective(objectiveID)
			if patch.Title != nil {
				o.Title = *patch.Title
			}
			if patch.Accomplished != nil {
				o.Accomplished = *patch.Accomplished
			}
			p.UpdatedAt = now
		})
}

func (r *memRepository) RenameStudent(_ context.Context, studentID primitive.ObjectID, fullName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var modified int64
	for _, p := range r.projects {
		changed := false
		for i := range p.StudentsInProject {
			if p.StudentsInProject[i].StudentID == studentID && p.StudentsInProject[i].FullName != fullName {
				p.StudentsInProject[i].FullName = fullName
				changed = true
			}
		}
		for i := range p.Progress {
			if p.Progress[i].StudentID == studentID && p.Progress[i].StudentFullName != fullName {
				p.Progress[i].StudentFullName = fullName
				changed = true
			}
		}
		if changed {
			modified++
		}
	}
	return modified, nil
}

func (r *memRepository) RenameLeader(_ context.Context, leaderID primitive.ObjectID, fullName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var modified int64
	for _, p := range r.projects {
		if p.LeaderInCharge.ID == leaderID && p.LeaderInCharge.FullName != fullName {
			p.LeaderInCharge.FullName = fullName
			modified++
		}
	}
	return modified, nil
}
