package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no project has the requested id.
	ErrNotFound = errors.New("project not found")
	// ErrPreconditionFailed is returned by conditional updates whose filter
	// matched no document. Nothing was written.
	ErrPreconditionFailed = errors.New("project precondition failed")
)

// Repository persists projects. Every mutating method is a single atomic
// update whose filter carries its precondition; owner, when non-nil,
// restricts the update to projects led by that user.
type Repository interface {
	Create(ctx context.Context, project *Project) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Project, error)
	List(ctx context.Context, filter ListFilter) ([]Project, error)
	ListWithPendingInscriptions(ctx context.Context, leaderID primitive.ObjectID) ([]Project, error)
	FindForMember(ctx context.Context, id, studentID primitive.ObjectID) (*Project, error)

	UpdateData(ctx context.Context, id, leaderID primitive.ObjectID, req UpdateProjectRequest, now time.Time) (*Project, error)
	ApplyTransition(ctx context.Context, id primitive.ObjectID, t Transition, now time.Time) (*Project, error)

	AddMembership(ctx context.Context, id primitive.ObjectID, m Membership, now time.Time) (*Project, error)
	ResolveMembership(ctx context.Context, id primitive.ObjectID, owner *primitive.ObjectID, studentID primitive.ObjectID, decision InscriptionStatus, now time.Time) (*Project, error)

	AppendProgress(ctx context.Context, id primitive.ObjectID, entry ProgressEntry, stages []Stage, now time.Time) (*Project, error)
	AmendProgress(ctx context.Context, id primitive.ObjectID, owner *primitive.ObjectID, progressID primitive.ObjectID, field ProgressField, value string, now time.Time) (*Project, error)

	AddObjective(ctx context.Context, id, leaderID primitive.ObjectID, objective Objective, now time.Time) (*Project, error)
	UpdateObjective(ctx context.Context, id, leaderID, objectiveID primitive.ObjectID, patch ObjectivePatch, now time.Time) (*Project, error)

	RenameStudent(ctx context.Context, studentID primitive.ObjectID, fullName string) (int64, error)
	RenameLeader(ctx context.Context, leaderID primitive.ObjectID, fullName string) (int64, error)
}

const collectionName = "projects"

// MongoRepository stores projects as documents with embedded objectives,
// memberships and progress entries.
type MongoRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoRepository creates a repository over the projects collection
func NewMongoRepository(db *mongo.Database, timeout time.Duration) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection(collectionName),
		timeout:    timeout,
	}
}

// EnsureIndexes creates the indexes project queries rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "leaderInCharge.id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "studentsInProject.studentId", Value: 1}}},
		{Keys: bson.D{{Key: "progress.studentId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("projects: create indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, project *Project) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, project); err != nil {
		return fmt.Errorf("projects: insert: %w", err)
	}
	return nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Project, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) FindForMember(ctx context.Context, id, studentID primitive.ObjectID) (*Project, error) {
	return r.findOne(ctx, bson.M{"_id": id, "studentsInProject.studentId": studentID},
		options.FindOne().SetProjection(bson.M{"_id": 1, "title": 1, "progress": 1}))
}

func (r *MongoRepository) List(ctx context.Context, filter ListFilter) ([]Project, error) {
	return r.find(ctx, listFilter(filter))
}

func (r *MongoRepository) ListWithPendingInscriptions(ctx context.Context, leaderID primitive.ObjectID) ([]Project, error) {
	return r.find(ctx, bson.M{
		"leaderInCharge.id":                   leaderID,
		"studentsInProject.inscriptionStatus": InscriptionPending,
	}, options.Find().SetProjection(bson.M{"_id": 1, "title": 1, "studentsInProject": 1}))
}

func (r *MongoRepository) UpdateData(ctx context.Context, id, leaderID primitive.ObjectID, req UpdateProjectRequest, now time.Time) (*Project, error) {
	return r.findOneAndUpdate(ctx, ownedFilter(id, &leaderID), dataUpdate(req, now), nil)
}

func (r *MongoRepository) ApplyTransition(ctx context.Context, id primitive.ObjectID, t Transition, now time.Time) (*Project, error) {
	update, arrayFilters := transitionUpdate(t, now)
	return r.findOneAndUpdate(ctx, transitionFilter(id, t), update, arrayFilters)
}

func (r *MongoRepository) AddMembership(ctx context.Context, id primitive.ObjectID, m Membership, now time.Time) (*Project, error) {
	return r.findOneAndUpdate(ctx, enrollmentFilter(id, m.StudentID), bson.M{
		"$push": bson.M{"studentsInProject": m},
		"$set":  bson.M{"updatedAt": now},
	}, nil)
}

func (r *MongoRepository) ResolveMembership(ctx context.Context, id primitive.ObjectID, owner *primitive.ObjectID, studentID primitive.ObjectID, decision InscriptionStatus, now time.Time) (*Project, error) {
	filter, update, arrayFilters := resolveUpdate(id, owner, studentID, decision, now)
	return r.findOneAndUpdate(ctx, filter, update, arrayFilters)
}

func (r *MongoRepository) AppendProgress(ctx context.Context, id primitive.ObjectID, entry ProgressEntry, stages []Stage, now time.Time) (*Project, error) {
	return r.findOneAndUpdate(ctx, progressFilter(id, entry.StudentID, stages), bson.M{
		"$push": bson.M{"progress": entry},
		"$set":  bson.M{"stage": StageInProgress, "updatedAt": now},
	}, nil)
}

func (r *MongoRepository) AmendProgress(ctx context.Context, id primitive.ObjectID, owner *primitive.ObjectID, progressID primitive.ObjectID, field ProgressField, value string, now time.Time) (*Project, error) {
	filter := ownedFilter(id, owner)
	filter["progress._id"] = progressID
	return r.findOneAndUpdate(ctx, filter, bson.M{
		"$set": bson.M{
			"progress.$[p]." + string(field): value,
			"updatedAt":                      now,
		},
	}, []interface{}{bson.M{"p._id": progressID}})
}

func (r *MongoRepository) AddObjective(ctx context.Context, id, leaderID primitive.ObjectID, objective Objective, now time.Time) (*Project, error) {
	return r.findOneAndUpdate(ctx, ownedFilter(id, &leaderID), bson.M{
		"$push": bson.M{"specificObjectives": objective},
		"$set":  bson.M{"updatedAt": now},
	}, nil)
}

func (r *MongoRepository) UpdateObjective(ctx context.Context, id, leaderID, objectiveID primitive.ObjectID, patch ObjectivePatch, now time.Time) (*Project, error) {
	filter := ownedFilter(id, &leaderID)
	filter["specificObjectives._id"] = objectiveID
	update, arrayFilters := objectiveUpdate(objectiveID, patch, now)
	return r.findOneAndUpdate(ctx, filter, update, arrayFilters)
}

func (r *MongoRepository) RenameStudent(ctx context.Context, studentID primitive.ObjectID, fullName string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	filter, update, arrayFilters := renameStudentUpdate(studentID, fullName)
	res, err := r.collection.UpdateMany(ctx, filter, update,
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: arrayFilters}))
	if err != nil {
		return 0, fmt.Errorf("projects: rename student snapshots: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) RenameLeader(ctx context.Context, leaderID primitive.ObjectID, fullName string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.collection.UpdateMany(ctx,
		bson.M{"leaderInCharge.id": leaderID, "leaderInCharge.fullName": bson.M{"$ne": fullName}},
		bson.M{"$set": bson.M{"leaderInCharge.fullName": fullName}})
	if err != nil {
		return 0, fmt.Errorf("projects: rename leader snapshots: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*Project, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var project Project
	err := r.collection.FindOne(ctx, filter, opts...).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("projects: find one: %w", err)
	}
	return &project, nil
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]Project, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("projects: find: %w", err)
	}
	defer cursor.Close(ctx)

	projects := []Project{}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("projects: decode: %w", err)
	}
	return projects, nil
}

func (r *MongoRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M, arrayFilters []interface{}) (*Project, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if len(arrayFilters) > 0 {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}

	var project Project
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPreconditionFailed
	}
	if err != nil {
		return nil, fmt.Errorf("projects: conditional update: %w", err)
	}
	return &project, nil
}

// Filter and update builders. They are pure so the preconditions each
// update encodes can be tested without a server.

func listFilter(f ListFilter) bson.M {
	filter := bson.M{}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	if f.LeaderID != nil {
		filter["leaderInCharge.id"] = *f.LeaderID
	}
	return filter
}

func ownedFilter(id primitive.ObjectID, owner *primitive.ObjectID) bson.M {
	filter := bson.M{"_id": id}
	if owner != nil {
		filter["leaderInCharge.id"] = *owner
	}
	return filter
}

func dataUpdate(req UpdateProjectRequest, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if req.Title != nil {
		set["title"] = *req.Title
	}
	if req.GeneralObjective != nil {
		set["generalObjective"] = *req.GeneralObjective
	}
	if req.Budget != nil {
		set["budget"] = *req.Budget
	}
	return bson.M{"$set": set}
}

func transitionFilter(id primitive.ObjectID, t Transition) bson.M {
	return bson.M{
		"_id":    id,
		"status": t.From.Status,
		"stage":  t.From.Stage,
	}
}

func transitionUpdate(t Transition, now time.Time) (bson.M, []interface{}) {
	set := bson.M{
		"status":    t.To.Status,
		"stage":     t.To.Stage,
		"updatedAt": now,
	}
	if t.Has(EffectSetStartDate) {
		set["startDate"] = now
	}
	if t.Has(EffectSetFinishDate) {
		set["finishDate"] = now
	}

	var arrayFilters []interface{}
	if t.Has(EffectCloseMemberships) {
		set["studentsInProject.$[m].egressDate"] = now
		arrayFilters = append(arrayFilters, bson.M{
			"m.inscriptionStatus": InscriptionAccepted,
			"m.egressDate":        nil,
		})
	}
	return bson.M{"$set": set}, arrayFilters
}

func enrollmentFilter(id, studentID primitive.ObjectID) bson.M {
	return bson.M{
		"_id":                         id,
		"status":                      StatusActive,
		"studentsInProject.studentId": bson.M{"$ne": studentID},
	}
}

func resolveUpdate(id primitive.ObjectID, owner *primitive.ObjectID, studentID primitive.ObjectID, decision InscriptionStatus, now time.Time) (bson.M, bson.M, []interface{}) {
	filter := ownedFilter(id, owner)
	filter["studentsInProject"] = bson.M{"$elemMatch": bson.M{
		"studentId":         studentID,
		"inscriptionStatus": InscriptionPending,
	}}
	update := bson.M{"$set": bson.M{
		"studentsInProject.$[m].inscriptionStatus": decision,
		"studentsInProject.$[m].dateOfAdmission":   now,
		"updatedAt":                                now,
	}}
	arrayFilters := []interface{}{bson.M{
		"m.studentId":         studentID,
		"m.inscriptionStatus": InscriptionPending,
	}}
	return filter, update, arrayFilters
}

func progressFilter(id, studentID primitive.ObjectID, stages []Stage) bson.M {
	return bson.M{
		"_id":   id,
		"stage": bson.M{"$in": stages},
		"studentsInProject": bson.M{"$elemMatch": bson.M{
			"studentId":         studentID,
			"inscriptionStatus": InscriptionAccepted,
		}},
	}
}

func objectiveUpdate(objectiveID primitive.ObjectID, patch ObjectivePatch, now time.Time) (bson.M, []interface{}) {
	set := bson.M{"updatedAt": now}
	if patch.Title != nil {
		set["specificObjectives.$[o].title"] = *patch.Title
	}
	if patch.Accomplished != nil {
		set["specificObjectives.$[o].accomplished"] = *patch.Accomplished
	}
	if len(set) == 1 {
		return bson.M{"$set": set}, nil
	}
	return bson.M{"$set": set}, []interface{}{bson.M{"o._id": objectiveID}}
}

func renameStudentUpdate(studentID primitive.ObjectID, fullName string) (bson.M, bson.M, []interface{}) {
	filter := bson.M{"$or": bson.A{
		bson.M{"studentsInProject": bson.M{"$elemMatch": bson.M{
			"studentId": studentID,
			"fullName":  bson.M{"$ne": fullName},
		}}},
		bson.M{"progress": bson.M{"$elemMatch": bson.M{
			"studentId":       studentID,
			"studentFullName": bson.M{"$ne": fullName},
		}}},
	}}
	update := bson.M{"$set": bson.M{
		"studentsInProject.$[m].fullName": fullName,
		"progress.$[p].studentFullName":   fullName,
	}}
	arrayFilters := []interface{}{
		bson.M{"m.studentId": studentID},
		bson.M{"p.studentId": studentID},
	}
	return filter, update, arrayFilters
}
