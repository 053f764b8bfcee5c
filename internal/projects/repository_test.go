package projects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var builderNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestListFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, listFilter(ListFilter{}))

	active := StatusActive
	leader := primitive.NewObjectID()
	assert.Equal(t, bson.M{"status": StatusActive, "leaderInCharge.id": leader},
		listFilter(ListFilter{Status: &active, LeaderID: &leader}))
}

func TestOwnedFilter(t *testing.T) {
	id := primitive.NewObjectID()
	assert.Equal(t, bson.M{"_id": id}, ownedFilter(id, nil))

	owner := primitive.NewObjectID()
	assert.Equal(t, bson.M{"_id": id, "leaderInCharge.id": owner}, ownedFilter(id, &owner))
}

func TestDataUpdateSetsOnlyGivenFields(t *testing.T) {
	title := "New title"
	update := dataUpdate(UpdateProjectRequest{Title: &title}, builderNow)

	assert.Equal(t, bson.M{"$set": bson.M{"title": title, "updatedAt": builderNow}}, update)
}

func TestTransitionFilterCarriesSourceState(t *testing.T) {
	id := primitive.NewObjectID()
	tr, err := NewLifecycle().Plan(TriggerFinish, State{StatusActive, StageInProgress})
	require.NoError(t, err)

	assert.Equal(t, bson.M{"_id": id, "status": StatusActive, "stage": StageInProgress}, transitionFilter(id, tr))
}

func TestTransitionUpdate(t *testing.T) {
	l := NewLifecycle()

	start, err := l.Plan(TriggerActivate, InitialState)
	require.NoError(t, err)
	update, arrayFilters := transitionUpdate(start, builderNow)
	assert.Equal(t, bson.M{"$set": bson.M{
		"status":    StatusActive,
		"stage":     StageStarted,
		"startDate": builderNow,
		"updatedAt": builderNow,
	}}, update)
	assert.Empty(t, arrayFilters)

	finish, err := l.Plan(TriggerFinish, State{StatusActive, StageInProgress})
	require.NoError(t, err)
	update, arrayFilters = transitionUpdate(finish, builderNow)
	set := update["$set"].(bson.M)
	assert.Equal(t, builderNow, set["finishDate"])
	assert.Equal(t, builderNow, set["studentsInProject.$[m].egressDate"])
	assert.NotContains(t, set, "startDate")
	assert.Equal(t, []interface{}{bson.M{
		"m.inscriptionStatus": InscriptionAccepted,
		"m.egressDate":        nil,
	}}, arrayFilters)
}

func TestEnrollmentFilter(t *testing.T) {
	id, student := primitive.NewObjectID(), primitive.NewObjectID()
	assert.Equal(t, bson.M{
		"_id":                         id,
		"status":                      StatusActive,
		"studentsInProject.studentId": bson.M{"$ne": student},
	}, enrollmentFilter(id, student))
}

func TestResolveUpdateTargetsPendingMembership(t *testing.T) {
	id, owner, student := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	filter, update, arrayFilters := resolveUpdate(id, &owner, student, InscriptionAccepted, builderNow)

	assert.Equal(t, owner, filter["leaderInCharge.id"])
	assert.Equal(t, bson.M{"$elemMatch": bson.M{
		"studentId":         student,
		"inscriptionStatus": InscriptionPending,
	}}, filter["studentsInProject"])
	assert.Equal(t, bson.M{"$set": bson.M{
		"studentsInProject.$[m].inscriptionStatus": InscriptionAccepted,
		"studentsInProject.$[m].dateOfAdmission":   builderNow,
		"updatedAt":                                builderNow,
	}}, update)
	require.Len(t, arrayFilters, 1)
	assert.Equal(t, student, arrayFilters[0].(bson.M)["m.studentId"])

	filter, _, _ = resolveUpdate(id, nil, student, InscriptionRejected, builderNow)
	assert.NotContains(t, filter, "leaderInCharge.id")
}

func TestProgressFilterRequiresAcceptedMember(t *testing.T) {
	id, student := primitive.NewObjectID(), primitive.NewObjectID()
	stages := NewLifecycle().ProgressStages()

	assert.Equal(t, bson.M{
		"_id":   id,
		"stage": bson.M{"$in": stages},
		"studentsInProject": bson.M{"$elemMatch": bson.M{
			"studentId":         student,
			"inscriptionStatus": InscriptionAccepted,
		}},
	}, progressFilter(id, student, stages))
}

func TestObjectiveUpdate(t *testing.T) {
	objective := primitive.NewObjectID()
	done := true

	update, arrayFilters := objectiveUpdate(objective, ObjectivePatch{Accomplished: &done}, builderNow)
	assert.Equal(t, bson.M{"$set": bson.M{
		"specificObjectives.$[o].accomplished": true,
		"updatedAt":                            builderNow,
	}}, update)
	assert.Equal(t, []interface{}{bson.M{"o._id": objective}}, arrayFilters)

	_, arrayFilters = objectiveUpdate(objective, ObjectivePatch{}, builderNow)
	assert.Nil(t, arrayFilters)
}

func TestRenameStudentUpdateSkipsConvergedDocuments(t *testing.T) {
	student := primitive.NewObjectID()
	filter, update, arrayFilters := renameStudentUpdate(student, "Sofia Paz Vidal")

	or := filter["$or"].(bson.A)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"studentsInProject": bson.M{"$elemMatch": bson.M{
		"studentId": student,
		"fullName":  bson.M{"$ne": "Sofia Paz Vidal"},
	}}}, or[0])

	set := update["$set"].(bson.M)
	assert.Equal(t, "Sofia Paz Vidal", set["studentsInProject.$[m].fullName"])
	assert.Equal(t, "Sofia Paz Vidal", set["progress.$[p].studentFullName"])
	assert.Equal(t, []interface{}{bson.M{"m.studentId": student}, bson.M{"p.studentId": student}}, arrayFilters)
}
