package projects

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/auth"
	"research-portal/project-portal-backend/internal/middleware"
)

// serve runs one request as actor. A zero actor leaves the context
// unauthenticated.
func serve(svc *Service, actor auth.Actor, method, path string, body interface{}) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	if actor.Role != "" {
		api.Use(func(c *gin.Context) { middleware.WithActor(c, actor) })
	}
	NewHandler(svc, zap.NewNop()).RegisterRoutes(api)

	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code, body.Error
}

func TestHandlerRegisterAndActivate(t *testing.T) {
	f := newFixture(t)

	w := serve(f.svc, f.leader, http.MethodPost, "/api/v1/projects", gin.H{
		"title":              "Coral bleaching",
		"generalObjective":   "Measure bleaching events",
		"budget":             5000,
		"specificObjectives": []string{"Dive survey"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, StatusInactive, created.Status)
	assert.Equal(t, StageNone, created.Stage)

	w = serve(f.svc, f.admin, http.MethodPatch, "/api/v1/projects/"+created.ID.Hex()+"/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"stage":"started"`)

	w = serve(f.svc, f.student, http.MethodGet, "/api/v1/projects/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID.Hex())
}

func TestHandlerMapsErrors(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)

	w := serve(f.svc, f.student, http.MethodPost, "/api/v1/projects/"+p.ID.Hex()+"/finish", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	code, _ := decodeError(t, w)
	assert.Equal(t, "FORBIDDEN", code)

	w = serve(f.svc, f.admin, http.MethodPost, "/api/v1/projects/"+p.ID.Hex()+"/finish", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	code, msg := decodeError(t, w)
	assert.Equal(t, "INVALID_STATE_TRANSITION", code)
	assert.NotEmpty(t, msg)

	w = serve(f.svc, f.admin, http.MethodPost, "/api/v1/projects/not-an-id/finish", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(f.svc, f.admin, http.MethodPost, "/api/v1/projects/"+f.admin.ID.Hex()+"/finish", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(f.svc, auth.Actor{}, http.MethodGet, "/api/v1/projects/leader", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerEnrollmentAndProgress(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)
	_, err := f.svc.Activate(context.Background(), f.admin, p.ID)
	require.NoError(t, err)
	base := "/api/v1/projects/" + p.ID.Hex()

	w := serve(f.svc, f.student, http.MethodPost, base+"/inscriptions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(f.svc, f.leader, http.MethodGet, "/api/v1/inscriptions/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []InscriptionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, f.student.ID, pending[0].StudentsInProject[0].StudentID)

	w = serve(f.svc, f.leader, http.MethodPatch, base+"/inscriptions/"+f.student.ID.Hex(), gin.H{"inscriptionStatus": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(f.svc, f.leader, http.MethodPatch, base+"/inscriptions/"+f.student.ID.Hex(), gin.H{"inscriptionStatus": "accepted"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(f.svc, f.student, http.MethodPost, base+"/progress", gin.H{"description": "Dive one done"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var updated Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, StageInProgress, updated.Stage)
	require.Len(t, updated.Progress, 1)

	w = serve(f.svc, f.student, http.MethodPost, base+"/progress", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	progressPath := base + "/progress/" + updated.Progress[0].ID.Hex()
	w = serve(f.svc, f.leader, http.MethodPatch, progressPath+"/observation", gin.H{"observation": "Add water temperature"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(f.svc, f.student, http.MethodGet, base+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view ProgressView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Progress, 1)
	assert.Equal(t, "Add water temperature", view.Progress[0].Observation)
}

func TestHandlerObjectives(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)
	objective := p.SpecificObjectives[0]
	base := "/api/v1/projects/" + p.ID.Hex() + "/objectives/" + objective.ID.Hex()

	w := serve(f.svc, f.leader, http.MethodPut, base, gin.H{"title": "Collect 40 samples"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Collect 40 samples")

	w = serve(f.svc, f.leader, http.MethodPatch, base+"/accomplished", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	o, ok := updated.Objective(objective.ID)
	require.True(t, ok)
	assert.True(t, o.Accomplished)

	w = serve(f.svc, f.leader, http.MethodPatch, base+"/accomplished", gin.H{"accomplished": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accomplished":false`)

	w = serve(f.svc, f.otherLeader, http.MethodPut, base, gin.H{"title": "Not mine"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
