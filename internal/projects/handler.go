package projects

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/auth"
	"research-portal/project-portal-backend/internal/middleware"
	"research-portal/project-portal-backend/pkg/response"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the project routes. rg must already run the auth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	projects := rg.Group("/projects")
	{
		projects.GET("", h.ListAll)
		projects.GET("/active", h.ListActive)
		projects.GET("/leader", h.ListByLeader)
		projects.POST("", h.Register)
		projects.GET("/:id", h.GetForLeader)
		projects.PUT("/:id", h.UpdateData)
		projects.PATCH("/:id/status", h.UpdateStatus)
		projects.POST("/:id/finish", h.Finish)

		projects.POST("/:id/objectives", h.AddObjective)
		projects.PUT("/:id/objectives/:objectiveId", h.RenameObjective)
		projects.PATCH("/:id/objectives/:objectiveId/accomplished", h.SetObjectiveAccomplished)

		projects.POST("/:id/inscriptions", h.RequestEnrollment)
		projects.PATCH("/:id/inscriptions/:studentId", h.ResolveEnrollment)

		projects.POST("/:id/progress", h.AppendProgress)
		projects.GET("/:id/progress", h.GetProgress)
		projects.PATCH("/:id/progress/:progressId/description", h.AmendDescription)
		projects.PATCH("/:id/progress/:progressId/observation", h.AmendObservation)
	}

	rg.GET("/inscriptions/pending", h.PendingInscriptions)
}

func (h *Handler) ListAll(c *gin.Context) {
	projects, err := h.service.ListProjects(c.Request.Context())
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) ListActive(c *gin.Context) {
	projects, err := h.service.ListActiveProjects(c.Request.Context())
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) ListByLeader(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var leaderID *primitive.ObjectID
	if raw := c.Query("leaderId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			response.BadRequest(c, "invalid leaderId")
			return
		}
		leaderID = &id
	}

	projects, err := h.service.ListLeaderProjects(c.Request.Context(), actor, leaderID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) GetForLeader(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK)(h.service.GetLeaderProject(c.Request.Context(), actor, id))
}

func (h *Handler) Register(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req RegisterProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusCreated)(h.service.RegisterProject(c.Request.Context(), actor, req))
}

func (h *Handler) UpdateData(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusOK)(h.service.UpdateProjectData(c.Request.Context(), actor, id, req))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}

	var req struct {
		Status Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusOK)(h.service.UpdateStatus(c.Request.Context(), actor, id, req.Status))
}

func (h *Handler) Finish(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK)(h.service.Finish(c.Request.Context(), actor, id))
}

func (h *Handler) AddObjective(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusCreated)(h.service.AddObjective(c.Request.Context(), actor, id, req.Title))
}

func (h *Handler) RenameObjective(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	objectiveID, ok := objectIDParam(c, "objectiveId")
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusOK)(h.service.RenameObjective(c.Request.Context(), actor, id, objectiveID, req.Title))
}

func (h *Handler) SetObjectiveAccomplished(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	objectiveID, ok := objectIDParam(c, "objectiveId")
	if !ok {
		return
	}

	// accomplished defaults to true so the bare PATCH marks the objective done
	req := struct {
		Accomplished *bool `json:"accomplished"`
	}{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	accomplished := req.Accomplished == nil || *req.Accomplished

	h.respond(c, http.StatusOK)(h.service.SetObjectiveAccomplished(c.Request.Context(), actor, id, objectiveID, accomplished))
}

func (h *Handler) RequestEnrollment(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusCreated)(h.service.RequestEnrollment(c.Request.Context(), actor, id))
}

func (h *Handler) ResolveEnrollment(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	studentID, ok := objectIDParam(c, "studentId")
	if !ok {
		return
	}

	var req struct {
		InscriptionStatus InscriptionStatus `json:"inscriptionStatus" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusOK)(h.service.ResolveEnrollment(c.Request.Context(), actor, id, studentID, req.InscriptionStatus))
}

func (h *Handler) PendingInscriptions(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	summaries, err := h.service.PendingInscriptions(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) AppendProgress(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusCreated)(h.service.AppendProgress(c.Request.Context(), actor, id, req.Description))
}

func (h *Handler) GetProgress(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}

	view, err := h.service.ProgressForStudent(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) AmendDescription(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	progressID, ok := objectIDParam(c, "progressId")
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusOK)(h.service.AmendDescription(c.Request.Context(), actor, id, progressID, req.Description))
}

func (h *Handler) AmendObservation(c *gin.Context) {
	actor, id, ok := h.actorAndProject(c)
	if !ok {
		return
	}
	progressID, ok := objectIDParam(c, "progressId")
	if !ok {
		return
	}

	var req struct {
		Observation string `json:"observation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respond(c, http.StatusOK)(h.service.AmendObservation(c.Request.Context(), actor, id, progressID, req.Observation))
}

// respond returns a writer for the (project, error) result of a service call.
func (h *Handler) respond(c *gin.Context, status int) func(*Project, error) {
	return func(project *Project, err error) {
		if err != nil {
			response.Error(c, h.logger, err)
			return
		}
		c.JSON(status, project)
	}
}

func (h *Handler) actor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "UNAUTHORIZED"})
		return auth.Actor{}, false
	}
	return actor, true
}

func (h *Handler) actorAndProject(c *gin.Context) (auth.Actor, primitive.ObjectID, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return auth.Actor{}, primitive.NilObjectID, false
	}
	id, ok := objectIDParam(c, "id")
	return actor, id, ok
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
