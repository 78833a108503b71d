package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
)

// RestApplicationHandler handles student and admin application routes.
type RestApplicationHandler struct {
	applications services.IApplicationService
}

func NewRestApplicationHandler(applications services.IApplicationService) *RestApplicationHandler {
	return &RestApplicationHandler{applications: applications}
}

type versionRequest struct {
	Version int64 `json:"version"`
}

// Submit handles POST /v1/applications
func (h *RestApplicationHandler) Submit(c *gin.Context) {
	var input services.SubmitApplicationInput
	if !bindJSON(c, &input) {
		return
	}
	app, err := h.applications.Submit(c.Request.Context(), input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, app)
}

// ListMine handles GET /v1/applications/mine
func (h *RestApplicationHandler) ListMine(c *gin.Context) {
	apps, err := h.applications.ListForStudent(c.Request.Context(), middleware.ActorFrom(c), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, apps)
}

// Get handles GET /v1/applications/:id and GET /v1/admin/applications/:id
func (h *RestApplicationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	app, err := h.applications.Get(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, app)
}

// Edit handles PATCH /v1/applications/:id
func (h *RestApplicationHandler) Edit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.EditApplicationInput
	if !bindJSON(c, &input) {
		return
	}
	app, err := h.applications.Edit(c.Request.Context(), id, input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, app)
}

// Withdraw handles POST /v1/applications/:id/withdraw
func (h *RestApplicationHandler) Withdraw(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input versionRequest
	if !bindJSON(c, &input) {
		return
	}
	app, err := h.applications.Withdraw(c.Request.Context(), id, input.Version, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, app)
}

// RequestDocumentUpload handles POST /v1/applications/:id/documents
func (h *RestApplicationHandler) RequestDocumentUpload(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.DocumentUploadInput
	if !bindJSON(c, &input) {
		return
	}
	upload, err := h.applications.RequestDocumentUpload(c.Request.Context(), id, input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, upload)
}

// ListAll handles GET /v1/admin/applications?status=&email=
func (h *RestApplicationHandler) ListAll(c *gin.Context) {
	apps, err := h.applications.ListAll(c.Request.Context(), services.ApplicationFilter{
		Status: c.Query("status"),
		Email:  c.Query("email"),
		Page:   pageFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, apps)
}

// UpdateStatus handles PUT /v1/admin/applications/:id/status
func (h *RestApplicationHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.ApplicationStatusInput
	if !bindJSON(c, &input) {
		return
	}
	app, err := h.applications.UpdateStatus(c.Request.Context(), id, input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, app)
}

// History handles GET /v1/admin/applications/:id/history
func (h *RestApplicationHandler) History(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	changes, err := h.applications.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, changes)
}
