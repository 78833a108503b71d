package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
)

// RestSavedCourseHandler handles a student's saved courses.
type RestSavedCourseHandler struct {
	saved services.ISavedCourseService
}

func NewRestSavedCourseHandler(saved services.ISavedCourseService) *RestSavedCourseHandler {
	return &RestSavedCourseHandler{saved: saved}
}

// List handles GET /v1/saved-courses
func (h *RestSavedCourseHandler) List(c *gin.Context) {
	list, err := h.saved.List(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, list)
}

// Toggle handles POST /v1/saved-courses/:courseId/toggle
func (h *RestSavedCourseHandler) Toggle(c *gin.Context) {
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	saved, err := h.saved.Toggle(c.Request.Context(), courseID, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"course_id": courseID, "saved": saved})
}

// Save handles PUT /v1/saved-courses/:courseId
func (h *RestSavedCourseHandler) Save(c *gin.Context) {
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	row, err := h.saved.Save(c.Request.Context(), courseID, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, row)
}

// Remove handles DELETE /v1/saved-courses/:courseId
func (h *RestSavedCourseHandler) Remove(c *gin.Context) {
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	if err := h.saved.Remove(c.Request.Context(), courseID, middleware.ActorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
