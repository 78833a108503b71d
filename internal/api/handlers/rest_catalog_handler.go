package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// RestCatalogHandler serves courses and destinations.
type RestCatalogHandler struct {
	catalog   services.ICatalogService
	templates services.IEmailTemplateService
}

func NewRestCatalogHandler(catalog services.ICatalogService, templates services.IEmailTemplateService) *RestCatalogHandler {
	return &RestCatalogHandler{catalog: catalog, templates: templates}
}

// ListCourses handles GET /v1/courses?destination=&level=
func (h *RestCatalogHandler) ListCourses(c *gin.Context) {
	filter := services.CourseFilter{StudyLevel: c.Query("level")}
	page := pageFrom(c)
	filter.Limit, filter.Offset = page.Limit, page.Offset
	if ref := c.Query("destination"); ref != "" {
		dest, err := h.catalog.ResolveDestination(c.Request.Context(), ref)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.DestinationID = &dest.ID
	}

	courses, err := h.catalog.ListCourses(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, courses)
}

// GetCourse handles GET /v1/courses/:id
func (h *RestCatalogHandler) GetCourse(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	course, err := h.catalog.GetCourse(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, course)
}

// ListDestinations handles GET /v1/destinations
func (h *RestCatalogHandler) ListDestinations(c *gin.Context) {
	destinations, err := h.catalog.ListDestinations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, destinations)
}

// SaveCourse handles POST /v1/admin/courses and PUT /v1/admin/courses/:id
func (h *RestCatalogHandler) SaveCourse(c *gin.Context) {
	var input services.SaveCourseInput
	if !bindJSON(c, &input) {
		return
	}
	if c.Param("id") != "" {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		input.ID = id
	}
	course, err := h.catalog.SaveCourse(c.Request.Context(), input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, savedStatus(input.ID), course)
}

// SaveDestination handles POST /v1/admin/destinations and PUT /v1/admin/destinations/:id
func (h *RestCatalogHandler) SaveDestination(c *gin.Context) {
	var input services.SaveDestinationInput
	if !bindJSON(c, &input) {
		return
	}
	if c.Param("id") != "" {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		input.ID = id
	}
	dest, err := h.catalog.SaveDestination(c.Request.Context(), input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, savedStatus(input.ID), dest)
}

// SaveEmailTemplate handles PUT /v1/admin/email-templates/:templateId
func (h *RestCatalogHandler) SaveEmailTemplate(c *gin.Context) {
	var input struct {
		Locale  string `json:"locale"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if !bindJSON(c, &input) {
		return
	}
	tmpl, err := h.templates.SaveTemplate(c.Request.Context(), &models.EmailTemplate{
		TemplateID: c.Param("templateId"),
		Locale:     input.Locale,
		Subject:    input.Subject,
		Body:       input.Body,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, tmpl)
}

func savedStatus(id utils.SixID) int {
	if id.IsZero() {
		return http.StatusCreated
	}
	return http.StatusOK
}
