package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
)

// RestBookingHandler handles counselling bookings.
type RestBookingHandler struct {
	bookings services.IBookingService
}

func NewRestBookingHandler(bookings services.IBookingService) *RestBookingHandler {
	return &RestBookingHandler{bookings: bookings}
}

// Create handles POST /v1/bookings. The captcha outcome comes from
// CaptchaMiddleware; an unreachable verifier fails the request.
func (h *RestBookingHandler) Create(c *gin.Context) {
	var input services.CreateBookingInput
	if !bindJSON(c, &input) {
		return
	}
	human, err := middleware.HumanVerified(c)
	if err != nil {
		respondError(c, apperrors.Upstream("captcha", err))
		return
	}
	booking, err := h.bookings.Create(c.Request.Context(), input, human, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, booking)
}

// ListMine handles GET /v1/bookings/mine
func (h *RestBookingHandler) ListMine(c *gin.Context) {
	bookings, err := h.bookings.ListForStudent(c.Request.Context(), middleware.ActorFrom(c), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, bookings)
}

// ListAll handles GET /v1/admin/bookings?status=&email=
func (h *RestBookingHandler) ListAll(c *gin.Context) {
	bookings, err := h.bookings.ListAll(c.Request.Context(), services.BookingFilter{
		Status: c.Query("status"),
		Email:  c.Query("email"),
		Page:   pageFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, bookings)
}

// Get handles GET /v1/admin/bookings/:id
func (h *RestBookingHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	booking, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, booking)
}

// UpdateStatus handles PATCH /v1/admin/bookings/:id
func (h *RestBookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.BookingStatusInput
	if !bindJSON(c, &input) {
		return
	}
	booking, err := h.bookings.UpdateStatus(c.Request.Context(), id, input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, booking)
}

// History handles GET /v1/admin/bookings/:id/history
func (h *RestBookingHandler) History(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	changes, err := h.bookings.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, changes)
}
