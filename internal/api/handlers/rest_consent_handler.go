package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
)

// RestConsentHandler handles marketing consent and campaigns.
type RestConsentHandler struct {
	consents  services.IConsentService
	campaigns services.ICampaignService
}

func NewRestConsentHandler(consents services.IConsentService, campaigns services.ICampaignService) *RestConsentHandler {
	return &RestConsentHandler{consents: consents, campaigns: campaigns}
}

// OptIn handles POST /v1/consents (newsletter sign-up). The caller must pass
// the captcha, and the stored record is not echoed back.
func (h *RestConsentHandler) OptIn(c *gin.Context) {
	var input services.OptInInput
	if !bindJSON(c, &input) {
		return
	}
	human, err := middleware.HumanVerified(c)
	if err != nil {
		respondError(c, apperrors.Upstream("captcha", err))
		return
	}
	if !human {
		respondError(c, apperrors.Validation("human verification failed"))
		return
	}
	input.Source = models.ConsentSourceNewsletter
	if _, err := h.consents.OptIn(c.Request.Context(), input); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unsubscribe handles POST /v1/consents/unsubscribe with {"token": "..."}.
func (h *RestConsentHandler) Unsubscribe(c *gin.Context) {
	var input struct {
		Token string `json:"token"`
	}
	if !bindJSON(c, &input) {
		return
	}
	if err := h.consents.OptOutWithToken(c.Request.Context(), input.Token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /v1/admin/consents?active=true&email=
func (h *RestConsentHandler) List(c *gin.Context) {
	consents, err := h.consents.List(c.Request.Context(), services.ConsentFilter{
		ActiveOnly: c.Query("active") == "true",
		Email:      c.Query("email"),
		Page:       pageFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, consents)
}

// ExportCSV handles GET /v1/admin/consents/export
func (h *RestConsentHandler) ExportCSV(c *gin.Context) {
	filename := fmt.Sprintf("marketing-consents-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
	if err := h.consents.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		// Headers are already on the wire.
		_ = c.Error(err)
		logger.Error().Err(err).Msg("consent export aborted")
		return
	}
	logger.Info().Str("actor", middleware.ActorFrom(c).Label()).Msg("consents exported")
}

// OptOut handles POST /v1/admin/consents/opt-out with {"email": "..."}.
func (h *RestConsentHandler) OptOut(c *gin.Context) {
	var input struct {
		Email string `json:"email"`
	}
	if !bindJSON(c, &input) {
		return
	}
	if err := h.consents.OptOut(c.Request.Context(), input.Email, middleware.ActorFrom(c).Label()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendCampaign handles POST /v1/admin/campaigns
func (h *RestConsentHandler) SendCampaign(c *gin.Context) {
	var input services.SendCampaignInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.campaigns.Send(c.Request.Context(), input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusAccepted, result)
}
