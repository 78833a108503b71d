package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
)

// RestAgentHandler handles partner agents and login. Agents are always
// rendered without their password hash.
type RestAgentHandler struct {
	agents services.IAgentService
	auth   services.IAuthService
}

func NewRestAgentHandler(agents services.IAgentService, authService services.IAuthService) *RestAgentHandler {
	return &RestAgentHandler{agents: agents, auth: authService}
}

// Login handles POST /v1/auth/login
func (h *RestAgentHandler) Login(c *gin.Context) {
	var input services.LoginInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, result)
}

// Activate handles POST /v1/agents/activate
func (h *RestAgentHandler) Activate(c *gin.Context) {
	var input services.ActivateAgentInput
	if !bindJSON(c, &input) {
		return
	}
	agent, err := h.agents.Activate(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, agent.Redacted())
}

// List handles GET /v1/admin/agents
func (h *RestAgentHandler) List(c *gin.Context) {
	agents, err := h.agents.List(c.Request.Context(), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]*models.Agent, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Redacted())
	}
	respondData(c, http.StatusOK, out)
}

// Get handles GET /v1/admin/agents/:id
func (h *RestAgentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	agent, err := h.agents.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, agent.Redacted())
}

// Invite handles POST /v1/admin/agents
func (h *RestAgentHandler) Invite(c *gin.Context) {
	var input services.InviteAgentInput
	if !bindJSON(c, &input) {
		return
	}
	agent, err := h.agents.Invite(c.Request.Context(), input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, agent.Redacted())
}

// ResendInvitation handles POST /v1/admin/agents/:id/resend-invitation
func (h *RestAgentHandler) ResendInvitation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	agent, err := h.agents.ResendInvitation(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, agent.Redacted())
}

// Update handles PATCH /v1/admin/agents/:id
func (h *RestAgentHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.UpdateAgentInput
	if !bindJSON(c, &input) {
		return
	}
	agent, err := h.agents.Update(c.Request.Context(), id, input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, agent.Redacted())
}

// SetActive handles PUT /v1/admin/agents/:id/active with {"version", "active"}.
func (h *RestAgentHandler) SetActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input struct {
		Version int64 `json:"version"`
		Active  bool  `json:"active"`
	}
	if !bindJSON(c, &input) {
		return
	}
	agent, err := h.agents.SetActive(c.Request.Context(), id, input.Version, input.Active, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, agent.Redacted())
}

// Delete handles DELETE /v1/admin/agents/:id
func (h *RestAgentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.agents.Delete(c.Request.Context(), id, middleware.ActorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
