package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
	"github.com/movesintl/moves-study-hub-sub001/internal/workflow"
)

// InviteAgentInput is the admin invitation form.
type InviteAgentInput struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	ContactPerson string `json:"contact_person" validate:"required,max=200"`
	CompanyName   string `json:"company_name" validate:"required,max=200"`
	Phone         string `json:"phone" validate:"max=40"`
}

// ActivateAgentInput is submitted from the invitation link.
type ActivateAgentInput struct {
	Email    string `json:"email" validate:"required,email"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=10,max=72"`
}

// UpdateAgentInput changes agent details. Nil fields are left alone.
type UpdateAgentInput struct {
	Version       int64   `json:"version" validate:"required,min=1"`
	ContactPerson *string `json:"contact_person" validate:"omitempty,min=1,max=200"`
	CompanyName   *string `json:"company_name" validate:"omitempty,min=1,max=200"`
	Phone         *string `json:"phone" validate:"omitempty,max=40"`
}

// AgentConfig carries the invitation settings.
type AgentConfig struct {
	JwtSecret string
	InviteTTL time.Duration
	SiteURL   string
}

// IAgentService manages partner agent accounts.
type IAgentService interface {
	Invite(ctx context.Context, input InviteAgentInput, actor auth.Actor) (*models.Agent, error)
	ResendInvitation(ctx context.Context, id utils.SixID, actor auth.Actor) (*models.Agent, error)
	Activate(ctx context.Context, input ActivateAgentInput) (*models.Agent, error)
	Update(ctx context.Context, id utils.SixID, input UpdateAgentInput, actor auth.Actor) (*models.Agent, error)
	SetActive(ctx context.Context, id utils.SixID, version int64, active bool, actor auth.Actor) (*models.Agent, error)
	Delete(ctx context.Context, id utils.SixID, actor auth.Actor) error
	Get(ctx context.Context, id utils.SixID) (*models.Agent, error)
	List(ctx context.Context, page Page) ([]*models.Agent, error)
	// Authenticate returns the agent for valid credentials of an activated, active account.
	Authenticate(ctx context.Context, email, password string) (*models.Agent, error)
}

type agentService struct {
	agents   store.Store[models.Agent]
	workflow *workflow.Workflow
	history  IHistoryService
	notifier notify.Gateway
	cfg      AgentConfig
}

func NewAgentService(agents store.Store[models.Agent], wf *workflow.Workflow, history IHistoryService, notifier notify.Gateway, cfg AgentConfig) IAgentService {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 7 * 24 * time.Hour
	}
	return &agentService{agents: agents, workflow: wf, history: history, notifier: notifier, cfg: cfg}
}

func (s *agentService) Invite(ctx context.Context, input InviteAgentInput, actor auth.Actor) (*models.Agent, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only staff can invite agents")
	}
	input.Email = models.NormalizeEmail(input.Email)
	input.ContactPerson = trimmed(input.ContactPerson)
	input.CompanyName = trimmed(input.CompanyName)
	input.Phone = trimmed(input.Phone)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	_, err := s.agents.FindOne(ctx, store.Eq("email", input.Email))
	if err == nil {
		return nil, apperrors.Conflict("an agent with email %s already exists", input.Email)
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := s.workflow.Now()
	agent := &models.Agent{
		Email:         input.Email,
		ContactPerson: input.ContactPerson,
		CompanyName:   input.CompanyName,
		Phone:         input.Phone,
		IsActive:      false,
		InvitedAt:     now,
		InvitedBy:     actor.Label(),
		UpdatedAt:     now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		if store.IsDuplicate(err) {
			return nil, apperrors.Conflict("an agent with email %s already exists", input.Email)
		}
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	logger.Info().Str("agent_id", agent.ID.String()).Str("actor", actor.Label()).Msg("agent invited")

	s.sendInvitation(ctx, agent)
	return agent, nil
}

func (s *agentService) ResendInvitation(ctx context.Context, id utils.SixID, actor auth.Actor) (*models.Agent, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only staff can invite agents")
	}
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent.State() != models.AgentInvited {
		return nil, apperrors.Conflict("agent %s is already activated", agent.Email)
	}
	s.sendInvitation(ctx, agent)
	return agent, nil
}

// sendInvitation issues a fresh activation token and queues the email.
func (s *agentService) sendInvitation(ctx context.Context, agent *models.Agent) {
	token, err := auth.GeneratePurposeToken(auth.PurposeAgentInvite, agent.ID.String(), agent.Email, s.cfg.JwtSecret, s.cfg.InviteTTL)
	if err != nil {
		logger.Warn().Err(err).Str("agent_id", agent.ID.String()).Msg("failed to issue invitation token")
		return
	}
	link := fmt.Sprintf("%s/agents/activate?email=%s&token=%s", s.cfg.SiteURL, url.QueryEscape(agent.Email), url.QueryEscape(token))
	notifyBestEffort(ctx, s.notifier, notify.EmailTaskPayload{
		To:         agent.Email,
		TemplateID: notify.TemplateAgentInvitation,
		Data: map[string]interface{}{
			"contact_person":  agent.ContactPerson,
			"company_name":    agent.CompanyName,
			"activation_link": link,
		},
	}, agent.ID.String())
}

func (s *agentService) Activate(ctx context.Context, input ActivateAgentInput) (*models.Agent, error) {
	input.Email = models.NormalizeEmail(input.Email)
	input.Token = trimmed(input.Token)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	claims, err := auth.ValidatePurposeToken(input.Token, auth.PurposeAgentInvite, s.cfg.JwtSecret)
	if err != nil || models.NormalizeEmail(claims.Email) != input.Email {
		return nil, apperrors.Validation("invalid or expired invitation")
	}

	agent, err := s.agents.FindOne(ctx, store.Eq("email", input.Email))
	if apperrors.Is(err, apperrors.ErrNotFound) || (err == nil && agent.ID.String() != claims.Subject) {
		return nil, apperrors.Validation("invalid or expired invitation")
	}
	if err != nil {
		return nil, err
	}

	change, err := s.workflow.Transition(agent, string(models.AgentActivated), auth.RoleAgent+":"+agent.Email)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.ValidationFields(map[string]string{"password": err.Error()})
	}

	activatedAt := change.At
	updated, err := s.agents.Update(ctx, agent.ID, agent.Version, store.Patch{
		"activated_at":  activatedAt,
		"is_active":     true,
		"password_hash": hash,
		"updated_at":    activatedAt,
	})
	if err != nil {
		return nil, err
	}
	s.history.Record(ctx, change.Record(""))
	return updated, nil
}

func (s *agentService) Update(ctx context.Context, id utils.SixID, input UpdateAgentInput, actor auth.Actor) (*models.Agent, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only staff can update agents")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	patch := store.Patch{}
	if input.ContactPerson != nil {
		patch["contact_person"] = trimmed(*input.ContactPerson)
	}
	if input.CompanyName != nil {
		patch["company_name"] = trimmed(*input.CompanyName)
	}
	if input.Phone != nil {
		patch["phone"] = trimmed(*input.Phone)
	}
	if len(patch) == 0 {
		return nil, apperrors.Validation("nothing to update")
	}
	patch["updated_at"] = s.workflow.Now()

	agent, err := s.agents.Update(ctx, id, input.Version, patch)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("agent_id", id.String()).Str("actor", actor.Label()).Msg("agent updated")
	return agent, nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func (s *agentService) SetActive(ctx context.Context, id utils.SixID, version int64, active bool, actor auth.Actor) (*models.Agent, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only staff can change agent access")
	}
	if version <= 0 {
		return nil, apperrors.ValidationFields(map[string]string{"version": "is required"})
	}
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Access is only toggled once the agent has activated their own account.
	if agent.State() != models.AgentActivated {
		return nil, apperrors.IllegalTransition(models.KindAgent, string(agent.State()), activeLabel(active))
	}

	now := s.workflow.Now()
	updated, err := s.agents.Update(ctx, id, version, store.Patch{"is_active": active, "updated_at": now})
	if err != nil {
		return nil, err
	}
	s.history.Record(ctx, &models.StatusChange{
		EntityKind: models.KindAgent,
		EntityID:   id.String(),
		From:       activeLabel(agent.IsActive),
		To:         activeLabel(active),
		Actor:      actor.Label(),
		At:         now,
	})
	return updated, nil
}

func (s *agentService) Delete(ctx context.Context, id utils.SixID, actor auth.Actor) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("only staff can delete agents")
	}
	if err := s.agents.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info().Str("agent_id", id.String()).Str("actor", actor.Label()).Msg("agent deleted")
	return nil
}

func (s *agentService) Get(ctx context.Context, id utils.SixID) (*models.Agent, error) {
	return s.agents.Get(ctx, id)
}

func (s *agentService) List(ctx context.Context, page Page) ([]*models.Agent, error) {
	page = page.normalized()
	return s.agents.List(ctx, store.Query{
		Order:  []store.Order{{Field: "invited_at", Desc: true}},
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (s *agentService) Authenticate(ctx context.Context, email, password string) (*models.Agent, error) {
	agent, err := s.agents.FindOne(ctx, store.Eq("email", models.NormalizeEmail(email)))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, err
	}
	if agent.State() != models.AgentActivated || !auth.CheckPasswordHash(password, agent.PasswordHash) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if !agent.IsActive {
		return nil, apperrors.Forbidden("agent account is disabled")
	}
	return agent, nil
}
