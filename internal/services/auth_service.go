package services

import (
	"context"
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
)

// LoginInput holds staff credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthConfig holds the admin account and token settings.
type AuthConfig struct {
	JwtSecret         string
	TokenTTL          time.Duration
	AdminEmail        string
	AdminPasswordHash string
}

type IAuthService interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
}

type authService struct {
	agents IAgentService
	cfg    AuthConfig
}

func NewAuthService(agents IAgentService, cfg AuthConfig) IAuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &authService{agents: agents, cfg: cfg}
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Email = models.NormalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var subject, role string
	if s.cfg.AdminEmail != "" && input.Email == models.NormalizeEmail(s.cfg.AdminEmail) {
		if !auth.CheckPasswordHash(input.Password, s.cfg.AdminPasswordHash) {
			logger.Warn().Str("email", input.Email).Msg("failed admin login")
			return nil, apperrors.Unauthorized("invalid email or password")
		}
		subject, role = "admin", auth.RoleAdmin
	} else {
		agent, err := s.agents.Authenticate(ctx, input.Email, input.Password)
		if err != nil {
			return nil, err
		}
		subject, role = agent.ID.String(), auth.RoleAgent
	}

	token, err := auth.GenerateJWT(subject, input.Email, role, s.cfg.JwtSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Role: role, ExpiresAt: time.Now().Add(s.cfg.TokenTTL).UTC()}, nil
}
