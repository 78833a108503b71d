package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

const (
	humanTokenIssuer  = "studyhub-captcha"
	humanTokenPurpose = "captcha_human"
)

// IVerifier verifies reCAPTCHA v3 tokens (X-C-V) and issues/validates the
// short-lived human token (X-C-T) handed back after a successful check.
type IVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
	GenerateHumanToken(ip, fingerprint, spaSession string, ttl time.Duration) (string, error)
	ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool
}

// SiteVerifyResponse is the body returned by the siteverify endpoint.
type SiteVerifyResponse struct {
	Success     bool     `json:"success"`
	Score       float64  `json:"score"`
	Action      string   `json:"action"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

type recaptchaVerifier struct {
	secretKey  string
	verifyURL  string
	minScore   float64
	action     string
	jwtSecret  string
	httpClient *http.Client
}

// NewRecaptchaVerifier creates a reCAPTCHA v3 verifier from config.
func NewRecaptchaVerifier(cfg *config.Config) IVerifier {
	return &recaptchaVerifier{
		secretKey:  cfg.RecaptchaSecretKey,
		verifyURL:  cfg.RecaptchaVerifyURL,
		minScore:   cfg.RecaptchaMinScore,
		action:     cfg.RecaptchaAction,
		jwtSecret:  cfg.JwtSecret,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify calls siteverify. A low score or a wrong action is a plain false;
// an error means the service could not be asked.
func (v *recaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.secretKey == "" {
		logger.Warn().Msg("reCAPTCHA secret key not configured, skipping verification")
		return true, nil
	}

	form := url.Values{"secret": {v.secretKey}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create recaptcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to contact recaptcha service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return false, fmt.Errorf("failed to read recaptcha response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("recaptcha verification failed with status %d", resp.StatusCode)
	}

	var result SiteVerifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("failed to parse recaptcha response: %w", err)
	}

	switch {
	case !result.Success:
		logger.Info().Strs("error_codes", result.ErrorCodes).Msg("recaptcha token rejected")
		return false, nil
	case v.action != "" && result.Action != v.action:
		logger.Info().Str("action", result.Action).Str("expected", v.action).Msg("recaptcha action mismatch")
		return false, nil
	case result.Score < v.minScore:
		logger.Info().Float64("score", result.Score).Float64("min", v.minScore).Msg("recaptcha score too low")
		return false, nil
	}
	return true, nil
}

// HumanTokenClaims binds the X-C-T token to the client that solved the check.
type HumanTokenClaims struct {
	IP          string `json:"ip"`
	Fingerprint string `json:"bfp"`
	SPASession  string `json:"spa"`
	// Purpose keeps the token from being accepted as an access token.
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// GenerateHumanToken creates a signed token confirming successful captcha validation.
func (v *recaptchaVerifier) GenerateHumanToken(ip, fingerprint, spaSession string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &HumanTokenClaims{
		IP:          ip,
		Fingerprint: fingerprint,
		SPASession:  spaSession,
		Purpose:     humanTokenPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    humanTokenIssuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign human token: %w", err)
	}
	return signed, nil
}

// ValidateHumanToken checks signature, expiry and that the token belongs to
// the same ip, fingerprint and SPA session.
func (v *recaptchaVerifier) ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool {
	claims := &HumanTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.jwtSecret), nil
	}, jwt.WithIssuer(humanTokenIssuer))
	if err != nil || !token.Valid {
		logger.Debug().Err(err).Msg("invalid X-C-T token")
		return false
	}
	if claims.Purpose != humanTokenPurpose || claims.IP != ip || claims.Fingerprint != fingerprint || claims.SPASession != spaSession {
		logger.Debug().Str("ip", ip).Msg("X-C-T token bound to another client")
		return false
	}
	return true
}
