package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in access tokens.
const (
	RoleAdmin   = "admin"
	RoleAgent   = "agent"
	RoleStudent = "student"
)

// Token purposes. Access tokens have no purpose; single-use links do.
const (
	PurposeAgentInvite = "agent_invite"
	PurposeUnsubscribe = "unsubscribe"
)

var ErrWrongPurpose = errors.New("token issued for another purpose")

// Claims defines the structure of the JWT claims. Students get their tokens
// from the hosted auth provider, signed with the same secret.
type Claims struct {
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller on whose behalf a service acts.
type Actor struct {
	UserID string
	Email  string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Label identifies the actor in audit entries and logs.
func (a Actor) Label() string {
	switch {
	case a.Email != "":
		return a.Role + ":" + a.Email
	case a.UserID != "":
		return a.Role + ":" + a.UserID
	}
	return "anonymous"
}

// ActorFromClaims maps validated access token claims to an Actor. Tokens
// without a role are student tokens.
func ActorFromClaims(c *Claims) Actor {
	role := c.Role
	if role == "" {
		role = RoleStudent
	}
	return Actor{UserID: c.Subject, Email: c.Email, Role: role}
}

// GenerateJWT creates an access token for subject.
func GenerateJWT(subject, email, role, secretKey string, ttl time.Duration) (string, error) {
	return sign(&Claims{Email: email, Role: role}, subject, secretKey, ttl)
}

// GeneratePurposeToken creates a token valid only for purpose, bound to email.
func GeneratePurposeToken(purpose, subject, email, secretKey string, ttl time.Duration) (string, error) {
	return sign(&Claims{Email: email, Purpose: purpose}, subject, secretKey, ttl)
}

func sign(claims *Claims, subject, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   subject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT verifies an access token. Purpose tokens are rejected.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims, err := parse(tokenString, secretKey)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// ValidatePurposeToken verifies a token and checks its purpose.
func ValidatePurposeToken(tokenString, purpose, secretKey string) (*Claims, error) {
	claims, err := parse(tokenString, secretKey)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

func parse(tokenString, secretKey string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid JWT")
	}
	return claims, nil
}
