package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/membership-server/internal/model"
)

// Claims represents the session token claims.
// Subject carries the identity ID and ID carries the token ID.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anon"`
}

// JWT implements TokenManager backed by symmetric HMAC.
type JWT struct {
	secretKey string
	ttl       time.Duration
	now       func() time.Time
}

var _ model.TokenManager = (*JWT)(nil)

// NewJWT creates a new JWT token manager with the provided secret key and token lifetime.
func NewJWT(secretKey string, ttl time.Duration) *JWT {
	return &JWT{secretKey: secretKey, ttl: ttl, now: time.Now}
}

// Issue signs a token for identity. The returned identity carries
// the generated token ID and expiry.
func (j *JWT) Issue(identity model.Identity) (string, model.Identity, error) {
	if identity.ID == "" || identity.SessionID == "" {
		return "", model.Identity{}, errors.New("identity and session id are required")
	}

	now := j.now()
	identity.TokenID = uuid.NewString()
	identity.ExpiresAt = now.Add(j.ttl).Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.TokenID,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(identity.ExpiresAt),
		},
		SessionID: identity.SessionID,
		Email:     identity.Email,
		Anonymous: identity.Anonymous,
	})

	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", model.Identity{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, identity, nil
}

// Parse validates tokenString and extracts the identity it carries.
func (j *JWT) Parse(tokenString string) (model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(j.secretKey), nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to parse session token: %w", err)
	}
	if !token.Valid {
		return model.Identity{}, fmt.Errorf("session token is invalid")
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return model.Identity{}, fmt.Errorf("session token misses subject or session")
	}

	return model.Identity{
		ID:        claims.Subject,
		Email:     claims.Email,
		Anonymous: claims.Anonymous,
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
