package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles recognised in issue requests. Anything else defaults to publisher.
const (
	RolePublisher  = "publisher"
	RoleSubscriber = "subscriber"
)

// IssueRequest is the payload of a room-credential request.
type IssueRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Credential is a signed room credential and its lifetime.
type Credential struct {
	Token     string
	Role      string
	ExpiresIn int // seconds
}

// Issuer signs room credentials. The relay does not depend on issuance;
// this is the boundary to the conferencing provider, and implementations
// other than the built-in signer (e.g. a provider SDK) can be swapped in
// at the composition root.
type Issuer interface {
	Issue(req IssueRequest) (Credential, error)
}

// RoomClaims are the claims embedded in a signed room credential.
type RoomClaims struct {
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HMAC room credentials with a shared secret.
type JWTIssuer struct {
	secretKey []byte
	ttl       time.Duration
}

// NewJWTIssuer creates a JWTIssuer with the given signing secret and
// credential lifetime.
func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{secretKey: []byte(secret), ttl: ttl}
}

// Issue signs a credential for the requested room. The role defaults to
// publisher unless subscriber is requested explicitly.
func (i *JWTIssuer) Issue(req IssueRequest) (Credential, error) {
	if req.RoomID == "" {
		return Credential{}, fmt.Errorf("room ID is required")
	}

	role := RolePublisher
	if req.Role == RoleSubscriber {
		role = RoleSubscriber
	}

	now := time.Now()
	claims := RoomClaims{
		RoomID: req.RoomID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secretKey)
	if err != nil {
		return Credential{}, fmt.Errorf("sign room token: %w", err)
	}

	return Credential{
		Token:     signed,
		Role:      role,
		ExpiresIn: int(i.ttl.Seconds()),
	}, nil
}

// Validate parses and verifies a credential previously produced by Issue.
func (i *JWTIssuer) Validate(tokenString string) (*RoomClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*RoomClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
