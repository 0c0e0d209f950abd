// Package token validates the signed identity tokens issued by the external
// authentication service. The core trusts the claims; it never checks
// credentials itself.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "paddock/pkg/domain"
	"paddock/pkg/requestcontext"
)

// Claims is the principal the identity collaborator supplies per request.
type Claims struct {
	UserID id.UserID
	Role   requestcontext.Role
}

type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validator parses and verifies HS256 tokens minted by the auth service.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken verifies the signature and expiry and extracts the principal.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}

	role := requestcontext.Role(claims.Role)
	if role != requestcontext.RoleAdmin {
		role = requestcontext.RoleUser
	}

	return &Claims{UserID: userID, Role: role}, nil
}

// Issue mints a token for the given principal. The server itself only
// validates tokens; this exists for local development and tests.
func Issue(signingKey string, userID id.UserID, role requestcontext.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}
