package auth

import (
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller resolved from a verified token.
type Principal struct {
	UserID uuid.UUID
	Role   enums.Role
}

// IsZero reports whether no caller was resolved.
func (p Principal) IsZero() bool {
	return p.UserID == uuid.Nil
}

// PrincipalFromClaims extracts the caller identity from verified claims.
func PrincipalFromClaims(claims *AccessTokenClaims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}
}
