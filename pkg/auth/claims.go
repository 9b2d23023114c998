package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/novamart/orderflow/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT accepted from clients. The
// resolved actor travels through request context, never globals.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the explicit identity handed to every operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// IsOperator reports whether the actor may run operator-only transitions.
func (a Actor) IsOperator() bool {
	return a.Role == enums.ActorRoleOperator
}
