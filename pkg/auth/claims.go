package auth

import (
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenClaims is the typed JWT minted by the platform auth service.
// This service only verifies; claim shape changes are coordinated with the
// platform team.
type AccessTokenClaims struct {
	UserID    uuid.UUID       `json:"user_id"`
	CreatorID *uuid.UUID      `json:"creator_id,omitempty"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
