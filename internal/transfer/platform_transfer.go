package transfer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type CreatePostResult struct {
	ExternalID string `json:"id"`
	Permalink  string `json:"permalink"`
}

type Introspection struct {
	Valid     bool      `json:"is_valid"`
	ExpiresAt time.Time `json:"expires_at"`
	Scopes    []string  `json:"scopes"`
}

type PlatformErrorResponse struct {
	Error struct {
		Message     string `json:"message"`
		Code        int    `json:"code"`
		IsTransient bool   `json:"is_transient"`
	} `json:"error"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
