package middleware

import (
	"net/http"
	"strings"

	"github.com/dimitrije/communities/internal/services"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"

	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*services.Claims, error)
}

// Auth rejects requests without a valid access token. The token is read
// from the Authorization header, falling back to the session cookie.
func Auth(tokens TokenValidator) drift.HandlerFunc {
	return func(c *drift.Context) {
		token, err := accessToken(c)
		if err != "" {
			c.Unauthorized(err)
			return
		}

		claims, verr := tokens.ValidateAccessToken(token)
		if verr != nil {
			c.Unauthorized("invalid or expired token")
			return
		}

		setUser(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the user when a valid token is present and lets
// anonymous requests through otherwise.
func OptionalAuth(tokens TokenValidator) drift.HandlerFunc {
	return func(c *drift.Context) {
		if token, err := accessToken(c); err == "" {
			if claims, verr := tokens.ValidateAccessToken(token); verr == nil {
				setUser(c, claims)
			}
		}
		c.Next()
	}
}

func accessToken(c *drift.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", "invalid authorization header format"
		}
		return parts[1], ""
	}

	if cookie, err := c.Request.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, ""
	}
	return "", "missing authorization header"
}

func setUser(c *drift.Context, claims *services.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(UserEmailKey, claims.Email)
}

func GetUserID(c *drift.Context) uuid.UUID {
	if id, ok := c.Get(UserIDKey); ok {
		if uid, ok := id.(uuid.UUID); ok {
			return uid
		}
	}
	return uuid.Nil
}

func GetUserEmail(c *drift.Context) string {
	if email, ok := c.Get(UserEmailKey); ok {
		if e, ok := email.(string); ok {
			return e
		}
	}
	return ""
}

// SessionCookie builds an HttpOnly cookie scoped to the whole site. It must
// stay SameSite=Strict while GET curation links authenticate through it.
func SessionCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
