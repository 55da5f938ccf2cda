// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the admin session guard. The admin API is protected
// by a signed session cookie: a JWT (HMAC-SHA256) whose subject is the admin
// identity. A Bearer token in the Authorization header is accepted as an
// alternative for non-browser clients. The public ingestion endpoint is
// mounted outside this middleware and never requires a session.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthOptions configures SessionAuth.
type AuthOptions struct {
	// Secret is the HMAC key used to sign and verify session tokens.
	Secret []byte
	// CookieName is the session cookie to read, e.g. "admin_session".
	CookieName string
}

// IssueSession signs a session token for the given admin identity, valid
// for ttl. The returned string is suitable as a cookie value or a Bearer
// token.
func IssueSession(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

// SessionAuth returns a Gin middleware that rejects requests lacking a
// valid session with 401. On success the admin identity is stored in the
// Gin context under "userID", where the logger, the rate limiter, and the
// allocation handlers pick it up.
//
// Token lookup order: the session cookie, then "Authorization: Bearer …".
func SessionAuth(opt AuthOptions) gin.HandlerFunc {
	keyFn := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return opt.Secret, nil
	}

	return func(c *gin.Context) {
		raw := ""
		if cookie, err := c.Cookie(opt.CookieName); err == nil {
			raw = cookie
		}
		if raw == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				raw = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if raw == "" {
			unauthorized(c, "missing session")
			return
		}

		claims := jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(raw, &claims, keyFn,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid || claims.Subject == "" {
			unauthorized(c, "invalid session")
			return
		}

		c.Set("userID", claims.Subject)
		c.Next()
	}
}

// unauthorized aborts with the standard error envelope shape.
func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
