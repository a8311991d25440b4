package middleware

import (
	"strings"

	"pluto/internal/client"
	ierr "pluto/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderUserUUID = "x-user-uuid"
	HeaderUserID   = "x-user-id"
)

// RequireCompanyPermission resolves the caller's identity and asks the
// authorization service for its permission level on :company_id.
//
// Identity comes from the x-user-uuid header. When a JWT secret is configured
// it comes only from the sub claim of a bearer token and the header is
// ignored. x-user-id, when present, is the identity recorded in audit logs.
func RequireCompanyPermission(checker client.PermissionChecker, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userUUID, err := resolveIdentity(c, jwtSecret)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		companyID := c.Param("company_id")
		level, err := checker.Authorize(c.Request.Context(), userUUID, companyID)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			userID = userUUID
		}

		c.Set(ContextKeyUserUUID, userUUID)
		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyPermission, level)

		c.Next()
	}
}

func resolveIdentity(c *gin.Context, jwtSecret string) (string, error) {
	if jwtSecret == "" {
		if userUUID := strings.TrimSpace(c.GetHeader(HeaderUserUUID)); userUUID != "" {
			return userUUID, nil
		}
		return "", ierr.NewError("missing user identity").
			WithHint("please send your user as header").
			Mark(ierr.ErrValidation)
	}

	// with a secret configured only the token subject is trusted
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ierr.NewError("missing authorization header").
			WithHint("Authorization header is required").
			Mark(ierr.ErrPermissionDenied)
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ierr.NewError("malformed authorization header").
			WithHint("Invalid authorization format. Expected 'Bearer <token>'").
			Mark(ierr.ErrPermissionDenied)
	}
	return ParseTokenSubject(parts[1], jwtSecret)
}

// ParseTokenSubject validates an HMAC signed token and returns its sub claim
func ParseTokenSubject(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err == nil && !token.Valid {
		err = jwt.ErrTokenSignatureInvalid
	}
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Invalid token").
			Mark(ierr.ErrPermissionDenied)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ierr.NewError("token without subject").
			WithHint("Invalid token claims").
			Mark(ierr.ErrPermissionDenied)
	}
	return subject, nil
}
