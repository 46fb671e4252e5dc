package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDKey is the gin context key holding the authenticated user id
const UserIDKey = "user_id"

// BearerAuth resolves an HS256 bearer token to a user id taken from its sub claim
func BearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			c.JSON(http.StatusUnauthorized, response.Error(apperror.CodeUnauthenticated, "Missing bearer token"))
			c.Abort()
			return
		}

		userID, err := parseSubject(strings.TrimSpace(tokenString), secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, response.Error(apperror.CodeUnauthenticated, "Invalid bearer token"))
			c.Abort()
			return
		}

		// Store user ID in context
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id set by BearerAuth
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// IssueToken signs a token for userID; used by tests and local tooling
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseSubject(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
