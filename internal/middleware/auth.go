package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ContextOperator = "operator"

// OpsClaims is the token shape for the operations API.
type OpsClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// OpsAuth guards the operations endpoints (failed-job inspection,
// retries, credential probes) with a bearer JWT.
type OpsAuth struct {
	secret []byte
}

func NewOpsAuth(secret string) *OpsAuth {
	return &OpsAuth{secret: []byte(secret)}
}

func (a *OpsAuth) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			a.reject(c, "invalid authorization format")
			return
		}

		claims := &OpsClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			a.reject(c, "invalid token")
			return
		}

		c.Set(ContextOperator, claims.Subject)
		c.Next()
	}
}

func (a *OpsAuth) reject(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Code:    http.StatusUnauthorized,
		Message: message,
		TraceID: c.GetString(ContextRequestID),
	})
}
