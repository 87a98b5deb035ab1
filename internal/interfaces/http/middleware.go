package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gin context keys
const (
	ctxRequestID = "request_id"
	ctxActorID   = "actor_id"
	ctxActorName = "actor_name"
	ctxRoles     = "roles"
)

const (
	headerRequestID = "X-Request-ID"
	roleClaimURI    = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

// Role sets guarding the routes
var (
	readRoles = []string{
		entity.RoleMedicalRead, entity.RoleMedicalWrite, entity.RoleHospitalReview,
		entity.RoleSMBDecide, entity.RoleMedicalAdmin,
	}
	writeRoles = []string{entity.RoleMedicalWrite, entity.RoleMedicalAdmin}
)

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// requestIDMiddleware tags each request with an id used as the error trace id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(ctxRequestID)),
		)
	}
}

// authMiddleware verifies the HS256 bearer token and stores the caller identity
func authMiddleware(cfg AuthConfig) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(cfg.SigningKey)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "Authorization is missing or malformed.")
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "Invalid token.")
			return
		}

		c.Set(ctxActorID, actorFromClaims(claims))
		c.Set(ctxActorName, firstString(claims, "unique_name", "name"))
		c.Set(ctxRoles, rolesFromClaims(claims))
		c.Request = c.Request.WithContext(port.ContextWithBearerToken(c.Request.Context(), tokenString))
		c.Next()
	}
}

// requireAnyRole admits callers holding at least one of roles
func requireAnyRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		held := callerRoles(c)
		for _, want := range roles {
			for _, have := range held {
				if want == have {
					c.Next()
					return
				}
			}
		}
		respondError(c, apperr.New(apperr.CodeForbidden, "Access denied: insufficient permissions."))
		c.Abort()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &ErrorBody{
			Code:    "Unauthorized",
			Message: message,
			TraceID: c.GetString(ctxRequestID),
		},
	})
}

// actorFromClaims picks the caller id: sub, then nameid, then unique_name, else "system"
func actorFromClaims(claims jwt.MapClaims) string {
	if v := firstString(claims, "sub", "nameid", "unique_name"); v != "" {
		return v
	}
	return "system"
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// rolesFromClaims collects role values from the role claims, string or array
func rolesFromClaims(claims jwt.MapClaims) []string {
	seen := make(map[string]bool)
	var roles []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			roles = append(roles, v)
		}
	}

	for _, key := range []string{"roles", "role", roleClaimURI} {
		switch v := claims[key].(type) {
		case string:
			add(v)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
	}
	return roles
}

func callerActor(c *gin.Context) string {
	if v := c.GetString(ctxActorID); v != "" {
		return v
	}
	return "system"
}

func callerRoles(c *gin.Context) []string {
	roles, _ := c.Get(ctxRoles)
	out, _ := roles.([]string)
	return out
}
