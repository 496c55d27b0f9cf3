package server

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"bike-storefront/internal/ctxmanage"
	"bike-storefront/internal/domain"
	"bike-storefront/internal/logkey"
	"bike-storefront/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	traceHeader  = "X-Trace-Id"
	principalKey = "principal"
)

// Claims is the access token payload issued by the auth service.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TraceID tags every request with an id, reusing the caller's when present.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(traceHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(traceHeader, id)
		c.Request = c.Request.WithContext(ctxmanage.WithTraceID(c.Request.Context(), id))
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "request",
			slog.String(logkey.TraceID, ctxmanage.TraceID(c.Request.Context())),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()))
	}
}

func Metrics(m *metrics.ServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// Authentication verifies the bearer token and stores the caller's principal.
func Authentication(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abortWithError(c, fmt.Errorf("%w: You are not authorized to access this route", domain.ErrUnauthorized))
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "expired access token"
			}
			slog.Warn("token rejected",
				slog.String(logkey.TraceID, ctxmanage.TraceID(c.Request.Context())),
				slog.String(logkey.ERROR, err.Error()))
			abortWithError(c, fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg))
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: malformed subject", domain.ErrUnauthorized))
			return
		}
		c.Set(principalKey, domain.Principal{UserID: userID, Email: claims.Email, Role: domain.Role(claims.Role)})
		c.Next()
	}
}

func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok || !slices.Contains(roles, p.Role) {
			abortWithError(c, fmt.Errorf("%w: You are not allowed to access this route", domain.ErrForbidden))
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}
