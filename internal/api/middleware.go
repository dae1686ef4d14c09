package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/auth"
)

// TokenValidator проверяет bearer-токен.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// Authenticate кладёт claims в контекст запроса, если передан валидный токен.
// Запрос без заголовка проходит анонимно, битый токен отклоняется с 401.
func Authenticate(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token, ok := ExtractBearerToken(header)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedError("invalid Authorization header"))
			return
		}
		claims, err := tokens.ValidateAccessToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedError(msg))
			return
		}
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireAuth отклоняет анонимные запросы.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.ClaimsFromContext(c.Request.Context()) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedError("missing Authorization header"))
			return
		}
		c.Next()
	}
}

// ExtractBearerToken извлекает токен из "Bearer <token>", снимая кавычки по краям.
func ExtractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(parts[1]), "\"'"), true
}

// RequestLogger пишет одну строку на запрос.
func RequestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if claims := auth.ClaimsFromContext(c.Request.Context()); claims != nil {
			entry = entry.WithField("caller", claims.Email)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request served")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request served")
		default:
			entry.Debug("request served")
		}
	}
}
