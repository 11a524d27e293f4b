package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userID"

// generateToken выпускает HS256-токен с идентификатором пользователя.
func generateToken(secret, userID string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// validateJWT проверяет токен и возвращает идентификатор пользователя.
func validateJWT(secret, tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("пустой токен")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("неожиданный метод подписи")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("невалидный токен")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("токен без идентификатора пользователя")
	}
	return userID, nil
}

// bearerToken достает токен из заголовка Authorization либо из
// query-параметра token (для websocket-рукопожатия из браузера).
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// authMiddleware разрешает анонимный доступ на чтение: идентификатор
// кладется в контекст только при валидном токене, предъявленный
// невалидный токен отклоняется сразу.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			c.Next()
			return
		}
		userID, err := validateJWT(s.cfg.Auth.Secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// requireAuth пропускает только аутентифицированных вызывающих.
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(userIDKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Next()
	}
}

// callerID возвращает идентификатор аутентифицированного вызывающего.
func callerID(c *gin.Context) string {
	id, _ := c.Get(userIDKey)
	userID, _ := id.(string)
	return userID
}

// viewerID возвращает идентификатор зрителя, nil для анонима.
func viewerID(c *gin.Context) *string {
	id, exists := c.Get(userIDKey)
	if !exists {
		return nil
	}
	userID, ok := id.(string)
	if !ok {
		return nil
	}
	return &userID
}
