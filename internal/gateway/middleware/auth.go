package middleware

import (
	"strings"

	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/gateway/service"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	// TokenCookie is the cookie browsers carry the access token in.
	TokenCookie = "token"

	tokenContextKey = "access_token"
	roleContextKey  = "user_role"
)

// AuthMiddleware verifies the access token, rejects revoked tokens and stores the caller
// identity on the context. The bearer header wins over the cookie.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authService == nil {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("auth service unavailable"))
			return
		}

		token := ExtractToken(c)
		info, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		commonmw.SetUserID(c, info.ID)
		c.Set(roleContextKey, info.Role)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// ExtractToken reads the bearer header first, then the token cookie.
func ExtractToken(c *gin.Context) string {
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// AccessToken returns the token AuthMiddleware accepted for this request.
func AccessToken(c *gin.Context) string {
	return c.GetString(tokenContextKey)
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
