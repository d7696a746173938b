package controller

import (
	"context"
	"time"

	"codejudge/internal/gateway/middleware"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TokenManager rotates and revokes access tokens.
type TokenManager interface {
	Refresh(ctx context.Context, raw string) (string, time.Time, error)
	Logout(ctx context.Context, raw string) error
}

// AuthController handles auth-related HTTP endpoints.
type AuthController struct {
	authService TokenManager
	secure      bool
}

// NewAuthController creates a new AuthController. secureCookie marks the token cookie Secure.
func NewAuthController(authService TokenManager, secureCookie bool) *AuthController {
	return &AuthController{authService: authService, secure: secureCookie}
}

// RegisterRoutes mounts the auth routes on an authenticated group.
func (h *AuthController) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/auth/refresh", h.Refresh)
	group.POST("/auth/logout", h.Logout)
}

// Refresh swaps the presented token for a new one.
func (h *AuthController) Refresh(c *gin.Context) {
	token, expiresAt, err := h.authService.Refresh(c.Request.Context(), presentedToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", h.secure, true)
	response.Success(c, RefreshResponse{AccessToken: token, ExpiresAt: expiresAt.Unix()})
}

// Logout revokes the presented token and clears the token cookie.
func (h *AuthController) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), presentedToken(c)); err != nil {
		response.Error(c, err)
		return
	}

	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secure, true)
	response.Success(c, LogoutResponse{LoggedOut: true})
}

func presentedToken(c *gin.Context) string {
	if token := middleware.AccessToken(c); token != "" {
		return token
	}
	return middleware.ExtractToken(c)
}

// RefreshResponse carries the rotated token.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// LogoutResponse defines logout response payload.
type LogoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}
