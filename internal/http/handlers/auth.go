package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netsentry/authsvc/internal/config"
	"github.com/netsentry/authsvc/internal/http/middlewares"
	"github.com/netsentry/authsvc/internal/session"
	"github.com/netsentry/authsvc/internal/token"
)

const refreshCookieName = "refresh_token"

type AuthHandler struct {
	sessions *session.Service
	tokens   *token.Manager
	cfg      config.Config
}

func NewAuthHandler(sessions *session.Service, tokens *token.Manager, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type IntrospectRequest struct {
	Token string `json:"token" binding:"required"`
	Type  string `json:"type" binding:"omitempty,oneof=access refresh"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.sessions.Register(ctx.Request.Context(), req.Name, req.Email, req.Password)

	if err != nil {
		if errors.Is(err, session.ErrUserExists) {
			RespondBadRequest(ctx, "email_taken", "Email is already in use.", nil)
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	h.setRefreshCookie(ctx, res.RefreshToken, res.RefreshExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.sessions.Login(ctx.Request.Context(), req.Email, req.Password)

	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			// Same status, code and message for unknown email and wrong
			// password.
			RespondBadRequest(ctx, "invalid_credentials", "Invalid credentials.", nil)
			return
		}

		RespondInternal(ctx, "Could not sign in")
		return
	}

	h.setRefreshCookie(ctx, res.RefreshToken, res.RefreshExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
	})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		RespondUnauthorized(ctx, "missing_refresh_token", "Missing refresh token")
		return
	}

	res, err := h.sessions.Refresh(ctx.Request.Context(), raw)

	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnauthenticated):
			RespondUnauthorized(ctx, "missing_refresh_token", "Missing refresh token")
		case errors.Is(err, session.ErrForbidden):
			RespondForbidden(ctx, "invalid_refresh_token", "Invalid refresh token")
		default:
			RespondInternal(ctx, "Could not refresh session")
		}
		return
	}

	// The refresh cookie is deliberately left untouched: no rotation.
	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
	})
}

// Logout clears the refresh cookie regardless of whether a session existed.
// There is no server-side state to clean up, so it cannot fail.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.clearRefreshCookie(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

// Me returns the identity established by the access-token middleware.
func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"userId": userID,
		"role":   role,
	})
}

// Introspect lets other dashboard services check a token they hold. Admin
// only; never returns why an inactive token is inactive.
func (h *AuthHandler) Introspect(ctx *gin.Context) {
	var req IntrospectRequest

	if !BindJSON(ctx, &req) {
		return
	}

	var (
		claims *token.Claims
		err    error
	)

	switch req.Type {
	case token.TypeRefresh:
		claims, err = h.tokens.VerifyRefreshToken(req.Token)
	default:
		claims, err = h.tokens.VerifyAccessToken(req.Token)
	}

	if err != nil {
		ctx.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"active":    true,
		"userId":    claims.UserID,
		"role":      claims.Role,
		"expiresAt": claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

// Cookie helpers

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		raw,
		maxAge,
		"/auth",
		"",
		h.cfg.IsProd(), // Secure only over TLS deployments.
		true,           // HttpOnly: never script-accessible.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	// http.SetCookie directly so the Expires attribute lands in the past;
	// some clients ignore a bare Max-Age=0.
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   h.cfg.IsProd(),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
