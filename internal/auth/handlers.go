// This file implements the fixed /auth/* HTTP surface (§6.1): login,
// register, logout, and token verification. OAuth2 flows live in
// oauth_google.go and oauth_discord.go.
package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/modplane/server/internal/errors"
	"github.com/modplane/server/internal/logger"
	"github.com/modplane/server/internal/models"
	"github.com/modplane/server/internal/validator"
)

// Handlers groups the Gin handler functions backed by a Gate.
type Handlers struct {
	gate *Gate
}

func NewHandlers(gate *Gate) *Handlers {
	return &Handlers{gate: gate}
}

// Register wires /auth/* onto the given router group.
func (h *Handlers) Register(rg gin.IRouter) {
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/register", h.RegisterUser)
	rg.POST("/auth/logout", h.Logout)
	rg.POST("/auth/verify", h.Verify)
}

// Login issues a JWT for valid username/password credentials.
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		apperrors.AbortWithError(c, apperrors.MissingCredentials)
		return
	}

	ctx := c.Request.Context()
	user, err := h.gate.database.FindUserByUsername(ctx, req.Username)
	if err != nil {
		logger.Security().Error().Err(err).Msg("login: user lookup failed")
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	if user == nil {
		apperrors.AbortWithError(c, apperrors.InvalidCredentials)
		return
	}

	ok, err := VerifyPassword(req.Password, user.PasswordHash, user.PasswordSalt)
	if err != nil || !ok {
		apperrors.AbortWithError(c, apperrors.InvalidCredentials)
		return
	}

	ban, err := h.gate.database.ActiveBanForUser(ctx, user.ID)
	if err != nil {
		logger.Security().Error().Err(err).Msg("login: ban lookup failed")
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	if ban != nil {
		apperrors.AbortWithError(c, apperrors.AccountBanned(ban.Reason))
		return
	}

	token, expiresAt, err := h.gate.tokens.Issue(user.ID, user.Username, c.ClientIP())
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	claims, _ := h.gate.tokens.Verify(token)
	if err := h.gate.sessions.Track(ctx, claims.ID, user.ID, user.Username, time.Until(expiresAt)); err != nil {
		logger.Security().Warn().Err(err).Msg("login: failed to track session")
	}
	if err := h.gate.database.RecordLogin(ctx, user.ID, c.ClientIP(), token); err != nil {
		logger.Security().Warn().Err(err).Msg("login: failed to record last login")
	}

	perms, _ := h.gate.database.ListPermissions(ctx, user.ID)
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"user": gin.H{
			"id":          user.ID,
			"username":    user.Username,
			"email":       user.Email,
			"permissions": perms,
			"token":       token,
		},
	})
}

// RegisterUser creates a new local-auth account.
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.UsernameMissing)
		return
	}

	if appErr := validateRegistration(req); appErr != nil {
		apperrors.AbortWithError(c, appErr)
		return
	}

	ctx := c.Request.Context()
	if existing, err := h.gate.database.FindUserByUsername(ctx, req.Username); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	} else if existing != nil {
		apperrors.AbortWithError(c, apperrors.UsernameTaken)
		return
	}
	if existing, err := h.gate.database.FindUserByEmail(ctx, req.Email); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	} else if existing != nil {
		apperrors.AbortWithError(c, apperrors.EmailTaken)
		return
	}

	hash, salt, err := HashPassword(req.Password)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}

	user, err := h.gate.database.CreateUser(ctx, req.Username, req.Email, hash, salt)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

func validateRegistration(req models.RegisterRequest) *apperrors.AppError {
	switch {
	case req.Username == "":
		return apperrors.UsernameMissing
	case req.Password == "":
		return apperrors.PasswordMissing
	case req.RePassword == "":
		return apperrors.RepasswordMissing
	case req.Email == "":
		return apperrors.EmailMissing
	case !validator.ValidEmail(req.Email):
		return apperrors.InvalidEmail
	case req.Password != req.RePassword:
		return apperrors.PasswordsDontMatch
	case !validator.ValidUsernameFormat(req.Username):
		return apperrors.InvalidUsernameFormat
	case !validator.ValidUsernameLength(req.Username):
		return apperrors.InvalidUsernameLength
	}
	return nil
}

// Logout revokes the caller's session so the bearer token stops working
// immediately, ahead of its natural expiry.
func (h *Handlers) Logout(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token != "" {
		if claims, err := h.gate.tokens.Verify(token); err == nil {
			if err := h.gate.sessions.Revoke(c.Request.Context(), claims.ID); err != nil {
				logger.Security().Warn().Err(err).Msg("logout: failed to revoke session")
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Verify is the one /auth endpoint that 401s on failure instead of
// continuing anonymously (§4.8).
func (h *Handlers) Verify(c *gin.Context) {
	identity, ok := RequireIdentity(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "identity": identity})
}
