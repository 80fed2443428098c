// This file implements an admin-gated surface over the moderation
// primitives backing the bans and userPermissions tables (§6.4): issuing
// a ban, revoking a single permission grant, and forcing every tracked
// session to re-authenticate.
package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/modplane/server/internal/errors"
	"github.com/modplane/server/internal/logger"
	"github.com/modplane/server/internal/models"
)

type banRequest struct {
	UserID    string     `json:"userId"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Permaban  bool       `json:"permaban"`
}

type revokePermissionRequest struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
}

// RegisterAdmin wires the /auth/admin/* surface onto rg. Every route
// additionally requires the admin.access permission.
func (h *Handlers) RegisterAdmin(rg gin.IRouter) {
	rg.POST("/auth/admin/ban", h.Ban)
	rg.POST("/auth/admin/permissions/revoke", h.RevokePermission)
	rg.POST("/auth/admin/sessions/revoke-all", h.RevokeAllSessions)
}

// requireAdminAccess reports the caller's identity when it holds
// admin.access, and otherwise aborts as not-found: forbidden access is
// reported identically to a missing resource (§9 note c).
func (h *Handlers) requireAdminAccess(c *gin.Context) (*models.Identity, bool) {
	identity, ok := RequireIdentity(c)
	if !ok {
		return nil, false
	}
	for _, p := range identity.Permissions {
		if p == "admin.access" {
			return identity, true
		}
	}
	apperrors.AbortWithError(c, apperrors.Forbidden("route"))
	return nil, false
}

// Ban issues a ban against a user, immediately invalidating their active
// session on their next authenticated request (Gate.Authenticate).
func (h *Handlers) Ban(c *gin.Context) {
	admin, ok := h.requireAdminAccess(c)
	if !ok {
		return
	}

	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Reason == "" {
		apperrors.AbortWithError(c, apperrors.New("invalidBanRequest", http.StatusBadRequest, "userId and reason are required"))
		return
	}

	ban, err := h.gate.database.CreateBan(c.Request.Context(), req.UserID, req.Reason, &admin.UserID, req.ExpiresAt, req.Permaban)
	if err != nil {
		logger.Security().Error().Err(err).Msg("admin: failed to create ban")
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ban": ban})
}

// RevokePermission removes a single (userId, permission) grant.
func (h *Handlers) RevokePermission(c *gin.Context) {
	if _, ok := h.requireAdminAccess(c); !ok {
		return
	}

	var req revokePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Permission == "" {
		apperrors.AbortWithError(c, apperrors.New("invalidRevokeRequest", http.StatusBadRequest, "userId and permission are required"))
		return
	}

	if err := h.gate.database.RevokePermission(c.Request.Context(), req.UserID, req.Permission); err != nil {
		logger.Security().Error().Err(err).Msg("admin: failed to revoke permission")
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RevokeAllSessions clears every tracked session, forcing every user to
// re-authenticate (SessionStore.RevokeAll).
func (h *Handlers) RevokeAllSessions(c *gin.Context) {
	if _, ok := h.requireAdminAccess(c); !ok {
		return
	}

	if err := h.gate.sessions.RevokeAll(c.Request.Context()); err != nil {
		logger.Security().Error().Err(err).Msg("admin: failed to revoke all sessions")
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
