package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RegisterRoutes mounts token issuance and admin key management on a group
// that already runs AuthMiddleware.
func RegisterRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	router.POST("/auth/token", handler.issueToken)

	keys := router.Group("/keys", RequireAdmin())
	{
		keys.POST("", handler.createKey)
		keys.GET("", handler.listKeys)
		keys.DELETE("/:prefix", handler.revokeKey)
	}
}

type httpHandler struct {
	service *Service
}

type createKeyRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

func (h *httpHandler) issueToken(c *gin.Context) {
	principal, ok := CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, err := h.service.IssueAccessToken(principal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":            token.Token,
		"access_token_expires_at": token.ExpiresAt.Unix(),
		"token_type":              "Bearer",
	})
}

func (h *httpHandler) createKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.CreateKey(c.Request.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrNameRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		default:
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("create api key failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create api key"})
		}
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) listKeys(c *gin.Context) {
	keys, err := h.service.ListKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list api keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (h *httpHandler) revokeKey(c *gin.Context) {
	revoked, err := h.service.RevokeKey(c.Request.Context(), c.Param("prefix"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke api key"})
		return
	}
	if !revoked {
		c.JSON(http.StatusNotFound, gin.H{"error": "api key not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
