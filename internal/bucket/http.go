package bucket

import (
	"errors"
	"net/http"

	"github.com/abduss/dropbucket/internal/auth"
	"github.com/abduss/dropbucket/internal/expiry"
	"github.com/abduss/dropbucket/internal/file"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RegisterRoutes mounts the authenticated bucket endpoints.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/buckets", handler.createBucket)
	group.GET("/buckets", handler.listBuckets)
	group.PATCH("/buckets/:bucketID", handler.updateBucket)
	group.DELETE("/buckets/:bucketID", handler.deleteBucket)
}

// RegisterPublicRoutes mounts bucket reads that need no credentials.
func RegisterPublicRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/buckets/:bucketID", handler.getBucket)
}

type httpHandler struct {
	service *Service
}

type createBucketRequest struct {
	Name        string  `json:"name" binding:"required,max=200"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
	Purpose     *string `json:"purpose" binding:"omitempty,max=200"`
	ExpiresIn   string  `json:"expires_in"`
}

type updateBucketRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=200"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
	Purpose     *string `json:"purpose" binding:"omitempty,max=200"`
}

type fileView struct {
	file.Record
	ShortURL string `json:"short_url"`
}

type detailResponse struct {
	Bucket
	FileCount int        `json:"file_count"`
	Files     []fileView `json:"files"`
}

func newDetailResponse(detail *Detail) detailResponse {
	files := make([]fileView, 0, len(detail.Files))
	for _, rec := range detail.Files {
		files = append(files, fileView{Record: rec, ShortURL: rec.ShortURL()})
	}
	return detailResponse{Bucket: detail.Bucket, FileCount: len(files), Files: files}
}

func (h *httpHandler) createBucket(c *gin.Context) {
	ownerID, _, ok := auth.RequireOwner(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bucket creation requires an api key"})
		return
	}

	var req createBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.Create(c.Request.Context(), ownerID, CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Purpose:     req.Purpose,
		ExpiresIn:   req.ExpiresIn,
	})
	if err != nil {
		switch {
		case errors.Is(err, expiry.ErrInvalidSpec):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "presets": expiry.Presets()})
		case errors.Is(err, ErrNameRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "bucket name required"})
		case errors.Is(err, ErrBucketIDTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "bucket id collision, retry"})
		default:
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("create bucket failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create bucket"})
		}
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) listBuckets(c *gin.Context) {
	principal, ok := auth.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	buckets, err := h.service.List(c.Request.Context(), principal.KeyID, principal.IsAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list buckets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (h *httpHandler) getBucket(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("bucketID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch bucket"})
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		return
	}

	c.JSON(http.StatusOK, newDetailResponse(detail))
}

func (h *httpHandler) updateBucket(c *gin.Context) {
	principal, ok := auth.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req updateBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.Update(c.Request.Context(), c.Param("bucketID"), principal.KeyID, principal.IsAdmin, UpdateFields{
		Name:        req.Name,
		Description: req.Description,
		Purpose:     req.Purpose,
	})
	if err != nil {
		if errors.Is(err, ErrNameRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bucket name required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update bucket"})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteBucket(c *gin.Context) {
	principal, ok := auth.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), c.Param("bucketID"), principal.KeyID, principal.IsAdmin)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("bucket_id", c.Param("bucketID")).Msg("delete bucket failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete bucket"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
