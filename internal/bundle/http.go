package bundle

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RegisterRoutes mounts the public summary and archive endpoints.
func RegisterRoutes(group *gin.RouterGroup, builder *Builder) {
	handler := &httpHandler{builder: builder}
	group.GET("/buckets/:bucketID/summary", handler.summary)
	group.GET("/buckets/:bucketID/zip", handler.archive)
}

type httpHandler struct {
	builder *Builder
}

func (h *httpHandler) summary(c *gin.Context) {
	text, ok, err := h.builder.BuildSummary(c.Request.Context(), c.Param("bucketID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func (h *httpHandler) archive(c *gin.Context) {
	bucketID := c.Param("bucketID")
	reader, ok, err := h.builder.BuildArchive(c.Request.Context(), bucketID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build archive"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		return
	}
	defer reader.Close()

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", bucketID+".zip"),
	}
	c.DataFromReader(http.StatusOK, -1, "application/zip", reader, headers)
	if len(c.Errors) > 0 {
		zerolog.Ctx(c.Request.Context()).Warn().Str("bucket_id", bucketID).Msg("archive stream interrupted")
	}
}
