package file

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	pathpkg "path"
	"sort"
	"strings"

	"github.com/abduss/dropbucket/internal/blob"
	"github.com/abduss/dropbucket/internal/shortid"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RegisterRoutes mounts the authenticated file operations.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/buckets/:bucketID/upload", handler.uploadFiles)
	group.DELETE("/buckets/:bucketID/files", handler.deleteFile)
}

// RegisterPublicRoutes mounts short-link resolution and raw downloads.
func RegisterPublicRoutes(router gin.IRoutes, service *Service) {
	handler := &httpHandler{service: service}
	router.GET("/s/:code", handler.resolveShortCode)
	router.GET("/raw/:bucketID/*path", handler.downloadRaw)
}

type httpHandler struct {
	service *Service
}

type fileResponse struct {
	Record
	ShortURL string `json:"short_url"`
}

func newFileResponse(rec Record) fileResponse {
	return fileResponse{Record: rec, ShortURL: rec.ShortURL()}
}

type namedUpload struct {
	field  string
	header *multipart.FileHeader
}

func (h *httpHandler) uploadFiles(c *gin.Context) {
	bucketID := c.Param("bucketID")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form data is required"})
		return
	}

	uploads := collectUploads(form)
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	override := strings.TrimSpace(c.PostForm("path"))
	if override != "" && len(uploads) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path may only be set for a single file"})
		return
	}

	ctx := c.Request.Context()
	stored := make([]fileResponse, 0, len(uploads))
	for _, upload := range uploads {
		name := override
		if name == "" {
			name = uploadName(upload)
		}

		if h.service.maxFileSize > 0 && upload.header.Size > h.service.maxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "path": name})
			return
		}

		content, err := readUpload(upload.header)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload", "path": name})
			return
		}

		rec, err := h.service.Upload(ctx, bucketID, name, detectContentType(name, upload.header, content), content)
		if err != nil {
			switch {
			case errors.Is(err, blob.ErrInvalidPath):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file path", "path": name})
			case errors.Is(err, ErrFileTooLarge):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "path": name})
			case errors.Is(err, shortid.ErrExhausted), errors.Is(err, ErrShortCodeTaken):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not allocate short code, retry later"})
			default:
				zerolog.Ctx(ctx).Error().Err(err).Str("bucket_id", bucketID).Str("path", name).Msg("upload failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload file"})
			}
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return
		}
		stored = append(stored, newFileResponse(*rec))
	}

	c.JSON(http.StatusCreated, gin.H{"bucket_id": bucketID, "files": stored})
}

type deleteFileRequest struct {
	Path string `json:"path"`
}

func (h *httpHandler) deleteFile(c *gin.Context) {
	bucketID := c.Param("bucketID")

	path := c.Query("path")
	if path == "" {
		var req deleteFileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
			return
		}
		path = req.Path
	}
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	deleted, err := h.service.DeleteFile(c.Request.Context(), bucketID, path)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("bucket_id", bucketID).Str("path", path).Msg("delete file failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete file"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) resolveShortCode(c *gin.Context) {
	code := c.Param("code")
	if !shortid.Valid(code, shortid.ShortCodeLength) {
		c.JSON(http.StatusNotFound, gin.H{"error": "short url not found"})
		return
	}

	rec, err := h.service.ResolveByShortCode(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve short url"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "short url not found"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, RawURL(rec.BucketID, rec.Path))
}

func (h *httpHandler) downloadRaw(c *gin.Context) {
	bucketID := c.Param("bucketID")
	path := strings.TrimPrefix(c.Param("path"), "/")
	ctx := c.Request.Context()

	if target, ok, err := h.service.DownloadURL(ctx, bucketID, path); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("bucket_id", bucketID).Str("path", path).Msg("presign failed, streaming instead")
	} else if ok {
		c.Redirect(http.StatusFound, target)
		return
	}

	rec, reader, err := h.service.Open(ctx, bucketID, path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	defer reader.Close()

	disposition := fmt.Sprintf("inline; filename=%q", pathpkg.Base(rec.Path))
	if seeker, ok := reader.(io.ReadSeeker); ok {
		c.Header("Content-Type", rec.ContentType)
		c.Header("Content-Disposition", disposition)
		http.ServeContent(c.Writer, c.Request, rec.Path, rec.UploadedAt, seeker)
		return
	}

	c.DataFromReader(http.StatusOK, -1, rec.ContentType, reader, map[string]string{"Content-Disposition": disposition})
}

// RawURL builds the escaped raw download path for a file.
func RawURL(bucketID, path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return "/raw/" + url.PathEscape(bucketID) + "/" + strings.Join(segments, "/")
}

func collectUploads(form *multipart.Form) []namedUpload {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var uploads []namedUpload
	for _, field := range fields {
		for _, header := range form.File[field] {
			uploads = append(uploads, namedUpload{field: field, header: header})
		}
	}
	return uploads
}

// uploadName returns the client's filename as sent. FileHeader.Filename has
// already been reduced to its base name, which would flatten nested paths.
func uploadName(upload namedUpload) string {
	if _, params, err := mime.ParseMediaType(upload.header.Header.Get("Content-Disposition")); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return name
		}
	}
	if upload.header.Filename != "" {
		return upload.header.Filename
	}
	return upload.field
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func detectContentType(name string, header *multipart.FileHeader, content []byte) string {
	if byExt := mime.TypeByExtension(pathpkg.Ext(name)); byExt != "" {
		return byExt
	}
	if declared := header.Header.Get("Content-Type"); declared != "" && declared != defaultContentType {
		return declared
	}
	return mimetype.Detect(content).String()
}
