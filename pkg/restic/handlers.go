package restic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/restic115/gateway/pkg/e"
	"github.com/restic115/gateway/pkg/open115"
)

// v2ContentType is the restic REST Backend API v2 listing content type.
const v2ContentType = "application/vnd.x.restic.rest.v2"

// Client is everything the REST adapter needs from the core 115 cloud
// adapter. It exists so the HTTP layer can be tested against a mock
// rather than a live provider.
type Client interface {
	InitRepository(ctx context.Context) error
	GetFileInfo(ctx context.Context, t open115.FileType, name string) (open115.FileInfo, error)
	ListFiles(ctx context.Context, t open115.FileType) ([]open115.FileInfo, error)
	UploadObject(ctx context.Context, t open115.FileType, name string, content []byte) (open115.FileInfo, error)
	DeleteFile(ctx context.Context, t open115.FileType, name string) error
	DownloadFile(ctx context.Context, pickCode string, r open115.DownloadRange) (*http.Response, error)
}

// Handlers is the gin handler set for the restic REST v2 surface.
type Handlers struct {
	Client         Client
	MaxUploadBytes int64

	ready atomic.Bool
}

// SetReady flips the healthcheck to 200. Called once by the CLI entry
// point after bootstrap and any persistence warm-load have completed.
func (h *Handlers) SetReady() {
	h.ready.Store(true)
}

type listEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func writeError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, e.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, e.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, e.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, e.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, e.ErrUpstreamFailure):
		return http.StatusBadGateway
	case errors.Is(err, e.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, e.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
	}
	writeError(c, status, err)
}

// CreateRepository handles POST /?create=true.
func (h *Handlers) CreateRepository(c *gin.Context) {
	if c.Query("create") != "true" {
		writeError(c, http.StatusBadRequest, errors.New("missing create=true"))
		return
	}
	if err := h.Client.InitRepository(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// DeleteRepository handles DELETE /. Repository-root deletion is out of
// scope by contract.
func (h *Handlers) DeleteRepository(c *gin.Context) {
	writeError(c, http.StatusNotImplemented, e.ErrNotImplemented)
}

func (h *Handlers) headObject(c *gin.Context, t open115.FileType, name string) {
	info, err := h.Client.GetFileInfo(c.Request.Context(), t, name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	c.Header("Accept-Ranges", "bytes")
	c.Status(http.StatusOK)
}

func (h *Handlers) getObject(c *gin.Context, t open115.FileType, name string) {
	info, err := h.Client.GetFileInfo(c.Request.Context(), t, name)
	if err != nil {
		h.fail(c, err)
		return
	}

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		h.streamFull(c, info)
		return
	}

	r, err := ParseRange(rangeHeader, info.Size)
	if err != nil {
		var rangeErr *e.RangeError
		if errors.As(err, &rangeErr) {
			c.Header("Content-Range", UnsatisfiableContentRangeHeader(rangeErr.Size))
			c.Header("Accept-Ranges", "bytes")
			c.Header("Content-Length", "0")
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		h.fail(c, err)
		return
	}

	h.streamRange(c, info, r)
}

func (h *Handlers) streamFull(c *gin.Context, info open115.FileInfo) {
	resp, err := h.Client.DownloadFile(c.Request.Context(), info.PickCode, open115.DownloadRange{})
	if err != nil {
		h.fail(c, err)
		return
	}
	defer open115.DrainAndClose(resp)

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Warn().Err(err).Msg("error streaming object body")
	}
}

func (h *Handlers) streamRange(c *gin.Context, info open115.FileInfo, r ContentRange) {
	resp, err := h.Client.DownloadFile(c.Request.Context(), info.PickCode, open115.DownloadRange{Start: r.Start, End: r.End, Set: true})
	if err != nil {
		h.fail(c, err)
		return
	}
	defer open115.DrainAndClose(resp)

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Range", ContentRangeHeader(r, info.Size))
	c.Header("Content-Length", strconv.FormatInt(r.End-r.Start+1, 10))
	c.Status(http.StatusPartialContent)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Warn().Err(err).Msg("error streaming ranged object body")
	}
}

func (h *Handlers) postObject(c *gin.Context, t open115.FileType, name string) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+1)
	content, err := io.ReadAll(body)
	if err != nil {
		writeError(c, http.StatusRequestEntityTooLarge, e.ErrPayloadTooLarge)
		return
	}
	if int64(len(content)) > h.MaxUploadBytes {
		writeError(c, http.StatusRequestEntityTooLarge, e.ErrPayloadTooLarge)
		return
	}

	if _, err := h.Client.UploadObject(c.Request.Context(), t, name, content); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) deleteObject(c *gin.Context, t open115.FileType, name string) {
	// Delete is idempotent by contract: any error from the client is
	// already absorbed by open115.Client.DeleteFile, so this always
	// succeeds unless the cache/namespace layer itself is broken.
	if err := h.Client.DeleteFile(c.Request.Context(), t, name); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// HeadConfig / GetConfig / PostConfig handle /config, which has no :name
// segment — the object name is always the literal "config".
func (h *Handlers) HeadConfig(c *gin.Context) { h.headObject(c, open115.TypeConfig, "config") }
func (h *Handlers) GetConfig(c *gin.Context)  { h.getObject(c, open115.TypeConfig, "config") }
func (h *Handlers) PostConfig(c *gin.Context) { h.postObject(c, open115.TypeConfig, "config") }

// ListType handles GET /:type/.
func (h *Handlers) ListType(c *gin.Context) {
	t, err := open115.ParseFileType(c.Param("type"))
	if err != nil || t == open115.TypeConfig {
		writeError(c, http.StatusBadRequest, e.ErrBadRequest)
		return
	}

	files, err := h.Client.ListFiles(c.Request.Context(), t)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]listEntry, 0, len(files))
	for _, f := range files {
		out = append(out, listEntry{Name: f.Name, Size: f.Size})
	}

	c.Header("Content-Type", v2ContentType)
	c.JSON(http.StatusOK, out)
}

// HeadObject / GetObject / PostObject / DeleteObject handle /:type/:name.
func (h *Handlers) HeadObject(c *gin.Context) {
	t, name, ok := h.typedObject(c)
	if !ok {
		return
	}
	h.headObject(c, t, name)
}

func (h *Handlers) GetObject(c *gin.Context) {
	t, name, ok := h.typedObject(c)
	if !ok {
		return
	}
	h.getObject(c, t, name)
}

func (h *Handlers) PostObject(c *gin.Context) {
	t, name, ok := h.typedObject(c)
	if !ok {
		return
	}
	h.postObject(c, t, name)
}

func (h *Handlers) DeleteObject(c *gin.Context) {
	t, name, ok := h.typedObject(c)
	if !ok {
		return
	}
	h.deleteObject(c, t, name)
}

func (h *Handlers) typedObject(c *gin.Context) (open115.FileType, string, bool) {
	t, err := open115.ParseFileType(c.Param("type"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return 0, "", false
	}
	name := c.Param("name")
	if name == "" {
		writeError(c, http.StatusBadRequest, e.ErrBadRequest)
		return 0, "", false
	}
	return t, name, true
}
