package handler

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/hub"
	"github.com/caseportal/messaging/internal/service"
	"github.com/caseportal/messaging/internal/store"
	"github.com/caseportal/messaging/internal/transcript"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/middleware"
	"github.com/caseportal/messaging/pkg/response"
	"github.com/caseportal/messaging/pkg/storage"
)

type HTTPHandler struct {
	history     service.HistoryService
	transcripts service.TranscriptService
	hub         *hub.Hub
	auth        *middleware.AuthMiddleware
}

// NewHTTPHandler builds the REST handler. transcripts may be nil, which
// leaves the transcript routes unregistered.
func NewHTTPHandler(history service.HistoryService, transcripts service.TranscriptService, h *hub.Hub, auth *middleware.AuthMiddleware) *HTTPHandler {
	return &HTTPHandler{history: history, transcripts: transcripts, hub: h, auth: auth}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.auth.RequireAuth())
	{
		api.GET("/cases/:case_id/messages", h.GetMessages)
		api.POST("/cases/:case_id/read", h.MarkRead)
		api.GET("/unread", h.GetUnread)

		if h.transcripts != nil {
			api.POST("/cases/:case_id/transcripts", h.ExportTranscript)
			api.GET("/cases/:case_id/transcripts", h.ListTranscripts)
			api.GET("/cases/:case_id/transcripts/:name", h.DownloadTranscript)
		}
	}

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type markReadRequest struct {
	UpToID int64 `json:"up_to_id"`
}

type markReadResponse struct {
	CaseID  string `json:"case_id"`
	Updated int64  `json:"updated"`
}

func (h *HTTPHandler) GetMessages(c *gin.Context) {
	caseID := c.Param("case_id")

	var cursor int64
	if s := c.Query("cursor"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			response.BadRequest(c, "cursor must be a non-negative integer")
			return
		}
		cursor = v
	}

	direction := c.DefaultQuery("direction", "backward")
	if direction != "backward" && direction != "forward" {
		response.BadRequest(c, "direction must be 'backward' or 'forward'")
		return
	}

	limit := store.DefaultLimit
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(v, store.MaxLimit)
	}

	page, err := h.history.GetMessages(c.Request.Context(), middleware.GetUserID(c), store.ListQuery{
		CaseID:    caseID,
		Cursor:    cursor,
		Limit:     limit,
		Direction: store.ParseDirection(direction),
	})
	if err != nil {
		h.writeError(c, err, "failed to get messages")
		return
	}

	response.Success(c, page)
}

func (h *HTTPHandler) GetUnread(c *gin.Context) {
	snap, err := h.history.GetUnread(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "failed to get unread count")
		return
	}
	response.Success(c, snap)
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	caseID := c.Param("case_id")

	var req markReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}

	n, err := h.history.MarkRead(c.Request.Context(), middleware.GetUserID(c), caseID, req.UpToID)
	if err != nil {
		h.writeError(c, err, "failed to mark messages read")
		return
	}

	response.Success(c, markReadResponse{CaseID: caseID, Updated: n})
}

func (h *HTTPHandler) ExportTranscript(c *gin.Context) {
	exp, err := h.transcripts.Export(c.Request.Context(), middleware.GetUserID(c), c.Param("case_id"))
	if err != nil {
		h.writeError(c, err, "failed to export transcript")
		return
	}
	response.Created(c, exp)
}

func (h *HTTPHandler) ListTranscripts(c *gin.Context) {
	objects, err := h.transcripts.List(c.Request.Context(), middleware.GetUserID(c), c.Param("case_id"))
	if err != nil {
		h.writeError(c, err, "failed to list transcripts")
		return
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	response.Success(c, objects)
}

func (h *HTTPHandler) DownloadTranscript(c *gin.Context) {
	name := c.Param("name")
	rc, err := h.transcripts.Open(c.Request.Context(), middleware.GetUserID(c), c.Param("case_id"), name)
	if err != nil {
		if transcript.IsNotFound(err) {
			response.NotFound(c, "transcript not found")
			return
		}
		h.writeError(c, err, "failed to read transcript")
		return
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if disposition == "" {
		disposition = "attachment"
	}
	c.DataFromReader(http.StatusOK, -1, transcript.ContentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	connections, rooms, err := h.hub.Stats()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopping"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": connections,
		"rooms":       rooms,
	})
}

// writeError never tells the caller why access was denied.
func (h *HTTPHandler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		response.BadRequest(c, "case_id is required")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(c, "forbidden")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		_ = c.Error(err)
		response.InternalError(c, msg)
	}
}
