package handler

import (
	"net/http"
	"strconv"
	"time"

	"appideas.app/engine/common/id"
	"appideas.app/engine/internal/http/dto"
	"appideas.app/engine/internal/http/middleware"
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/report"
	"appideas.app/engine/internal/service"
	"github.com/gin-gonic/gin"
)

const streamBlock = 25 * time.Second

type AnalysisHandler struct {
	svc         service.AnalysisService
	streamBlock time.Duration
}

func NewAnalysisHandler(svc service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, streamBlock: streamBlock}
}

func (h *AnalysisHandler) SubmitApp(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req dto.SubmitAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: app_id is required"})
		return
	}

	run, err := h.svc.SubmitApp(c.Request.Context(), userID, req.AppID, req.Country)
	if err != nil {
		respondError(c, err, "failed to submit analysis")
		return
	}
	c.JSON(http.StatusAccepted, dto.ToRunResponse(run, nil))
}

func (h *AnalysisHandler) SubmitIdea(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req dto.SubmitIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: idea is required"})
		return
	}

	run, err := h.svc.SubmitIdea(c.Request.Context(), userID, req.Idea, req.Name)
	if err != nil {
		respondError(c, err, "failed to submit analysis")
		return
	}
	c.JSON(http.StatusAccepted, dto.ToRunResponse(run, nil))
}

func (h *AnalysisHandler) GetRun(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	runID, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.svc.GetRun(c.Request.Context(), userID, runID)
	if err != nil {
		respondError(c, err, "failed to load run")
		return
	}
	c.JSON(http.StatusOK, dto.ToRunResponse(view.Run, view.Statuses))
}

// StreamRun relays the run's progress events as server-sent events until the
// run reaches a terminal status or the client goes away.
func (h *AnalysisHandler) StreamRun(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := middleware.UserID(c)
	runID, ok := parseID(c, "id")
	if !ok {
		return
	}

	lastID := c.GetHeader("Last-Event-ID")
	if lastID == "" {
		lastID = c.Query("last_id")
	}

	// Resolve ownership before switching to a streaming response.
	if _, err := h.svc.Events(ctx, userID, runID, lastID, 0); err != nil {
		respondError(c, err, "failed to open run stream")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	sseWrite(c.Writer, "", "ping", "ready")
	flusher.Flush()

	for {
		if ctx.Err() != nil {
			return
		}

		events, err := h.svc.Events(ctx, userID, runID, lastID, h.streamBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sseWrite(c.Writer, "", "error", map[string]string{"error": "failed to read run events"})
			flusher.Flush()
			return
		}

		if len(events) == 0 {
			sseWrite(c.Writer, "", "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
			continue
		}

		for _, evt := range events {
			lastID = evt.ID
			sseWrite(c.Writer, evt.ID, string(evt.Event.Type), evt.Event)
			flusher.Flush()
			if evt.Event.Type == model.RunEventRun && evt.Event.RunStatus.Terminal() {
				return
			}
		}
	}
}

func (h *AnalysisHandler) Get(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	analysisID, ok := parseID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.Get(c.Request.Context(), userID, analysisID)
	if err != nil {
		respondError(c, err, "failed to load analysis")
		return
	}
	c.JSON(http.StatusOK, dto.ToAnalysisResponse(a))
}

func (h *AnalysisHandler) List(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	analyses, err := h.svc.List(c.Request.Context(), userID, int32(min(limit, 1000)))
	if err != nil {
		respondError(c, err, "failed to list analyses")
		return
	}
	c.JSON(http.StatusOK, dto.ToListAnalysesResponse(analyses))
}

// Share serves a persisted analysis by its public slug. ?format=markdown
// returns the rendered report instead of JSON.
func (h *AnalysisHandler) Share(c *gin.Context) {
	a, err := h.svc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err, "failed to load analysis")
		return
	}

	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(a)))
		return
	}
	c.JSON(http.StatusOK, dto.ToSharedAnalysisResponse(a))
}

func parseID(c *gin.Context, param string) (int64, bool) {
	v, err := id.Parse(c.Param(param))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return v, true
}
