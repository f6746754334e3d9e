package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/leadgen/internal/domain"
	"github.com/liliang-cn/leadgen/internal/service"
	"github.com/liliang-cn/leadgen/internal/validate"
	"github.com/liliang-cn/leadgen/internal/workflow"
)

const (
	// heartbeatInterval keeps idle event streams open through proxies
	heartbeatInterval = 15 * time.Second

	// multipartOverhead is the room left for boundaries and form fields
	// around an upload of the maximum size
	multipartOverhead = 64 << 10
)

// Handler serves the analysis flows to the dashboard
type Handler struct {
	analysisService *service.AnalysisService
	maxUploadSize   int64
}

// NewHandler creates a new dashboard handler
func NewHandler(analysisService *service.AnalysisService, maxUploadSize int64) *Handler {
	return &Handler{
		analysisService: analysisService,
		maxUploadSize:   maxUploadSize,
	}
}

// RegisterRoutes registers dashboard routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/session", h.GetSession)

	flows := r.Group("/flows")
	{
		flows.GET("/:flow", h.GetState)
		flows.GET("/:flow/events", h.Events)
		flows.POST("/:flow/submit", h.Submit)
		flows.POST("/:flow/drag", h.Drag)
		flows.POST("/:flow/drop", h.Drop)
		flows.POST("/:flow/reset", h.Reset)
		flows.POST("/:flow/cancel", h.Cancel)
	}
}

type submitURLRequest struct {
	URL string `json:"url"`
}

type dragRequest struct {
	Event validate.DragEvent `json:"event" binding:"required"`
}

// GetSession returns the installation's session id
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"session_id": h.analysisService.SessionID(c.Request.Context())})
}

// GetState returns the current snapshot of a flow
func (h *Handler) GetState(c *gin.Context) {
	flow, ok := parseFlow(c)
	if !ok {
		return
	}

	state, _ := h.analysisService.State(flow)
	c.JSON(http.StatusOK, state)
}

// Events streams a flow's snapshots (SSE), starting with the current one
func (h *Handler) Events(c *gin.Context) {
	flow, ok := parseFlow(c)
	if !ok {
		return
	}

	updates, stop, err := h.analysisService.Subscribe(flow, 16)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	current, _ := h.analysisService.State(flow)
	writeSSE(c.Writer, current)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case state, ok := <-updates:
			if !ok {
				return false
			}
			writeSSE(w, state)
			return true
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Submit starts an analysis: a JSON {url} for the URL flow, a multipart
// file for the document flow
func (h *Handler) Submit(c *gin.Context) {
	flow, ok := parseFlow(c)
	if !ok {
		return
	}

	if flow == domain.FlowDocument {
		h.submitDocument(c)
		return
	}
	h.submitURL(c)
}

func (h *Handler) submitURL(c *gin.Context) {
	var req submitURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.analysisService.SubmitURL(c.Request.Context(), req.URL)
	respondSubmission(c, state, err)
}

func (h *Handler) submitDocument(c *gin.Context) {
	file, ok := h.readFile(c)
	if !ok {
		return
	}

	state, err := h.analysisService.SubmitDocument(c.Request.Context(), file)
	respondSubmission(c, state, err)
}

// Drag records a drag gesture over the drop area
func (h *Handler) Drag(c *gin.Context) {
	if !documentOnly(c) {
		return
	}

	var req dragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.analysisService.Drag(req.Event)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"drag_state": state})
}

// Drop submits a file dropped on the drop area
func (h *Handler) Drop(c *gin.Context) {
	if !documentOnly(c) {
		return
	}

	file, ok := h.readFile(c)
	if !ok {
		// a drop without a usable file still ends the gesture
		_, _ = h.analysisService.Drag(validate.DragLeave)
		return
	}

	state, err := h.analysisService.Drop(c.Request.Context(), file)
	respondSubmission(c, state, err)
}

// Reset returns a finished flow to Idle
func (h *Handler) Reset(c *gin.Context) {
	flow, ok := parseFlow(c)
	if !ok {
		return
	}

	state, err := h.analysisService.Reset(flow)
	respondTransition(c, state, err)
}

// Cancel abandons a flow's in-flight submission
func (h *Handler) Cancel(c *gin.Context) {
	flow, ok := parseFlow(c)
	if !ok {
		return
	}

	state, err := h.analysisService.Cancel(flow)
	respondTransition(c, state, err)
}

func (h *Handler) readFile(c *gin.Context) (*domain.DocumentFile, bool) {
	if h.maxUploadSize > 0 {
		limit := h.maxUploadSize + multipartOverhead
		if c.Request.ContentLength > limit {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return nil, false
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, false
	}
	if h.maxUploadSize > 0 && header.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return nil, false
	}

	file, err := readUpload(header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return file, true
}

func readUpload(header *multipart.FileHeader) (*domain.DocumentFile, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	declared := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mediaType
	}

	return &domain.DocumentFile{
		Filename:  header.Filename,
		MediaType: validate.DeclaredType(declared, content),
		Content:   content,
	}, nil
}

func parseFlow(c *gin.Context) (domain.Flow, bool) {
	flow, err := domain.ParseFlow(c.Param("flow"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown flow"})
		return "", false
	}
	return flow, true
}

// documentOnly rejects routes that only exist for the document flow
func documentOnly(c *gin.Context) bool {
	flow, ok := parseFlow(c)
	if !ok {
		return false
	}
	if flow != domain.FlowDocument {
		c.JSON(http.StatusNotFound, gin.H{"error": "drag and drop is only available for documents"})
		return false
	}
	return true
}

func respondSubmission(c *gin.Context, state domain.State, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, state)
	case errors.Is(err, service.ErrFlowBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": state})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func respondTransition(c *gin.Context, state domain.State, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, state)
	case errors.Is(err, workflow.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": state})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func writeSSE(w io.Writer, state domain.State) {
	data, _ := json.Marshal(state)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", state.Phase, data)
}
