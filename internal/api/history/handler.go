package history

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/leadgen/internal/backend"
	"github.com/liliang-cn/leadgen/internal/domain"
	"github.com/liliang-cn/leadgen/internal/service"
)

// Handler serves local history and backend usage lookups
type Handler struct {
	historyService *service.HistoryService
}

// NewHandler creates a new history handler
func NewHandler(historyService *service.HistoryService) *Handler {
	return &Handler{historyService: historyService}
}

// RegisterRoutes registers history routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/history", h.ListHistory)
	r.GET("/history/:id", h.GetHistory)
	r.POST("/history/:id/email", h.DraftEmail)
	r.GET("/usage", h.GetUsage)
	r.GET("/reports", h.ListReports)
}

func (h *Handler) ListHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	reports, err := h.historyService.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) GetHistory(c *gin.Context) {
	report, result, err := h.historyService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report, "result": result})
}

type draftEmailRequest struct {
	StarterIndex *int `json:"starter_index" binding:"required"`
}

func (h *Handler) DraftEmail(c *gin.Context) {
	var req draftEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.historyService.DraftEmail(c.Request.Context(), c.Param("id"), *req.StarterIndex)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		case errors.Is(err, domain.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			respondBackendError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"email": draft})
}

func (h *Handler) GetUsage(c *gin.Context) {
	usage, err := h.historyService.Usage(c.Request.Context())
	if err != nil {
		respondBackendError(c, err)
		return
	}

	resp := gin.H{"usage": usage, "unlimited": usage.Unlimited()}
	if left, ok := usage.Remaining(); ok {
		resp["remaining"] = left
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	reports, err := h.historyService.RemoteReports(c.Request.Context(), limit)
	if err != nil {
		respondBackendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func respondBackendError(c *gin.Context, err error) {
	var respErr *backend.ResponseError
	if errors.As(err, &respErr) && respErr.Message != "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": respErr.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
