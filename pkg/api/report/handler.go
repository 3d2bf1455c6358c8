// Package report exposes the analysis pipeline over HTTP.
package report

import (
	"context"
	"errors"
	"io"
	"net/http"
	"statement_report/pkg/core/chat"
	"statement_report/pkg/core/extract"
	"statement_report/pkg/core/ingest"
	"statement_report/pkg/core/pipeline"
	"statement_report/pkg/core/store"
	"statement_report/pkg/models"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Runner analyses one uploaded document.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Analysis, error)
}

// Replier answers chat turns.
type Replier interface {
	Reply(ctx context.Context, history []chat.Message, report *models.ReportResult) (string, error)
}

// Reports reads stored analyses.
type Reports interface {
	Get(ctx context.Context, id string) (*store.ReportEnvelope, error)
	List(ctx context.Context, limit int) ([]store.ReportEnvelope, error)
}

// Response is the body of a successful upload.
type Response struct {
	store.ReportEnvelope
	State              pipeline.State        `json:"state"`
	Transitions        []pipeline.Transition `json:"transitions"`
	ExtractionDegraded bool                  `json:"extraction_degraded,omitempty"`
}

type ChatRequest struct {
	Messages []chat.Message `json:"messages" binding:"required,min=1,dive"`
	ReportID string         `json:"report_id"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type Handler struct {
	runner    Runner
	replier   Replier
	reports   Reports
	maxUpload int64
	logger    *zap.Logger
}

func NewHandler(runner Runner, replier Replier, reports Reports, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, replier: replier, reports: reports, maxUpload: maxUploadBytes, logger: logger}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/reports", h.CreateReport)
	r.GET("/reports", h.ListReports)
	r.GET("/reports/:id", h.GetReport)
	r.POST("/chat", h.Chat)
}

// CreateReport runs the pipeline on the multipart "file" field.
func (h *Handler) CreateReport(ctx *gin.Context) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	src, err := fh.Open()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "error opening file"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "error reading file"})
		return
	}

	in := pipeline.Input{
		Name:      fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}
	a, err := h.runner.Run(ctx.Request.Context(), in)
	if err != nil {
		status := statusFor(err)
		h.logger.Warn("analysis rejected", zap.String("file", fh.Filename), zap.Int("status", status), zap.Error(err))
		body := gin.H{"error": err.Error()}
		if a != nil {
			body["id"] = a.ID
			body["state"] = a.State()
		}
		if errors.Is(err, ingest.ErrUnsupportedMediaType) {
			body["supported"] = ingest.SupportedTypes()
		}
		ctx.JSON(status, body)
		return
	}

	ctx.JSON(http.StatusCreated, Response{
		ReportEnvelope:     a.Envelope(),
		State:              a.State(),
		Transitions:        a.Transitions,
		ExtractionDegraded: a.ExtractionDegraded,
	})
}

func statusFor(err error) int {
	var xerr *extract.ExtractionError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.As(err, &xerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) GetReport(ctx *gin.Context) {
	env, err := h.reports.Get(ctx.Request.Context(), ctx.Param("id"))
	if errors.Is(err, store.ErrReportNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load report", zap.String("id", ctx.Param("id")), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}
	ctx.JSON(http.StatusOK, env)
}

func (h *Handler) ListReports(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	list, err := h.reports.List(ctx.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list reports", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	if list == nil {
		list = []store.ReportEnvelope{}
	}
	ctx.JSON(http.StatusOK, gin.H{"reports": list})
}

// Chat answers the last user message, grounded on a stored report when report_id is set.
func (h *Handler) Chat(ctx *gin.Context) {
	var req ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var result *models.ReportResult
	if req.ReportID != "" {
		env, err := h.reports.Get(ctx.Request.Context(), req.ReportID)
		if errors.Is(err, store.ErrReportNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
			return
		}
		result = env.Report
	}

	reply, err := h.replier.Reply(ctx.Request.Context(), req.Messages, result)
	switch {
	case errors.Is(err, chat.ErrEmptyHistory), errors.Is(err, chat.ErrLastNotFromUser):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Warn("chat failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "assistant unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, ChatResponse{Reply: reply})
}
