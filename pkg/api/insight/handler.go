// Package insight serves the side analyses that run outside the report
// pipeline: sentiment of a text or stored report, and anomaly screening of
// tabular uploads.
package insight

import (
	"context"
	"errors"
	"io"
	"net/http"
	"statement_report/pkg/core/anomaly"
	"statement_report/pkg/core/ingest"
	"statement_report/pkg/core/sentiment"
	"statement_report/pkg/core/store"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sentimenter classifies text.
type Sentimenter interface {
	Sentiment(ctx context.Context, text string) (sentiment.Result, error)
}

// Reports reads stored analyses.
type Reports interface {
	Get(ctx context.Context, id string) (*store.ReportEnvelope, error)
}

// SentimentRequest carries either raw text or the ID of a stored report.
type SentimentRequest struct {
	Text     string `json:"text" binding:"required_without=ReportID"`
	ReportID string `json:"report_id" binding:"required_without=Text"`
}

type SentimentResponse struct {
	sentiment.Result
	ReportID string `json:"report_id,omitempty"`
}

type Handler struct {
	sentimenter Sentimenter
	reports     Reports
	maxUpload   int64
	logger      *zap.Logger
}

func NewHandler(sentimenter Sentimenter, reports Reports, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sentimenter: sentimenter, reports: reports, maxUpload: maxUploadBytes, logger: logger}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/sentiment", h.Sentiment)
	r.POST("/anomalies", h.Anomalies)
}

// Sentiment classifies the request text, or the generated sections of a stored report.
func (h *Handler) Sentiment(ctx *gin.Context) {
	var req SentimentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text := req.Text
	if req.ReportID != "" {
		env, err := h.reports.Get(ctx.Request.Context(), req.ReportID)
		if errors.Is(err, store.ErrReportNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		if err != nil {
			h.logger.Error("failed to load report", zap.String("id", req.ReportID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
			return
		}
		text = sentiment.ReportText(env.Report)
	}

	res, err := h.sentimenter.Sentiment(ctx.Request.Context(), text)
	switch {
	case errors.Is(err, sentiment.ErrEmptyText):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Warn("sentiment failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "sentiment unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, SentimentResponse{Result: res, ReportID: req.ReportID})
}

// Anomalies screens the multipart "file" field, a CSV or XLSX table.
// Query: k sets the threshold multiplier; columns is "growth" or a
// comma-separated list of required columns.
func (h *Handler) Anomalies(ctx *gin.Context) {
	opts, err := detectorOptions(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

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

	doc, err := ingest.Prepare(fh.Filename, fh.Header.Get("Content-Type"), data)
	switch {
	case errors.Is(err, ingest.ErrEmptyDocument):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		ctx.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error(), "supported": tabularTypes})
		return
	}
	if doc.MediaType != ingest.MediaCSV && doc.MediaType != ingest.MediaXLSX {
		ctx.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only CSV and XLSX tables can be screened", "supported": tabularTypes})
		return
	}

	res, err := anomaly.New(opts...).DetectCSV(strings.NewReader(doc.Text))
	if err != nil {
		h.logger.Info("anomaly screen rejected", zap.String("file", fh.Filename), zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("anomaly screen complete",
		zap.String("file", fh.Filename), zap.Int("scored", res.Scored), zap.Int("anomalies", res.NumAnomalies))
	ctx.JSON(http.StatusOK, res)
}

var tabularTypes = []string{ingest.MediaCSV, ingest.MediaXLSX}

func detectorOptions(ctx *gin.Context) ([]anomaly.Option, error) {
	var opts []anomaly.Option
	if k := ctx.Query("k"); k != "" {
		v, err := strconv.ParseFloat(k, 64)
		if err != nil || v <= 0 {
			return nil, errors.New("k must be a positive number")
		}
		opts = append(opts, anomaly.WithMultiplier(v))
	}
	switch cols := strings.TrimSpace(ctx.Query("columns")); cols {
	case "":
	case "growth":
		opts = append(opts, anomaly.WithRequiredColumns(anomaly.GrowthColumns...))
	default:
		var names []string
		for _, c := range strings.Split(cols, ",") {
			if c = strings.TrimSpace(c); c != "" {
				names = append(names, c)
			}
		}
		opts = append(opts, anomaly.WithRequiredColumns(names...))
	}
	return opts, nil
}
