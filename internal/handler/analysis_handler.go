package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ouldcheikh/labconsole/internal/domain"
	"github.com/ouldcheikh/labconsole/internal/i18n"
	"github.com/ouldcheikh/labconsole/internal/observability"
	"github.com/ouldcheikh/labconsole/internal/store"
)

// RecordStore is the slice of the analysis store the handler drives.
type RecordStore interface {
	List(ctx context.Context, params store.ListParams) store.Result
	ClearFilters(ctx context.Context) store.Result
	Create(ctx context.Context, meta domain.CreateAnalysis, filename string, file io.Reader) (*domain.AnalysisRecord, store.Result)
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, store.Result)
	Send(ctx context.Context, id string) (*domain.AnalysisRecord, store.Result)
	Retry(ctx context.Context, id string) store.Result
	Remove(ctx context.Context, id string) store.Result
	Stats(ctx context.Context) (*domain.StatsSummary, store.Result)
	Snapshot() store.Snapshot
}

// PDFDownloader fetches a stored report blob from the upstream.
type PDFDownloader interface {
	DownloadPDF(ctx context.Context, id string) ([]byte, string, error)
}

type AnalysisHandler struct {
	store      RecordStore
	downloader PDFDownloader
	metrics    *observability.Metrics
	maxUpload  int64
}

func NewAnalysisHandler(recordStore RecordStore, downloader PDFDownloader, metrics *observability.Metrics, maxUpload int64) (*AnalysisHandler, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if downloader == nil {
		return nil, fmt.Errorf("pdf downloader is required")
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("max upload size is required")
	}
	return &AnalysisHandler{
		store:      recordStore,
		downloader: downloader,
		metrics:    metrics,
		maxUpload:  maxUpload,
	}, nil
}

func RegisterAnalysisRoutes(router fiber.Router, recordStore RecordStore, downloader PDFDownloader, metrics *observability.Metrics, maxUpload int64) error {
	h, err := NewAnalysisHandler(recordStore, downloader, metrics, maxUpload)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/analyses", h.ListAnalyses)
	v1.Post("/analyses", h.CreateAnalysis)
	// Registered before /:id so "stats" is never taken for an id.
	v1.Get("/analyses/stats", h.GetStats)
	v1.Get("/analyses/:id", h.GetAnalysis)
	v1.Post("/analyses/:id/send", h.SendAnalysis)
	v1.Post("/analyses/:id/retry", h.RetryAnalysis)
	v1.Delete("/analyses/:id", h.DeleteAnalysis)
	v1.Get("/analyses/:id/download", h.DownloadPDF)

	return nil
}

// filterKeys are the list filters forwarded to the upstream as-is.
var filterKeys = []string{"status", "analysisType", "patientName", "patientPhone", "startDate", "endDate"}

func (h *AnalysisHandler) ListAnalyses(c *fiber.Ctx) error {
	params := store.ListParams{
		Page:    c.QueryInt("page", 0),
		Limit:   c.QueryInt("limit", 0),
		Filters: map[string]string{},
	}
	for _, key := range filterKeys {
		// An explicitly empty query value clears that filter; an absent key
		// leaves the active filter untouched.
		if values, ok := c.Queries()[key]; ok {
			params.Filters[key] = values
		}
	}

	if rawStatus := strings.TrimSpace(params.Filters["status"]); rawStatus != "" {
		if _, err := domain.ParseStatusFromString(rawStatus); err != nil {
			return err
		}
	}
	if rawType := strings.TrimSpace(params.Filters["analysisType"]); rawType != "" {
		if _, err := domain.ParseAnalysisTypeFromString(rawType); err != nil {
			return err
		}
	}

	if c.QueryBool("clearFilters", false) {
		if result := h.store.ClearFilters(c.Context()); !result.Success {
			return result.Err()
		}
	} else if result := h.store.List(c.Context(), params); !result.Success {
		return result.Err()
	}

	snapshot := h.store.Snapshot()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"analyses":   snapshot.Records,
			"pagination": snapshot.Pagination,
			"filters":    snapshot.Filters,
		},
	})
}

func (h *AnalysisHandler) CreateAnalysis(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("pdfFile")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "pdfFile is required")
	}
	if err := h.checkUpload(c, fileHeader); err != nil {
		return err
	}

	meta := domain.CreateAnalysis{
		PatientName:  c.FormValue("patientName"),
		PatientPhone: c.FormValue("patientPhone"),
		AnalysisType: c.FormValue("analysisType"),
		AnalysisDate: c.FormValue("analysisDate"),
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	created, result := h.store.Create(c.Context(), meta, fileHeader.Filename, file)
	if !result.Success {
		return result.Err()
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"analysis": created},
		"message": i18n.T(requestLanguage(c), "analysis.created"),
	})
}

func (h *AnalysisHandler) GetAnalysis(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, result := h.store.Get(c.Context(), id)
	if !result.Success {
		return result.Err()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"analysis": record},
	})
}

func (h *AnalysisHandler) SendAnalysis(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, result := h.store.Send(c.Context(), id)
	if !result.Success {
		return result.Err()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"analysis": record},
		"message": i18n.T(requestLanguage(c), "analysis.sent"),
	})
}

func (h *AnalysisHandler) RetryAnalysis(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if result := h.store.Retry(c.Context(), id); !result.Success {
		return result.Err()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": i18n.T(requestLanguage(c), "analysis.retried"),
	})
}

func (h *AnalysisHandler) DeleteAnalysis(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if result := h.store.Remove(c.Context(), id); !result.Success {
		return result.Err()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": i18n.T(requestLanguage(c), "analysis.deleted"),
	})
}

func (h *AnalysisHandler) GetStats(c *fiber.Ctx) error {
	stats, result := h.store.Stats(c.Context())
	if !result.Success {
		return result.Err()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

func (h *AnalysisHandler) DownloadPDF(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	blob, contentType, err := h.downloader.DownloadPDF(c.Context(), id)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", id+".pdf"))
	return c.Status(fiber.StatusOK).Send(blob)
}

// checkUpload enforces the per-file cap and PDF-only rule before anything
// reaches the upstream.
func (h *AnalysisHandler) checkUpload(c *fiber.Ctx, fileHeader *multipart.FileHeader) error {
	if fileHeader.Size > h.maxUpload {
		if h.metrics != nil {
			h.metrics.IncUploadRejected("too_large")
		}
		return fiber.NewError(fiber.StatusBadRequest, i18n.T(requestLanguage(c), "upload.tooLarge"))
	}
	if !strings.EqualFold(strings.TrimSpace(filepathExt(fileHeader.Filename)), ".pdf") {
		if h.metrics != nil {
			h.metrics.IncUploadRejected("not_pdf")
		}
		return fiber.NewError(fiber.StatusBadRequest, i18n.T(requestLanguage(c), "upload.notPDF"))
	}
	return nil
}

func filepathExt(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx:]
	}
	return ""
}
