package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ouldcheikh/labconsole/internal/i18n"
	"github.com/ouldcheikh/labconsole/internal/observability"
	"github.com/ouldcheikh/labconsole/internal/phone"
	"github.com/ouldcheikh/labconsole/internal/upstream"
)

// PatientGateway is the slice of the upstream client serving the patient
// screens. Responses pass through untouched; the upstream owns their shape.
type PatientGateway interface {
	ListPatients(ctx context.Context, query upstream.PatientQuery) (json.RawMessage, error)
	PatientHistory(ctx context.Context, patientPhone string, params map[string]string) (json.RawMessage, error)
	PatientTimeline(ctx context.Context, patientPhone string) (json.RawMessage, error)
	ExportHistoryCSV(ctx context.Context, patientPhone string, params map[string]string) ([]byte, error)
	BatchStats(ctx context.Context) (json.RawMessage, error)
	UploadBatch(ctx context.Context, files []upstream.BatchFile) (json.RawMessage, error)
}

type PatientHandler struct {
	gateway   PatientGateway
	metrics   *observability.Metrics
	maxUpload int64
}

func NewPatientHandler(gateway PatientGateway, metrics *observability.Metrics, maxUpload int64) (*PatientHandler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("patient gateway is required")
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("max upload size is required")
	}
	return &PatientHandler{
		gateway:   gateway,
		metrics:   metrics,
		maxUpload: maxUpload,
	}, nil
}

func RegisterPatientRoutes(router fiber.Router, gateway PatientGateway, metrics *observability.Metrics, maxUpload int64) error {
	h, err := NewPatientHandler(gateway, metrics, maxUpload)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/patients", h.ListPatients)
	v1.Get("/patients/:phone/history", h.PatientHistory)
	v1.Get("/patients/:phone/timeline", h.PatientTimeline)
	v1.Get("/patients/:phone/history/export", h.ExportHistory)
	v1.Get("/batch-uploads/stats", h.BatchStats)
	v1.Post("/batch-uploads", h.UploadBatch)

	return nil
}

func (h *PatientHandler) ListPatients(c *fiber.Ctx) error {
	query := upstream.PatientQuery{
		Page:      c.QueryInt("page", 1),
		Limit:     c.QueryInt("limit", 20),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}

	data, err := h.gateway.ListPatients(c.Context(), query)
	if err != nil {
		return err
	}
	return respondRaw(c, data)
}

func (h *PatientHandler) PatientHistory(c *fiber.Ctx) error {
	data, err := h.gateway.PatientHistory(c.Context(), h.dispatchPhone(c), historyParams(c))
	if err != nil {
		return err
	}
	return respondRaw(c, data)
}

func (h *PatientHandler) PatientTimeline(c *fiber.Ctx) error {
	data, err := h.gateway.PatientTimeline(c.Context(), h.dispatchPhone(c))
	if err != nil {
		return err
	}
	return respondRaw(c, data)
}

func (h *PatientHandler) ExportHistory(c *fiber.Ctx) error {
	patientPhone := h.dispatchPhone(c)
	blob, err := h.gateway.ExportHistoryCSV(c.Context(), patientPhone, historyParams(c))
	if err != nil {
		return err
	}

	filename := "historique_" + strings.TrimPrefix(patientPhone, "+") + ".csv"
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(blob)
}

func (h *PatientHandler) BatchStats(c *fiber.Ctx) error {
	data, err := h.gateway.BatchStats(c.Context())
	if err != nil {
		return err
	}
	return respondRaw(c, data)
}

// UploadBatch forwards a multi-report upload. Every file must pass the size
// and PDF checks before a single byte goes upstream; one bad file rejects the
// whole batch.
func (h *PatientHandler) UploadBatch(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form is required")
	}

	fileHeaders := form.File["pdfFiles"]
	if len(fileHeaders) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "pdfFiles is required")
	}

	for _, fileHeader := range fileHeaders {
		if fileHeader.Size > h.maxUpload {
			if h.metrics != nil {
				h.metrics.IncUploadRejected("too_large")
			}
			return fiber.NewError(fiber.StatusBadRequest, i18n.T(requestLanguage(c), "upload.tooLarge"))
		}
		if !strings.EqualFold(filepathExt(fileHeader.Filename), ".pdf") {
			if h.metrics != nil {
				h.metrics.IncUploadRejected("not_pdf")
			}
			return fiber.NewError(fiber.StatusBadRequest, i18n.T(requestLanguage(c), "upload.notPDF"))
		}
	}

	files := make([]upstream.BatchFile, 0, len(fileHeaders))
	for _, fileHeader := range fileHeaders {
		file, err := fileHeader.Open()
		if err != nil {
			return fmt.Errorf("failed to open uploaded file %s: %w", fileHeader.Filename, err)
		}
		defer file.Close()

		files = append(files, upstream.BatchFile{
			Filename: fileHeader.Filename,
			Content:  file,
		})
	}

	data, err := h.gateway.UploadBatch(c.Context(), files)
	if err != nil {
		return err
	}
	return respondRaw(c, data)
}

// dispatchPhone canonicalizes the path's phone so history lookups accept the
// same raw forms the list screen shows.
func (h *PatientHandler) dispatchPhone(c *fiber.Ctx) string {
	return phone.Dispatch(c.Params("phone"))
}

func historyParams(c *fiber.Ctx) map[string]string {
	params := map[string]string{}
	for _, key := range []string{"page", "limit", "startDate", "endDate", "analysisType", "status"} {
		if value := strings.TrimSpace(c.Query(key)); value != "" {
			params[key] = value
		}
	}
	return params
}

func respondRaw(c *fiber.Ctx, data json.RawMessage) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
