// Package upstream is the console's client for the laboratory API that owns
// patient matching, report storage, and WhatsApp delivery. The console never
// decides dispatch eligibility itself; it relays the upstream's verdicts.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ouldcheikh/labconsole/internal/domain"
	"github.com/ouldcheikh/labconsole/internal/observability"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

// TokenSource supplies the current bearer credential for outbound requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client wraps the upstream REST API with bearer injection, a fixed request
// ceiling, and the console's error taxonomy.
type Client struct {
	http             *resty.Client
	tokens           TokenSource
	onSessionInvalid func(reason string)
	logger           *zap.Logger
	metrics          *observability.Metrics
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, logger *zap.Logger) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("upstream base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(trimmed)
	httpClient.SetTimeout(timeout)
	httpClient.SetRetryCount(0)

	c := &Client{
		http:   httpClient,
		tokens: tokens,
		logger: logger,
	}

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if c.tokens == nil {
			return nil
		}
		token, err := c.tokens.Token(req.Context())
		if err != nil || strings.TrimSpace(token) == "" {
			return nil
		}
		req.SetHeader("Authorization", "Bearer "+token)
		return nil
	})

	return c, nil
}

// SetSessionInvalidHandler installs the hook fired when the upstream rejects
// the bearer token. The handler owns the one-shot broadcast semantics.
func (c *Client) SetSessionInvalidHandler(fn func(reason string)) {
	c.onSessionInvalid = fn
}

func (c *Client) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

type envelope struct {
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// execute runs one upstream call and funnels every failure through the
// console's taxonomy: no response at all, rejected token, or server verdict.
func (c *Client) execute(operation string, call func() (*resty.Response, error)) (*resty.Response, error) {
	start := time.Now()
	response, err := call()
	if c.metrics != nil {
		failed := err != nil || response == nil || response.IsError()
		c.metrics.ObserveUpstream(operation, time.Since(start), failed)
	}

	if err != nil {
		return nil, &Error{
			Message:   fmt.Sprintf("%s request failed", operation),
			Transient: !errors.Is(err, context.Canceled),
			Sentinel:  domain.ErrUnreachable,
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &Error{
			Message:   fmt.Sprintf("%s returned empty response", operation),
			Transient: true,
			Sentinel:  domain.ErrUnreachable,
		}
	}

	if response.IsError() {
		return nil, c.errorFromResponse(operation, response)
	}

	return response, nil
}

func (c *Client) errorFromResponse(operation string, response *resty.Response) error {
	statusCode := response.StatusCode()
	serverMsg := serverErrorMessage(response.Body())

	if statusCode == 401 {
		if isTokenError(serverMsg) && c.onSessionInvalid != nil {
			c.onSessionInvalid(serverMsg)
		}
		return &Error{
			StatusCode: statusCode,
			Message:    serverMsg,
			Sentinel:   domain.ErrUnauthorized,
		}
	}

	var sentinel error
	switch {
	case statusCode == 404:
		sentinel = domain.ErrNotFound
	case statusCode == 409:
		sentinel = domain.ErrConflict
	case statusCode >= 400 && statusCode < 500 && statusCode != 429:
		sentinel = domain.ErrValidation
	}

	if serverMsg == "" {
		serverMsg = fmt.Sprintf("%s returned status %d", operation, statusCode)
	}

	return &Error{
		StatusCode: statusCode,
		Message:    serverMsg,
		Transient:  isTransientHTTPStatus(statusCode),
		Sentinel:   sentinel,
	}
}

// decodeEnvelope parses the upstream's {success, error, data} wrapper.
// Endpoints without a success flag are treated as successful on 2xx.
func decodeEnvelope(operation string, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	if env.Success != nil && !*env.Success {
		msg := strings.TrimSpace(env.Error)
		if msg == "" {
			msg = fmt.Sprintf("%s reported failure", operation)
		}
		return &Error{Message: msg, Sentinel: domain.ErrValidation}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("%s response has no data", operation)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", operation, err)
	}
	return nil
}

func serverErrorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return strings.TrimSpace(env.Error)
}

func isTokenError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "token")
}

// ListQuery carries list pagination and the active filter set. Empty filter
// values are never sent.
type ListQuery struct {
	Page    int
	Limit   int
	Filters map[string]string
}

// AnalysisPage is one page of analyses plus the upstream pagination block.
type AnalysisPage struct {
	Analyses   []domain.AnalysisRecord `json:"analyses"`
	Pagination domain.Pagination       `json:"pagination"`
}

func (c *Client) ListAnalyses(ctx context.Context, query ListQuery) (*AnalysisPage, error) {
	params := map[string]string{
		"page":  strconv.Itoa(max(query.Page, 1)),
		"limit": strconv.Itoa(max(query.Limit, 1)),
	}
	for key, value := range query.Filters {
		if strings.TrimSpace(value) != "" {
			params[key] = value
		}
	}

	response, err := c.execute("ListAnalyses", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetQueryParams(params).Get("/analysis")
	})
	if err != nil {
		return nil, err
	}

	var page AnalysisPage
	if err := decodeEnvelope("ListAnalyses", response.Body(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

type analysisData struct {
	Analysis domain.AnalysisRecord `json:"analysis"`
}

func (c *Client) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	response, err := c.execute("GetAnalysis", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get("/analysis/" + url.PathEscape(id))
	})
	if err != nil {
		return nil, err
	}

	var data analysisData
	if err := decodeEnvelope("GetAnalysis", response.Body(), &data); err != nil {
		return nil, err
	}
	return &data.Analysis, nil
}

func (c *Client) CreateAnalysis(ctx context.Context, meta domain.CreateAnalysis, filename string, file io.Reader) (*domain.AnalysisRecord, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"patientName":  strings.TrimSpace(meta.PatientName),
		"patientPhone": strings.TrimSpace(meta.PatientPhone),
		"analysisType": strings.TrimSpace(meta.AnalysisType),
	}
	if strings.TrimSpace(meta.AnalysisDate) != "" {
		fields["analysisDate"] = strings.TrimSpace(meta.AnalysisDate)
	}

	response, err := c.execute("CreateAnalysis", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetFileReader("pdfFile", filename, file).
			SetFormData(fields).
			Post("/analysis")
	})
	if err != nil {
		return nil, err
	}

	var data analysisData
	if err := decodeEnvelope("CreateAnalysis", response.Body(), &data); err != nil {
		return nil, err
	}
	return &data.Analysis, nil
}

func (c *Client) SendAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	response, err := c.execute("SendAnalysis", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Post("/analysis/" + url.PathEscape(id) + "/send")
	})
	if err != nil {
		return nil, err
	}

	var data analysisData
	if err := decodeEnvelope("SendAnalysis", response.Body(), &data); err != nil {
		return nil, err
	}
	return &data.Analysis, nil
}

func (c *Client) RetryAnalysis(ctx context.Context, id string) error {
	response, err := c.execute("RetryAnalysis", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Post("/whatsapp/retry/" + url.PathEscape(id))
	})
	if err != nil {
		return err
	}
	return decodeEnvelope("RetryAnalysis", response.Body(), nil)
}

func (c *Client) DeleteAnalysis(ctx context.Context, id string) error {
	response, err := c.execute("DeleteAnalysis", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Delete("/analysis/" + url.PathEscape(id))
	})
	if err != nil {
		return err
	}
	return decodeEnvelope("DeleteAnalysis", response.Body(), nil)
}

// DownloadPDF fetches the stored report as an opaque blob.
func (c *Client) DownloadPDF(ctx context.Context, id string) ([]byte, string, error) {
	response, err := c.execute("DownloadPDF", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get("/analysis/" + url.PathEscape(id) + "/download")
	})
	if err != nil {
		return nil, "", err
	}

	contentType := response.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return response.Body(), contentType, nil
}

func (c *Client) Stats(ctx context.Context) (*domain.StatsSummary, error) {
	response, err := c.execute("Stats", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get("/analysis/stats")
	})
	if err != nil {
		return nil, err
	}

	var stats domain.StatsSummary
	if err := decodeEnvelope("Stats", response.Body(), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// PrepareBatch requests a non-binding dispatch preview for the selected ids.
func (c *Client) PrepareBatch(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
	if len(analysisIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one analysis id is required", domain.ErrValidation)
	}

	response, err := c.execute("PrepareBatch", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(map[string][]string{"analysisIds": analysisIDs}).
			Post("/whatsapp/batch/prepare")
	})
	if err != nil {
		return nil, err
	}

	var preview domain.BatchPreview
	if err := decodeEnvelope("PrepareBatch", response.Body(), &preview); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.IncBatchPrepared()
	}
	return &preview, nil
}

// ConfirmBatch submits the binding batch confirmation.
func (c *Client) ConfirmBatch(ctx context.Context, confirmation domain.BatchConfirmation) (*domain.BatchOutcome, error) {
	if err := confirmation.Validate(); err != nil {
		return nil, err
	}

	response, err := c.execute("ConfirmBatch", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(confirmation).
			Post("/whatsapp/batch/confirm")
	})
	if err != nil {
		return nil, err
	}

	var outcome domain.BatchOutcome
	if err := decodeEnvelope("ConfirmBatch", response.Body(), &outcome); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.AddMessagesQueued(outcome.QueuedSuccessfully)
	}
	return &outcome, nil
}

// PatientQuery carries patient list paging, search, and sort.
type PatientQuery struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

func (q PatientQuery) params() map[string]string {
	params := map[string]string{
		"page":  strconv.Itoa(max(q.Page, 1)),
		"limit": strconv.Itoa(max(q.Limit, 1)),
	}
	if strings.TrimSpace(q.Search) != "" {
		params["search"] = q.Search
	}
	if strings.TrimSpace(q.SortBy) != "" {
		params["sortBy"] = q.SortBy
	}
	if strings.TrimSpace(q.SortOrder) != "" {
		params["sortOrder"] = q.SortOrder
	}
	return params
}

// ListPatients returns the patient roster screen payload as served upstream.
func (c *Client) ListPatients(ctx context.Context, query PatientQuery) (json.RawMessage, error) {
	response, err := c.execute("ListPatients", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetQueryParams(query.params()).Get("/batch-analysis/patients")
	})
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if err := decodeEnvelope("ListPatients", response.Body(), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) PatientHistory(ctx context.Context, patientPhone string, params map[string]string) (json.RawMessage, error) {
	response, err := c.execute("PatientHistory", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/patient-history/" + url.PathEscape(patientPhone))
	})
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if err := decodeEnvelope("PatientHistory", response.Body(), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) PatientTimeline(ctx context.Context, patientPhone string) (json.RawMessage, error) {
	response, err := c.execute("PatientTimeline", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get("/patient-history/" + url.PathEscape(patientPhone) + "/timeline")
	})
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if err := decodeEnvelope("PatientTimeline", response.Body(), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// ExportHistoryCSV fetches the upstream's CSV export for one patient.
func (c *Client) ExportHistoryCSV(ctx context.Context, patientPhone string, params map[string]string) ([]byte, error) {
	response, err := c.execute("ExportHistoryCSV", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/patient-history/" + url.PathEscape(patientPhone) + "/export")
	})
	if err != nil {
		return nil, err
	}
	return response.Body(), nil
}

func (c *Client) BatchStats(ctx context.Context) (json.RawMessage, error) {
	response, err := c.execute("BatchStats", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get("/batch-analysis/stats")
	})
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if err := decodeEnvelope("BatchStats", response.Body(), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// BatchFile is one report in a multi-file upload.
type BatchFile struct {
	Filename string
	Content  io.Reader
}

// UploadBatch forwards a multi-file report upload for server-side patient
// matching. Size and type checks happen at the console boundary before this
// call.
func (c *Client) UploadBatch(ctx context.Context, files []BatchFile) (json.RawMessage, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", domain.ErrValidation)
	}

	response, err := c.execute("UploadBatch", func() (*resty.Response, error) {
		req := c.http.R().SetContext(ctx)
		for _, f := range files {
			req.SetFileReader("pdfFiles", f.Filename, f.Content)
		}
		return req.Post("/batch-analysis/upload")
	})
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if err := decodeEnvelope("UploadBatch", response.Body(), &data); err != nil {
		return nil, err
	}
	return data, nil
}

type loginData struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

func (c *Client) Login(ctx context.Context, email string, password string) (string, json.RawMessage, error) {
	response, err := c.execute("Login", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"email": email, "password": password}).
			Post("/auth/login")
	})
	if err != nil {
		return "", nil, err
	}

	var data loginData
	if err := decodeEnvelope("Login", response.Body(), &data); err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(data.Token) == "" {
		return "", nil, fmt.Errorf("login response has no token")
	}
	return data.Token, data.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	response, err := c.execute("Logout", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Post("/auth/logout")
	})
	if err != nil {
		return err
	}
	return decodeEnvelope("Logout", response.Body(), nil)
}

func (c *Client) Me(ctx context.Context) (json.RawMessage, error) {
	response, err := c.execute("Me", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get("/auth/me")
	})
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if err := decodeEnvelope("Me", response.Body(), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword string, newPassword string) error {
	response, err := c.execute("ChangePassword", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"currentPassword": currentPassword,
				"newPassword":     newPassword,
			}).
			Put("/auth/change-password")
	})
	if err != nil {
		return err
	}
	return decodeEnvelope("ChangePassword", response.Body(), nil)
}

// Health probes the upstream health endpoint for readiness checks.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.execute("Health", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get("/health")
	})
	return err
}
