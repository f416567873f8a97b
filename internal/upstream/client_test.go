package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ouldcheikh/labconsole/internal/domain"
)

type staticTokens struct {
	token string
}

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, 5*time.Second, staticTokens{token: token}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

func TestClientAttachesBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"analyses":[],"pagination":{"page":1,"limit":20,"total":0,"pages":0}}}`))
	}, "tok-123")

	if _, err := client.ListAnalyses(context.Background(), ListQuery{Page: 1, Limit: 20}); err != nil {
		t.Fatalf("ListAnalyses() error = %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer tok-123")
	}
}

func TestClientListAnalysesSendsFiltersSkippingEmpty(t *testing.T) {
	t.Parallel()

	var gotQuery map[string][]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"analyses":[],"pagination":{"page":3,"limit":20,"total":45,"pages":3}}}`))
	}, "")

	page, err := client.ListAnalyses(context.Background(), ListQuery{
		Page:  3,
		Limit: 20,
		Filters: map[string]string{
			"status":      "pending",
			"patientName": "",
		},
	})
	if err != nil {
		t.Fatalf("ListAnalyses() error = %v", err)
	}

	if got := gotQuery["status"]; len(got) != 1 || got[0] != "pending" {
		t.Fatalf("status filter = %v, want [pending]", got)
	}
	if _, ok := gotQuery["patientName"]; ok {
		t.Fatal("empty filter should not be sent")
	}
	if page.Pagination.Pages != 3 || page.Pagination.Total != 45 {
		t.Fatalf("pagination = %+v, want pages=3 total=45", page.Pagination)
	}
}

func TestClientValidationErrorKeepsServerMessage(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"Numéro de téléphone invalide"}`))
	}, "")

	_, err := client.SendAnalysis(context.Background(), "a1")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := ServerMessage(err); got != "Numéro de téléphone invalide" {
		t.Fatalf("ServerMessage() = %q, want verbatim server text", got)
	}
	if IsTransient(err) {
		t.Fatal("validation errors must not be transient")
	}
}

func TestClientNetworkFailureIsUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client, err := NewClient(serverURL, time.Second, nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Stats(context.Background())
	if !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
	if !IsTransient(err) {
		t.Fatal("connection failures should be transient")
	}
}

func TestClientTokenRejectionFiresSessionInvalidHandler(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":"Token expired"}`))
	}, "stale")

	var invalidatedWith string
	client.SetSessionInvalidHandler(func(reason string) {
		invalidatedWith = reason
	})

	_, err := client.Stats(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if invalidatedWith != "Token expired" {
		t.Fatalf("session invalid handler reason = %q, want %q", invalidatedWith, "Token expired")
	}
}

func TestClientNonTokens401DoesNotInvalidate(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":"Mot de passe incorrect"}`))
	}, "")

	invalidated := false
	client.SetSessionInvalidHandler(func(string) { invalidated = true })

	if _, _, err := client.Login(context.Background(), "a@b.mr", "wrong"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if invalidated {
		t.Fatal("a credential failure must not tear down the session")
	}
}

func TestClientPrepareBatchPayload(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/whatsapp/batch/prepare" {
			t.Errorf("path = %s, want /whatsapp/batch/prepare", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"validMessages":[{"analysisId":"a1","patientName":"Mariem","formattedPhone":"+22241234567","analysisType":"blood","pdfFilename":"r.pdf","retryCount":0}],"invalidMessages":[{"analysisId":"a2","patientName":"Sidi","originalPhone":"12345","formattedPhone":"+22212345","isValidPhone":false,"status":"pending"}],"summary":{"totalFound":2,"validForSending":1}}}`))
	}, "")

	preview, err := client.PrepareBatch(context.Background(), []string{"a1", "a2"})
	if err != nil {
		t.Fatalf("PrepareBatch() error = %v", err)
	}

	ids, ok := gotBody["analysisIds"].([]any)
	if !ok || len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Fatalf("analysisIds = %v, want [a1 a2]", gotBody["analysisIds"])
	}
	if len(preview.ValidMessages) != 1 || preview.ValidMessages[0].AnalysisID != "a1" {
		t.Fatalf("validMessages = %+v", preview.ValidMessages)
	}
	if len(preview.InvalidMessages) != 1 || preview.InvalidMessages[0].Reason() != domain.ReasonInvalidPhone {
		t.Fatalf("invalidMessages = %+v", preview.InvalidMessages)
	}
	if preview.Summary.TotalFound != 2 || preview.Summary.ValidForSending != 1 {
		t.Fatalf("summary = %+v", preview.Summary)
	}
}

func TestClientConfirmBatchPayload(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"queuedSuccessfully":1}}`))
	}, "")

	outcome, err := client.ConfirmBatch(context.Background(), domain.BatchConfirmation{
		AnalysisIDs: []string{"a1", "a2", "a3"},
		SelectedIDs: []string{"a1"},
	})
	if err != nil {
		t.Fatalf("ConfirmBatch() error = %v", err)
	}
	if outcome.QueuedSuccessfully != 1 {
		t.Fatalf("queuedSuccessfully = %d, want 1", outcome.QueuedSuccessfully)
	}

	ids, _ := gotBody["analysisIds"].([]any)
	selected, _ := gotBody["selectedIds"].([]any)
	if len(ids) != 3 || len(selected) != 1 || selected[0] != "a1" {
		t.Fatalf("payload = %v", gotBody)
	}
	if gotBody["customMessage"] != "" {
		t.Fatalf("customMessage = %v, want empty string", gotBody["customMessage"])
	}
}

func TestClientConfirmBatchRejectsEmptySelectionWithoutRequest(t *testing.T) {
	t.Parallel()

	requests := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
	}, "")

	_, err := client.ConfirmBatch(context.Background(), domain.BatchConfirmation{
		AnalysisIDs: []string{"a1"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if requests != 0 {
		t.Fatalf("requests = %d, want 0 (rejected before any network call)", requests)
	}
}

func TestClientCreateAnalysisMultipart(t *testing.T) {
	t.Parallel()

	var gotContentType, gotName string
	var gotFile []byte
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotName = r.FormValue("patientName")
		file, _, err := r.FormFile("pdfFile")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer file.Close()
			buf := make([]byte, 16)
			n, _ := file.Read(buf)
			gotFile = buf[:n]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"analysis":{"id":"a9","patientName":"Mariem Vall","patientPhone":"+22241234567","analysisType":"blood","status":"pending","retryCount":0,"pdfFilename":"r.pdf","createdAt":"2026-08-01T10:00:00Z"}}}`))
	}, "")

	created, err := client.CreateAnalysis(context.Background(), domain.CreateAnalysis{
		PatientName:  "Mariem Vall",
		PatientPhone: "41234567",
		AnalysisType: "blood",
	}, "r.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("CreateAnalysis() error = %v", err)
	}

	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Fatalf("Content-Type = %q, want multipart", gotContentType)
	}
	if gotName != "Mariem Vall" {
		t.Fatalf("patientName = %q", gotName)
	}
	if string(gotFile) != "%PDF-1.4" {
		t.Fatalf("file content = %q", gotFile)
	}
	if created.ID != "a9" || created.Status != domain.StatusPending {
		t.Fatalf("created = %+v", created)
	}
}

func TestClientEnvelopeFailureBecomesValidation(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error":"Analyse introuvable"}`))
	}, "")

	err := client.DeleteAnalysis(context.Background(), "gone")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := ServerMessage(err); got != "Analyse introuvable" {
		t.Fatalf("ServerMessage() = %q", got)
	}
}
