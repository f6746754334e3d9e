package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/leadgen/internal/backend"
	"github.com/liliang-cn/leadgen/internal/domain"
	"github.com/liliang-cn/leadgen/internal/repository"
	"github.com/liliang-cn/leadgen/internal/service"
	"github.com/liliang-cn/leadgen/internal/session"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"healthy","service":"leadgen-backend"}`)
	})
	mux.HandleFunc("/api/analyze-url", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprintf(w, `{"success":true,"report_id":"r-1","data":{"url":%q,"title":"Acme","summary":"S","conversation_starters":["a","b"],"pain_points":[],"market_gaps":[]}}`, body.URL)
	})
	mux.HandleFunc("/api/analyze-pdf", func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"success":false,"error":"No file provided"}`)
			return
		}
		fmt.Fprintf(w, `{"success":true,"data":{"filename":%q,"metadata":{"num_pages":3},"summary":"S","conversation_starters":[],"pain_points":[],"market_gaps":[]}}`, header.Filename)
	})
	mux.HandleFunc("/api/generate-email", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content             string `json:"content"`
			ConversationStarter string `json:"conversation_starter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Content == "" || body.ConversationStarter == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"success":false,"error":"Content and conversation_starter are required"}`)
			return
		}
		fmt.Fprintf(w, `{"success":true,"data":{"subject":"Re: %s","body":"Hi"}}`, body.ConversationStarter)
	})
	mux.HandleFunc("/api/usage", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"usage":{"reports_generated":1,"limit":5,"tier":"free","reset_date":null}}`)
	})
	mux.HandleFunc("/api/reports", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"reports":[{"_id":"r-1","source_url":"https://acme.example","source_type":"url"}]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupRouter(t *testing.T, apiKey string) *gin.Engine {
	t.Helper()
	return setupRouterWithBackend(t, apiKey, fakeBackend(t).URL)
}

func setupRouterWithBackend(t *testing.T, apiKey, backendURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "leadgen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := backend.NewClient(backendURL, 5*time.Second, nil)
	sessions := session.NewManager(repository.NewStateRepository(db), nil)
	historyService := service.NewHistoryService(repository.NewReportRepository(db), client, sessions, time.Minute, nil)
	analysisService := service.NewAnalysisService(client, sessions, nil, historyService.Record)
	t.Cleanup(analysisService.Close)

	return SetupRouter(analysisService, historyService, client, RouterConfig{
		APIKey:        apiKey,
		AllowOrigins:  []string{"*"},
		MaxUploadSize: 1 << 20,
	})
}

func do(r http.Handler, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) domain.State {
	t.Helper()
	var state domain.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	return state
}

func waitForPhase(t *testing.T, r http.Handler, flow string, phase domain.Phase) domain.State {
	t.Helper()
	var state domain.State
	require.Eventually(t, func() bool {
		state = decodeState(t, do(r, http.MethodGet, "/api/flows/"+flow, nil, ""))
		return state.Phase == phase
	}, 5*time.Second, 10*time.Millisecond)
	return state
}

func pdfUpload(t *testing.T, filename, mediaType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if mediaType != "" {
		header.Set("Content-Type", mediaType)
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestHealth(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","backend":"healthy"}`, w.Body.String())
}

func TestSession(t *testing.T) {
	r := setupRouter(t, "")

	var first, second map[string]string
	require.NoError(t, json.Unmarshal(do(r, http.MethodGet, "/api/session", nil, "").Body.Bytes(), &first))
	require.NoError(t, json.Unmarshal(do(r, http.MethodGet, "/api/session", nil, "").Body.Bytes(), &second))

	assert.Regexp(t, `^session_\d+_[0-9a-z]{9}$`, first["session_id"])
	assert.Equal(t, first, second)
}

func TestURLFlow(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodPost, "/api/flows/url/submit", bytes.NewBufferString(`{"url":"  https://acme.example "}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, []domain.Phase{domain.PhaseSubmitting, domain.PhaseSuccess}, decodeState(t, w).Phase)

	state := waitForPhase(t, r, "url", domain.PhaseSuccess)
	assert.Equal(t, []string{"a", "b"}, state.Result.ConversationStarters)
	assert.Equal(t, "https://acme.example", state.Result.URL)
	assert.Equal(t, "r-1", state.Result.ReportID)

	var history struct {
		Reports []domain.Report `json:"reports"`
	}
	w = do(r, http.MethodGet, "/api/history", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Reports, 1)
	assert.Equal(t, "Acme", history.Reports[0].Title)

	w = do(r, http.MethodGet, "/api/history/"+history.Reports[0].ID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/flows/url/reset", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseIdle, decodeState(t, w).Phase)

	w = do(r, http.MethodPost, "/api/flows/url/reset", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestURLFlow_EmptyInput(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodPost, "/api/flows/url/submit", bytes.NewBufferString(`{"url":"   "}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)

	state := decodeState(t, w)
	assert.Equal(t, domain.PhaseFailed, state.Phase)
	assert.Equal(t, domain.ErrorKindValidation, state.Error.Kind)
	assert.Equal(t, "Please enter a URL", state.Error.Message)
}

func TestDocumentFlow(t *testing.T) {
	r := setupRouter(t, "")

	body, contentType := pdfUpload(t, "deck.pdf", "application/pdf", []byte("%PDF-1.4\n%%EOF"))
	w := do(r, http.MethodPost, "/api/flows/document/submit", body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code)

	state := waitForPhase(t, r, "document", domain.PhaseSuccess)
	assert.Equal(t, "deck.pdf", state.Result.Filename)
	assert.Equal(t, 3, state.Result.PageCount())
}

func TestDocumentFlow_SniffsGenericUpload(t *testing.T) {
	r := setupRouter(t, "")

	body, contentType := pdfUpload(t, "deck.pdf", "application/octet-stream", []byte("%PDF-1.4\n%%EOF"))
	w := do(r, http.MethodPost, "/api/flows/document/submit", body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code)
	waitForPhase(t, r, "pdf", domain.PhaseSuccess)
}

func TestDocumentFlow_DragAndDrop(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodPost, "/api/flows/document/drag", bytes.NewBufferString(`{"event":"enter"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"drag_state":"dragging"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/flows/document/drag", bytes.NewBufferString(`{"event":"hover"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType := pdfUpload(t, "notes.txt", "text/plain", []byte("hello"))
	w = do(r, http.MethodPost, "/api/flows/document/drop", body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code)

	state := decodeState(t, w)
	assert.Equal(t, domain.PhaseFailed, state.Phase)
	assert.Equal(t, "Please upload a PDF file", state.Error.Message)

	w = do(r, http.MethodPost, "/api/flows/document/drag", bytes.NewBufferString(`{"event":"leave"}`), "application/json")
	assert.JSONEq(t, `{"drag_state":"not_dragging"}`, w.Body.String())
}

func TestDocumentFlow_MissingFile(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodPost, "/api/flows/document/submit", bytes.NewBufferString("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownFlow(t *testing.T) {
	r := setupRouter(t, "")

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/flows/audio", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/flows/audio/reset", nil, "").Code)

	w := do(r, http.MethodPost, "/api/flows/url/drag", bytes.NewBufferString(`{"event":"enter"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelWithoutSubmission(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodPost, "/api/flows/url/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUsageAndReports(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodGet, "/api/usage", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":4`)

	w = do(r, http.MethodGet, "/api/reports?limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"_id":"r-1"`)
}

func TestUsage_UnlimitedTier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"usage":{"reports_generated":3,"limit":Infinity,"tier":"business","reset_date":null}}`)
	}))
	defer srv.Close()
	r := setupRouterWithBackend(t, "", srv.URL)

	w := do(r, http.MethodGet, "/api/usage", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Usage     domain.Usage `json:"usage"`
		Unlimited bool         `json:"unlimited"`
		Remaining *int         `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Unlimited)
	assert.Nil(t, body.Remaining)
	assert.Nil(t, body.Usage.Limit)
	assert.Equal(t, "business", body.Usage.Tier)
}

func TestDraftEmail(t *testing.T) {
	r := setupRouter(t, "")

	w := do(r, http.MethodPost, "/api/flows/url/submit", bytes.NewBufferString(`{"url":"https://acme.example"}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)
	waitForPhase(t, r, "url", domain.PhaseSuccess)

	var history struct {
		Reports []domain.Report `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(do(r, http.MethodGet, "/api/history", nil, "").Body.Bytes(), &history))
	require.Len(t, history.Reports, 1)
	target := "/api/history/" + history.Reports[0].ID + "/email"

	w = do(r, http.MethodPost, target, bytes.NewBufferString(`{"starter_index":1}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email":{"subject":"Re: b","body":"Hi"}}`, w.Body.String())

	w = do(r, http.MethodPost, target, bytes.NewBufferString(`{"starter_index":5}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, target, bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/history/missing/email", bytes.NewBufferString(`{"starter_index":0}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDraftEmail_BackendRejectsMissingStarter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/analyze-url":
			fmt.Fprint(w, `{"success":true,"data":{"url":"https://acme.example","summary":"S","conversation_starters":[""],"pain_points":[],"market_gaps":[]}}`)
		case "/api/generate-email":
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"success":false,"error":"Content and conversation_starter are required"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	r := setupRouterWithBackend(t, "", srv.URL)

	w := do(r, http.MethodPost, "/api/flows/url/submit", bytes.NewBufferString(`{"url":"https://acme.example"}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)
	waitForPhase(t, r, "url", domain.PhaseSuccess)

	var history struct {
		Reports []domain.Report `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(do(r, http.MethodGet, "/api/history", nil, "").Body.Bytes(), &history))
	require.Len(t, history.Reports, 1)

	w = do(r, http.MethodPost, "/api/history/"+history.Reports[0].ID+"/email", bytes.NewBufferString(`{"starter_index":0}`), "application/json")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Content and conversation_starter are required"}`, w.Body.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestDocumentFlow_UploadTooLarge(t *testing.T) {
	r := setupRouter(t, "")

	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 2<<20)...)
	body, contentType := pdfUpload(t, "big.pdf", "application/pdf", content)
	w := do(r, http.MethodPost, "/api/flows/document/submit", body, contentType)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, domain.PhaseIdle, decodeState(t, do(r, http.MethodGet, "/api/flows/document", nil, "")).Phase)

	// unknown length is cut off while the form is parsed
	body, contentType = pdfUpload(t, "big.pdf", "application/pdf", content)
	req := httptest.NewRequest(http.MethodPost, "/api/flows/document/submit", body)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, domain.PhaseIdle, decodeState(t, do(r, http.MethodGet, "/api/flows/document", nil, "")).Phase)
}

func TestAPIKeyRequired(t *testing.T) {
	r := setupRouter(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/session", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", nil, "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEvents(t *testing.T) {
	srv := httptest.NewServer(setupRouter(t, ""))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/flows/url/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: idle", strings.TrimSpace(line))

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: "))
	assert.Contains(t, line, `"phase":"idle"`)
}
