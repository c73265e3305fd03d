package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipgrab/internal/batch"
)

// mockBatchProcessor implements BatchProcessor for testing.
type mockBatchProcessor struct {
	mock.Mock
}

func (m *mockBatchProcessor) ProcessBatch(ctx context.Context, label string, items []batch.VideoRequest) batch.BatchResult {
	args := m.Called(ctx, label, items)
	return args.Get(0).(batch.BatchResult)
}

func (m *mockBatchProcessor) GetTaskStatus(ctx context.Context, taskID string) string {
	args := m.Called(ctx, taskID)
	return args.String(0)
}

func newTestHandlers(t *testing.T) (*Handlers, *mockBatchProcessor) {
	t.Helper()
	svc := &mockBatchProcessor{}
	return NewHandlers(svc, testLogger()), svc
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func postJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestProcessBatch_Success(t *testing.T) {
	h, svc := newTestHandlers(t)

	items := []batch.VideoRequest{
		{URL: "https://www.tiktok.com/@u/video/1", Platform: "tiktok"},
		{URL: "https://example.com/v", Platform: "myspace"},
	}
	svc.On("ProcessBatch", mock.Anything, "Sheet1", items).Return(batch.BatchResult{
		TaskID: "task-1",
		Results: []batch.ItemResult{
			{
				OriginalURL:    items[0].URL,
				StoredVideoURL: "https://storage.example/videos/a.mp4",
				StoredClipURL:  "https://storage.example/clips/a.gif",
				Status:         batch.ItemSuccess,
			},
			{
				OriginalURL: items[1].URL,
				Status:      batch.ItemFailed,
				Error:       "Unsupported platform: myspace",
			},
		},
	})

	req := postJSON(t, "/process-batch", map[string]any{
		"urls": []map[string]string{
			{"url": items[0].URL, "platform": "tiktok"},
			{"url": items[1].URL, "platform": "myspace"},
		},
		"sheet_name": "Sheet1",
	})
	rec := httptest.NewRecorder()

	h.ProcessBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)

	var resp ProcessBatchResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, 2, resp.TotalProcessed)
	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 2)
	require.NotNil(t, resp.Results[0].GIFURL)
	assert.Equal(t, "https://storage.example/clips/a.gif", *resp.Results[0].GIFURL)
	assert.Nil(t, resp.Results[0].Error)
	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, "Unsupported platform: myspace", *resp.Results[1].Error)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	failedItem := raw["results"].([]any)[1].(map[string]any)
	assert.Contains(t, failedItem, "video_url")
	assert.Nil(t, failedItem["video_url"])
	assert.Nil(t, failedItem["gif_url"])
}

func TestProcessBatch_PassesPlatformThrough(t *testing.T) {
	h, svc := newTestHandlers(t)

	want := []batch.VideoRequest{
		{URL: "https://youtube.com/shorts/x", Platform: "YouTube"},
		{URL: "https://vimeo.com/1", Platform: "Vimeo"},
	}
	svc.On("ProcessBatch", mock.Anything, "", want).Return(batch.BatchResult{TaskID: "t"})

	req := postJSON(t, "/process-batch", `{"urls":[
		{"url":"https://youtube.com/shorts/x","platform":"YouTube"},
		{"url":"https://vimeo.com/1","platform":"Vimeo"}
	]}`)
	rec := httptest.NewRecorder()

	h.ProcessBatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestProcessBatch_MissingPlatformFailsOnlyThatItem(t *testing.T) {
	h, svc := newTestHandlers(t)

	want := []batch.VideoRequest{
		{URL: "https://example.com/v", Platform: ""},
		{URL: "https://storage.googleapis.com/b/v.mp4", Platform: "gcs"},
	}
	svc.On("ProcessBatch", mock.Anything, "", want).Return(batch.BatchResult{
		TaskID: "t-mixed",
		Results: []batch.ItemResult{
			{OriginalURL: want[0].URL, Status: batch.ItemFailed, Error: "Unsupported platform: "},
			{OriginalURL: want[1].URL, Status: batch.ItemSuccess, StoredClipURL: "https://storage.example/clips/v.gif"},
		},
	})

	req := postJSON(t, "/process-batch", `{"urls":[
		{"url":"https://example.com/v"},
		{"url":"https://storage.googleapis.com/b/v.mp4","platform":"gcs"}
	]}`)
	rec := httptest.NewRecorder()

	h.ProcessBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)

	var resp ProcessBatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
}

func TestProcessBatch_EmptyList(t *testing.T) {
	h, svc := newTestHandlers(t)

	svc.On("ProcessBatch", mock.Anything, "", []batch.VideoRequest{}).Return(batch.BatchResult{TaskID: "t-empty"})

	req := postJSON(t, "/process-batch", `{"urls":[]}`)
	rec := httptest.NewRecorder()

	h.ProcessBatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"task_id":"t-empty","results":[],"total_processed":0,"successful":0,"failed":0}`,
		rec.Body.String())
}

func TestProcessBatch_InvalidJSON(t *testing.T) {
	h, svc := newTestHandlers(t)

	req := postJSON(t, "/process-batch", "not json")
	rec := httptest.NewRecorder()

	h.ProcessBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INVALID_JSON", resp.Code)
	svc.AssertNotCalled(t, "ProcessBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessBatch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing urls", `{"sheet_name":"Sheet1"}`},
		{"empty url", `{"urls":[{"url":"","platform":"tiktok"}]}`},
		{"missing url", `{"urls":[{"platform":"tiktok"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestHandlers(t)

			req := postJSON(t, "/process-batch", tt.body)
			rec := httptest.NewRecorder()

			h.ProcessBatch(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			err := json.NewDecoder(rec.Body).Decode(&resp)
			require.NoError(t, err)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			svc.AssertNotCalled(t, "ProcessBatch", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBatchWriteBudget(t *testing.T) {
	h := NewHandlers(&mockBatchProcessor{}, testLogger(), WithBatchBudget(3, 10*time.Minute))

	assert.Equal(t, writeSlack, h.batchWriteBudget(0))
	assert.Equal(t, 10*time.Minute+writeSlack, h.batchWriteBudget(3))
	assert.Equal(t, 20*time.Minute+writeSlack, h.batchWriteBudget(4))
	assert.Equal(t, 40*time.Minute+writeSlack, h.batchWriteBudget(12))

	unbounded := NewHandlers(&mockBatchProcessor{}, testLogger())
	assert.Zero(t, unbounded.batchWriteBudget(12))
}

// A batch longer than the server's WriteTimeout must still deliver its report.
func TestProcessBatch_WriteDeadlineCoversWholeBatch(t *testing.T) {
	items := []batch.VideoRequest{
		{URL: "https://storage.googleapis.com/b/1.mp4", Platform: "gcs"},
		{URL: "https://storage.googleapis.com/b/2.mp4", Platform: "gcs"},
		{URL: "https://storage.googleapis.com/b/3.mp4", Platform: "gcs"},
	}
	body := `{"urls":[
		{"url":"https://storage.googleapis.com/b/1.mp4","platform":"gcs"},
		{"url":"https://storage.googleapis.com/b/2.mp4","platform":"gcs"},
		{"url":"https://storage.googleapis.com/b/3.mp4","platform":"gcs"}
	]}`

	// Three items at concurrency one, each taking close to its timeout.
	slowService := func() *mockBatchProcessor {
		svc := &mockBatchProcessor{}
		svc.On("ProcessBatch", mock.Anything, "", items).
			Run(func(mock.Arguments) { time.Sleep(300 * time.Millisecond) }).
			Return(batch.BatchResult{TaskID: "slow-batch"})
		return svc
	}

	start := func(t *testing.T, h *Handlers) *httptest.Server {
		t.Helper()
		srv := httptest.NewUnstartedServer(NewRouter(h, testLogger(), DefaultConfig()))
		srv.Config.WriteTimeout = 100 * time.Millisecond
		srv.Start()
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("budgeted handler answers", func(t *testing.T) {
		h := NewHandlers(slowService(), testLogger(), WithBatchBudget(1, 150*time.Millisecond))
		srv := start(t, h)

		resp, err := srv.Client().Post(srv.URL+"/process-batch", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var out ProcessBatchResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, "slow-batch", out.TaskID)
	})

	t.Run("server timeout alone drops the report", func(t *testing.T) {
		h := NewHandlers(slowService(), testLogger())
		srv := start(t, h)

		resp, err := srv.Client().Post(srv.URL+"/process-batch", "application/json", strings.NewReader(body))
		if err == nil {
			defer resp.Body.Close()
			_, err = io.ReadAll(resp.Body)
		}
		assert.Error(t, err)
	})
}

func TestGetStatus_Success(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("GetTaskStatus", mock.Anything, "task-1").Return("completed")

	req := httptest.NewRequest(http.MethodGet, "/status/task-1", nil)
	req.SetPathValue("task_id", "task-1")
	rec := httptest.NewRecorder()

	h.GetStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, StatusResponse{TaskID: "task-1", Status: "completed"}, resp)
}

func TestGetStatus_Unknown(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("GetTaskStatus", mock.Anything, "nope").Return(batch.StatusUnknown)

	req := httptest.NewRequest(http.MethodGet, "/status/nope", nil)
	req.SetPathValue("task_id", "nope")
	rec := httptest.NewRecorder()

	h.GetStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unknown"`)
}

func TestGetStatus_MissingID(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/status/", nil)
	rec := httptest.NewRecorder()

	h.GetStatus(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "MISSING_TASK_ID", resp.Code)
}

func TestRouter_Integration(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("ProcessBatch", mock.Anything, "", mock.Anything).Return(batch.BatchResult{TaskID: "task-9"})
	svc.On("GetTaskStatus", mock.Anything, "task-9").Return("completed")

	cfg := DefaultConfig()
	cfg.APIPrefix = "/api/v1/"
	router := NewRouter(h, testLogger(), cfg)

	// Health stays at the root
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = postJSON(t, "/api/v1/process-batch", `{"urls":[{"url":"https://example.com/a","platform":"gcs"}]}`)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created ProcessBatchResponse
	err := json.NewDecoder(rec.Body).Decode(&created)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status/"+created.TaskID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed")

	// Unprefixed batch route is not registered
	req = postJSON(t, "/process-batch", `{"urls":[]}`)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/process-batch", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/process-batch", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Unknown origins get no CORS headers
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(interface{ Unwrap() http.ResponseWriter })
		assert.True(t, ok, "recorder must unwrap for http.ResponseController")
		writeError(w, http.StatusBadRequest, "bad", "VALIDATION_ERROR")
	}))

	req := httptest.NewRequest(http.MethodPost, "/process-batch", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "request served", entry["msg"])
	assert.Equal(t, float64(http.StatusBadRequest), entry["status"])
	assert.Equal(t, float64(rec.Body.Len()), entry["bytes"])
	assert.Equal(t, "/process-batch", entry["path"])
}

func TestTrustedHostMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name    string
		allowed []string
		host    string
		want    int
	}{
		{"wildcard", []string{"*"}, "anything.test", http.StatusOK},
		{"exact with port", []string{"api.example.com"}, "api.example.com:8000", http.StatusOK},
		{"case insensitive", []string{"API.example.com"}, "api.EXAMPLE.com", http.StatusOK},
		{"subdomain pattern", []string{"*.example.com"}, "clips.example.com", http.StatusOK},
		{"empty list allows", nil, "whatever", http.StatusOK},
		{"rejected", []string{"api.example.com"}, "evil.test", http.StatusBadRequest},
		{"suffix without dot", []string{"*.example.com"}, "badexample.com", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := TrustedHostMiddleware(tt.allowed)(ok)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Host = tt.host
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusBadRequest {
				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, "INVALID_HOST", resp.Code)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	// Create a handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "", normalizePrefix("/"))
	assert.Equal(t, "/api", normalizePrefix("api"))
	assert.Equal(t, "/api/v1", normalizePrefix("/api/v1/"))
}
