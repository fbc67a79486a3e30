package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/LandRegistry/internal/blob"
	"github.com/JonMunkholm/LandRegistry/internal/config"
	"github.com/JonMunkholm/LandRegistry/internal/core"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
	"github.com/JonMunkholm/LandRegistry/internal/sheet/sheettest"
)

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: config.DriverMemory, BlobChunkSize: 128},
		Upload: config.UploadConfig{
			MaxFileSize:      1 << 20,
			MaxConcurrent:    2,
			MaxWaitTime:      time.Second,
			SheetConcurrency: 2,
			Timeout:          time.Minute,
			DefaultTopic:     "General",
		},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	blobs := blob.NewMemoryStore(cfg.Storage.BlobChunkSize)
	records := recordset.NewMemoryStore(func(ctx context.Context, id string) bool {
		_, err := blobs.Stat(ctx, id)
		return err == nil
	})
	srv := NewServer(core.NewService(blobs, records, cfg.Upload), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

// multipartBody builds an upload form. An empty filename omits the file part.
func multipartBody(t *testing.T, filename string, data []byte, topic string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	if topic != "" {
		require.NoError(t, mw.WriteField("topic", topic))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, srv *Server, filename string, data []byte, topic string) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, filename, data, topic)
	req := httptest.NewRequest(http.MethodPost, "/upload/excel_document", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func get(srv *Server, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func twoSheetWorkbook(t *testing.T) []byte {
	return sheettest.XLSX(t,
		sheettest.Fixture{Name: "Parcels", Rows: [][]any{
			{"Parcel", "Area"},
			{"P-1", 10},
			{"P-2", 20},
		}},
		sheettest.Fixture{Name: "Owners", Rows: [][]any{
			{"Owner", "Parcel"},
			{"Alice", "P-1"},
		}},
	)
}

func TestUpload_TwoSheets(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postUpload(t, srv, "land.xlsx", twoSheetWorkbook(t), "Survey")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Successfully processed 2 out of 2 sheets", resp.Message)
	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.RecordSets, 2)

	names := []string{resp.RecordSets[0].Name, resp.RecordSets[1].Name}
	assert.ElementsMatch(t, []string{"land.xlsx - Parcels", "land.xlsx - Owners"}, names)
	for _, rs := range resp.RecordSets {
		assert.Equal(t, "Survey", rs.Topic)
	}

	files := get(srv, "/excel/files")
	require.Equal(t, http.StatusOK, files.Code)
	var list []recordset.Summary
	require.NoError(t, json.Unmarshal(files.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	data := get(srv, "/data")
	require.Equal(t, http.StatusOK, data.Code)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(data.Body.Bytes(), &records))
	assert.Len(t, records, 3)
}

func TestUpload_DefaultTopic(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postUpload(t, srv, "land.xlsx", twoSheetWorkbook(t), "")
	require.Equal(t, http.StatusOK, rec.Code)

	topics := get(srv, "/excel/topics")
	require.Equal(t, http.StatusOK, topics.Code)
	var counts []recordset.TopicCount
	require.NoError(t, json.Unmarshal(topics.Body.Bytes(), &counts))
	require.Len(t, counts, 1)
	assert.Equal(t, "General", counts[0].Topic)
}

func TestUpload_MissingFile(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postUpload(t, srv, "", nil, "Survey")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "FILE003", resp.Code)
}

func TestUpload_NotMultipart(t *testing.T) {
	srv := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/upload/excel_document", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE003", decodeError(t, rec).Code)
}

func TestUpload_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 1024
	srv := newTestServer(t, cfg)

	rec := postUpload(t, srv, "big.xlsx", bytes.Repeat([]byte("x"), 2048), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)

	files := get(srv, "/excel/files")
	assert.JSONEq(t, `[]`, files.Body.String())
}

func TestUpload_BodyOverLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 1024
	srv := newTestServer(t, cfg)

	// Past the multipart allowance, so the body reader stops the parse.
	data := bytes.Repeat([]byte("x"), 1024+multipartOverhead+1)
	rec := postUpload(t, srv, "big.xlsx", data, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)

	files := get(srv, "/excel/files")
	assert.JSONEq(t, `[]`, files.Body.String())
}

func TestUpload_UnsupportedType(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postUpload(t, srv, "notes.csv", []byte("a,b\n1,2\n"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE002", decodeError(t, rec).Code)
}

func TestUpload_Unreadable(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postUpload(t, srv, "broken.xlsx", []byte("definitely not a zip"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "XLS001", decodeError(t, rec).Code)
}

func TestUpload_HTMLErrorPage(t *testing.T) {
	srv := newTestServer(t, testConfig())

	body, contentType := multipartBody(t, "", nil, "")
	req := httptest.NewRequest(http.MethodPost, "/upload/excel_document", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "FILE003")
}

func TestDownload_ReturnsOriginalBytes(t *testing.T) {
	srv := newTestServer(t, testConfig())
	original := twoSheetWorkbook(t)

	rec := postUpload(t, srv, "land.xlsx", original, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RecordSets)

	for _, rs := range resp.RecordSets {
		dl := get(srv, "/excel/download/"+rs.ID)
		require.Equal(t, http.StatusOK, dl.Code)
		assert.Equal(t, core.ContentTypeXLSX, dl.Header().Get("Content-Type"))
		assert.Contains(t, dl.Header().Get("Content-Disposition"), `filename=land.xlsx`)
		got, err := io.ReadAll(dl.Body)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(original, got), "downloaded bytes differ from upload")
	}
}

func TestDownload_OutlastsWriteTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RequestTimeout = time.Minute
	srv := newTestServer(t, cfg)
	original := twoSheetWorkbook(t)

	rec := postUpload(t, srv, "land.xlsx", original, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RecordSets)

	// A write timeout that has already expired when the handler runs.
	ts := httptest.NewUnstartedServer(srv.Router())
	ts.Config.WriteTimeout = time.Nanosecond
	ts.Start()
	defer ts.Close()

	res, err := ts.Client().Get(ts.URL + "/excel/download/" + resp.RecordSets[0].ID)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	got, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(original, got), "downloaded bytes differ from upload")
}

func TestGetFile(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postUpload(t, srv, "land.xlsx", twoSheetWorkbook(t), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	for _, sum := range resp.RecordSets {
		got := get(srv, "/excel/file/"+sum.ID)
		require.Equal(t, http.StatusOK, got.Code)
		var rs recordset.RecordSet
		require.NoError(t, json.Unmarshal(got.Body.Bytes(), &rs))
		assert.Equal(t, sum.ID, rs.ID)
		assert.Len(t, rs.Records, sum.RecordCount)
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, testConfig())

	for _, path := range []string{"/excel/file/nope", "/excel/download/nope"} {
		rec := get(srv, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "REC001", decodeError(t, rec).Code, path)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	srv := newTestServer(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, get(srv, "/excel/files").Code)
	assert.Equal(t, http.StatusForbidden, get(srv, "/excel/files", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/excel/files", "X-API-Key", "secret").Code)

	// The page and health check stay public.
	assert.Equal(t, http.StatusOK, get(srv, "/").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	srv := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)

	rec := get(srv, "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := get(srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUploadStatus(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := get(srv, "/upload/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status core.UploadLimiterStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 0, status.Active)
	assert.Equal(t, 2, status.MaxConcurrent)
}

func TestIndex(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postUpload(t, srv, "land.xlsx", twoSheetWorkbook(t), "Survey")
	require.Equal(t, http.StatusOK, rec.Code)

	page := get(srv, "/")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "nosniff", page.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, page.Header().Get("Content-Security-Policy"))

	body := page.Body.String()
	assert.Contains(t, body, `action="/upload/excel_document"`)
	assert.Contains(t, body, "land.xlsx - Parcels")
	assert.Contains(t, body, "Survey")
}
