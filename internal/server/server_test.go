package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasage-io/datasage/internal/config"
	"github.com/datasage-io/datasage/internal/logger"
	"github.com/datasage-io/datasage/internal/session"
)

const salesCSV = "Date,Region,Sales\n" +
	"2024-01-01,East,100.5\n" +
	"2024-01-02,West,250.25\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	log := logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
	sessions := session.NewManager(cfg, log)
	t.Cleanup(func() { sessions.Close() })
	return New(cfg, log, sessions)
}

func multipartCSV(t *testing.T, filename, contents string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, srv *Server) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartCSV(t, "sales.csv", salesCSV)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Upload(t *testing.T) {
	srv := newTestServer(t)

	rec := doUpload(t, srv)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var info session.DatasetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "sales.csv", info.Name)
	assert.Equal(t, 2, info.RowCount)
	assert.Len(t, info.Columns, 3)
}

func TestServer_UploadRejectsNonCSV(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartCSV(t, "data.xlsx", "not a csv")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_input")
}

func TestServer_QueryWithoutDataset(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"total sales by region"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_dataset")
}

func TestServer_QueryFlow(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, doUpload(t, srv).Code)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"total sales by region"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var answer session.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "rule", string(answer.Origin))
	assert.Contains(t, answer.SQL, `SUM("sales")`)
	require.NotNil(t, answer.Result)
	assert.Len(t, answer.Result.Rows, 2)
}

func TestServer_QueryBadBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_VisualizeFromBody(t *testing.T) {
	srv := newTestServer(t)

	payload := `{"columns":["region","count"],"rows":[{"region":"east","count":5},{"region":"west","count":9}]}`
	req := httptest.NewRequest(http.MethodPost, "/visualize", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Charts []map[string]any `json:"charts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Charts, 1)
	assert.Equal(t, "bar", resp.Charts[0]["family"])
}

func TestServer_VisualizeUsesLastResult(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, doUpload(t, srv).Code)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"total sales by region"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/visualize", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"charts"`)
}

func TestServer_Export(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, doUpload(t, srv).Code)

	// Export before any query is an error.
	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"total sales by region"}`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/export", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "region,sum_sales\n"))
}

func TestServer_SessionIsolation(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, doUpload(t, srv).Code)

	// The default session has a dataset; a named session does not.
	req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
	req.Header.Set("X-Session-Id", "other")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/dataset", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Dataset(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusCreated, doUpload(t, srv).Code)

	req = httptest.NewRequest(http.MethodGet, "/dataset", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"row_count":2`)
}