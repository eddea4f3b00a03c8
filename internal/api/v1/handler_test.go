package v1

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Mohit-Baraiya11/DPR/internal/config"
	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/pipeline"
	"github.com/Mohit-Baraiya11/DPR/internal/service/excel"
	"github.com/Mohit-Baraiya11/DPR/internal/service/logquery"
	"github.com/Mohit-Baraiya11/DPR/internal/service/oracle"
	"github.com/Mohit-Baraiya11/DPR/internal/store"
)

type fixedInterpreter struct {
	raw string
}

func (f fixedInterpreter) Interpret(context.Context, string) (*oracle.Candidate, error) {
	return oracle.DecodeCandidate([]byte(f.raw))
}

type recordingAnswerer struct {
	reply  string
	prompt string
}

func (a *recordingAnswerer) Answer(_ context.Context, _ string, prompt string) (string, error) {
	a.prompt = prompt
	return a.reply, nil
}

const brickCandidate = `{"instructions":[{
	"key_fields":{"Location":["A building"],"Peta Location":["101"]},
	"work_terms":["brick"],
	"status_words":["completed"],
	"quantities":[20]
}]}`

type testServer struct {
	router   *gin.Engine
	handler  *Handler
	sheets   *excel.Workbooks
	store    *store.Store
	answerer *recordingAnswerer
}

func newTestServer(t *testing.T, raw string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Data.DataDir = dir

	sheets, err := excel.NewWorkbooks(config.SheetsDir(dir))
	require.NoError(t, err)
	st, err := store.New(config.DBPath(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, sheets.Create("site-a", "July.25"))
	require.NoError(t, sheets.Write("site-a", "July.25!A1", [][]any{
		{"", "", "", "Civil"},
		{"Location", "Peta Location", "", "Brickwork"},
		{"A building", "101"},
	}))

	settings := config.DefaultSettings(cfg)
	settings.DefaultSpreadsheet = "site-a"
	settings.DefaultSheet = "July.25"

	answerer := &recordingAnswerer{reply: "Ravi completed brickwork at A building 101."}
	h := NewHandler(Deps{
		Config:      cfg,
		DataDir:     dir,
		Store:       st,
		Sheets:      sheets,
		Coordinator: pipeline.NewCoordinator(sheets, st, fixedInterpreter{raw: raw}, pipeline.Options{}, nil),
		Answerer:    answerer,
		Settings:    settings,
	})

	router := gin.New()
	h.RegisterRoutes(router.Group("/api"))
	return &testServer{router: router, handler: h, sheets: sheets, store: st, answerer: answerer}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "gemini", status.OracleProvider)
	assert.Zero(t, status.TotalLogEntries)
}

func TestProcess_UsesDefaultSheetAndLogs(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodPost, "/api/process", map[string]string{
		"query": "A building 101 brickwork completed by 20",
		"actor": "Ravi",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, pipeline.StatusSuccess, report.Status)
	require.Len(t, report.Updates, 1)
	assert.Equal(t, "D3", report.Updates[0].Cell)

	w = s.do(t, http.MethodGet, "/api/logs?actor=ravi", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Entries []model.LogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs.Entries, 1)
	assert.Equal(t, "Brickwork", logs.Entries[0].ColumnLabel)
}

func TestProcess_Errors(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodPost, "/api/process", map[string]string{
		"spreadsheetId": "site-a",
		"sheetName":     "Nope",
		"query":         "anything",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/process", map[string]string{"sheetName": "July.25"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/logs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessStream_WritesSSE(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodPost, "/api/process/stream", map[string]string{
		"query": "A building 101 brickwork completed by 20",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var types []string
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
		types = append(types, evt.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "start", types[0])
	assert.Equal(t, "done", types[len(types)-1])
}

func TestSheets_ListCreateUpload(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodPost, "/api/spreadsheets/site-a/sheets", map[string]string{"title": "Aug.25"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/spreadsheets/site-a/sheets", map[string]string{"title": "Aug.25"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/spreadsheets/site-a/sheets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Aug.25")

	w = s.do(t, http.MethodGet, "/api/spreadsheets/missing/sheets", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Sept.25"))
	var xlsx bytes.Buffer
	require.NoError(t, f.Write(&xlsx))
	require.NoError(t, f.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "site-b.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/spreadsheets/site-b/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sheets, err := s.sheets.ListSheets("site-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sept.25"}, sheets)

	w = s.do(t, http.MethodGet, "/api/spreadsheets/site-b/imports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var imports struct {
		Imports []store.ImportLog `json:"imports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imports))
	require.Len(t, imports.Imports, 1)
	assert.Equal(t, "site-b.xlsx", imports.Imports[0].Filename)
	assert.Equal(t, store.ImportSuccess, imports.Imports[0].Status)
	assert.Equal(t, 1, imports.Imports[0].TotalSheets)
}

func TestQueryLogs(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodPost, "/api/logs/query", map[string]string{"query": "what did Ravi do?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), logquery.NoLogsMessage)

	w = s.do(t, http.MethodPost, "/api/process", map[string]string{
		"query": "A building 101 brickwork completed by 20",
		"actor": "Ravi",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/logs/query", map[string]string{"query": "what did Ravi do?"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, s.answerer.reply, resp.Answer)
	assert.Contains(t, s.answerer.prompt, "Site Engineer: Ravi")
}

func TestExportAndDownloadLogsOnce(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodPost, "/api/process", map[string]string{
		"query": "A building 101 brickwork completed by 20",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/logs/export", map[string]string{"spreadsheetId": "site-a"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token       string `json:"token"`
		DownloadURL string `json:"downloadUrl"`
		Entries     int    `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Entries)

	w = s.do(t, http.MethodGet, resp.DownloadURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows(excel.DefaultLogSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	require.NoError(t, f.Close())

	w = s.do(t, http.MethodGet, resp.DownloadURL, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	matches, err := filepath.Glob(filepath.Join(s.handler.dataDir, "exports", "*.xlsx"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSettings_GetAndPatch(t *testing.T) {
	s := newTestServer(t, brickCandidate)

	w := s.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got config.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "July.25", got.DefaultSheet)

	w = s.do(t, http.MethodPatch, "/api/settings", map[string]any{
		"updates": map[string]any{config.KeyDefaultSheet: "Aug.25", config.KeyLogMaxEntries: 50},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Aug.25", s.handler.currentSettings().DefaultSheet)
	assert.Equal(t, 50, s.handler.currentSettings().LogMaxEntries)

	persisted, err := s.store.LoadSettings(config.DefaultSettings(config.DefaultConfig()))
	require.NoError(t, err)
	assert.Equal(t, "Aug.25", persisted.DefaultSheet)

	w = s.do(t, http.MethodPatch, "/api/settings", map[string]any{
		"updates": map[string]any{"unknown": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Aug.25", s.handler.currentSettings().DefaultSheet)
}
