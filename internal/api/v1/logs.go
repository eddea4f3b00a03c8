package v1

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/pipeline"
	"github.com/Mohit-Baraiya11/DPR/internal/service/excel"
	"github.com/Mohit-Baraiya11/DPR/internal/service/logquery"
)

const exportTTL = 10 * time.Minute

// LogQueryRequest 日志问答请求
type LogQueryRequest struct {
	Spreadsheet string `json:"spreadsheetId"`
	Query       string `json:"query"`
}

// LogExportRequest 日志导出请求
type LogExportRequest struct {
	Spreadsheet string `json:"spreadsheetId"`
	Actor       string `json:"actor"`
	Location    string `json:"location"`
}

// ListLogs 查询更新历史
// GET /api/logs?spreadsheetId=&actor=&location=&limit=
func (h *Handler) ListLogs(c *gin.Context) {
	filter := model.LogFilter{
		Spreadsheet: c.Query("spreadsheetId"),
		Actor:       c.Query("actor"),
		Location:    c.Query("location"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	entries, err := h.store.ListUpdateLogs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list update logs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to load logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "entries": entries})
}

// QueryLogs 基于更新日志回答问题
// POST /api/logs/query
func (h *Handler) QueryLogs(c *gin.Context) {
	var req LogQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := h.currentSettings()
	if req.Spreadsheet == "" {
		req.Spreadsheet = settings.DefaultSpreadsheet
	}

	entries, err := h.store.ListUpdateLogs(c.Request.Context(), model.LogFilter{
		Spreadsheet: req.Spreadsheet,
		Limit:       settings.LogMaxEntries,
	})
	if err != nil {
		h.logger.Error("failed to list update logs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to load logs")
		return
	}

	reducer := logquery.NewReducer(h.answerer, settings.LogMaxEntries, h.cfg.Logs.MaxBytes, settings.QuantityUnit)
	answer, err := reducer.Summarize(c.Request.Context(), entries, req.Query)
	if err != nil {
		h.logger.Warn("log query failed", zap.String("spreadsheet", req.Spreadsheet), zap.Error(err))
		respondError(c, errorStatus(err), pipeline.OracleFailureMessage)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "answer": answer})
}

// ExportLogs 导出更新日志为 xlsx，返回一次性下载地址
// POST /api/logs/export
func (h *Handler) ExportLogs(c *gin.Context) {
	var req LogExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	entries, err := h.store.ListUpdateLogs(c.Request.Context(), model.LogFilter{
		Spreadsheet: req.Spreadsheet,
		Actor:       req.Actor,
		Location:    req.Location,
		Limit:       5000,
	})
	if err != nil {
		h.logger.Error("failed to list update logs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to load logs")
		return
	}

	file, err := excel.ExportLogs(entries, h.currentSettings().QuantityUnit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to build export: "+err.Error())
		return
	}
	defer file.Close()

	exportDir := filepath.Join(h.dataDir, "exports")
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to prepare export dir")
		return
	}
	tempPath := filepath.Join(exportDir, fmt.Sprintf("dpr_logs_%d_%d.xlsx", time.Now().UnixNano(), os.Getpid()))
	if err := file.SaveAs(tempPath); err != nil {
		_ = os.Remove(tempPath)
		respondError(c, http.StatusInternalServerError, "failed to write export: "+err.Error())
		return
	}

	name := "update-logs.xlsx"
	if req.Spreadsheet != "" {
		name = req.Spreadsheet + "-update-logs.xlsx"
	}
	token := h.downloads.put(tempPath, name, exportTTL)

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"token":       token,
		"entries":     len(entries),
		"downloadUrl": "/api/logs/export/" + token,
	})
}

// DownloadLogs 下载导出的日志文件（一次性）
// GET /api/logs/export/:token
func (h *Handler) DownloadLogs(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		respondError(c, http.StatusBadRequest, "token is required")
		return
	}

	item, ok := h.downloads.get(token)
	if !ok {
		respondError(c, http.StatusNotFound, "download link has expired")
		return
	}

	if _, err := os.Stat(item.filePath); err != nil {
		h.downloads.delete(token)
		if !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("failed to stat export", zap.Error(err))
		}
		respondError(c, http.StatusNotFound, "export file is missing")
		return
	}

	c.FileAttachment(item.filePath, item.fileName)

	h.downloads.delete(token)
	_ = os.Remove(item.filePath)
}
