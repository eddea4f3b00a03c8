package v1

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mohit-Baraiya11/DPR/internal/store"
)

// CreateSheetRequest 新建工作表请求
type CreateSheetRequest struct {
	Title string `json:"title" binding:"required"`
}

// ListSheets 可更新的工作表（排除日志表与数量追踪表）
// GET /api/spreadsheets/:id/sheets
func (h *Handler) ListSheets(c *gin.Context) {
	sheets, err := h.sheets.AvailableSheets(c.Param("id"), h.cfg.Sheet.LogSheet, h.cfg.Sheet.TrackingSuffix)
	if err != nil {
		respondError(c, errorStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "sheets": sheets})
}

// CreateSheet 新建工作表
// POST /api/spreadsheets/:id/sheets
func (h *Handler) CreateSheet(c *gin.Context) {
	var req CreateSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "title is required")
		return
	}

	name, err := h.sheets.CreateSheet(c.Param("id"), req.Title)
	if err != nil {
		respondError(c, errorStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "sheet": name})
}

// UploadSpreadsheet 上传 xlsx 作为工作簿（覆盖同名工作簿）
// POST /api/spreadsheets/:id/upload
func (h *Handler) UploadSpreadsheet(c *gin.Context) {
	id := c.Param("id")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file is required")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "failed to read upload")
		return
	}
	defer f.Close()

	// 读取文件内容并计算哈希
	content, err := io.ReadAll(f)
	if err != nil {
		respondError(c, http.StatusBadRequest, "failed to read upload")
		return
	}
	sum := sha256.Sum256(content)
	fileHash := hex.EncodeToString(sum[:])

	ctx := c.Request.Context()
	importID, err := h.store.CreateImportLog(ctx, id, fileHeader.Filename, fileHeader.Size, fileHash)
	if err != nil {
		h.logger.Warn("failed to create import log", zap.Error(err))
	}
	finish := func(total int, status, message string) {
		if importID == 0 {
			return
		}
		if err := h.store.CompleteImportLog(ctx, importID, total, status, message); err != nil {
			h.logger.Warn("failed to complete import log", zap.Int64("id", importID), zap.Error(err))
		}
	}

	if err := h.sheets.Import(id, bytes.NewReader(content)); err != nil {
		finish(0, store.ImportFailed, err.Error())
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadRequest
		}
		respondError(c, code, err.Error())
		return
	}

	sheets, err := h.sheets.AvailableSheets(id, h.cfg.Sheet.LogSheet, h.cfg.Sheet.TrackingSuffix)
	if err != nil {
		finish(0, store.ImportFailed, err.Error())
		respondError(c, errorStatus(err), err.Error())
		return
	}
	finish(len(sheets), store.ImportSuccess, "")

	h.logger.Info("spreadsheet uploaded",
		zap.String("spreadsheet", id),
		zap.String("filename", fileHeader.Filename),
		zap.Int("sheets", len(sheets)))
	c.JSON(http.StatusOK, gin.H{"status": "success", "sheets": sheets, "importId": importID})
}

// ListImports 列出工作簿的上传记录
// GET /api/spreadsheets/:id/imports
func (h *Handler) ListImports(c *gin.Context) {
	logs, err := h.store.ListImportLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to list import logs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to load import history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "imports": logs})
}
