package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mohit-Baraiya11/DPR/internal/pipeline"
)

// bindProcessRequest 解析请求体，缺省的工作簿/工作表取自设置
func (h *Handler) bindProcessRequest(c *gin.Context) (pipeline.Request, bool) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return req, false
	}

	settings := h.currentSettings()
	if req.Spreadsheet == "" {
		req.Spreadsheet = settings.DefaultSpreadsheet
	}
	if req.Sheet == "" {
		req.Sheet = settings.DefaultSheet
	}
	return req, true
}

// Process 处理一条自然语言更新
// POST /api/process
func (h *Handler) Process(c *gin.Context) {
	req, ok := h.bindProcessRequest(c)
	if !ok {
		return
	}

	report, err := h.coordinator.Process(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("process failed",
			zap.String("spreadsheet", req.Spreadsheet),
			zap.String("sheet", req.Sheet),
			zap.Error(err))
		c.JSON(errorStatus(err), report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ProcessStream 处理更新 (SSE 流式响应)
// POST /api/process/stream
func (h *Handler) ProcessStream(c *gin.Context) {
	req, ok := h.bindProcessRequest(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	for event := range h.coordinator.ProcessStream(c.Request.Context(), req) {
		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}

		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}
