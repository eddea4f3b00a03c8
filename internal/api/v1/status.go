package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	OracleProvider  string `json:"oracleProvider"`  // gemini / none
	OracleModel     string `json:"oracleModel"`     // 模型名称
	DataDir         string `json:"dataDir"`         // 数据目录
	TotalLogEntries int    `json:"totalLogEntries"` // 更新日志总数
}

// Health 健康检查
// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	total, err := h.store.CountUpdateLogs(c.Request.Context(), "")
	if err != nil {
		h.logger.Warn("failed to count update logs", zap.Error(err))
	}

	c.JSON(http.StatusOK, StatusResponse{
		OracleProvider:  h.cfg.Oracle.Provider,
		OracleModel:     h.cfg.Oracle.Model,
		DataDir:         h.dataDir,
		TotalLogEntries: total,
	})
}
