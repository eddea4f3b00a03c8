package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UpdateSettingsRequest 更新设置请求
type UpdateSettingsRequest struct {
	// 使用 map 允许部分更新
	Updates map[string]any `json:"updates"`
}

// GetSettings 获取运行期设置
// GET /api/settings
func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.currentSettings())
}

// UpdateSettings 部分更新运行期设置并持久化
// PATCH /api/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	updates := make(map[string]string, len(req.Updates))
	for key, value := range req.Updates {
		switch v := value.(type) {
		case string:
			updates[key] = v
		case float64:
			updates[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			updates[key] = strconv.FormatBool(v)
		default:
			respondError(c, http.StatusBadRequest, "unsupported value for "+key)
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.settings.Apply(updates)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.SaveSettings(next); err != nil {
		h.logger.Error("failed to save settings", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to save settings")
		return
	}
	h.settings = next

	c.JSON(http.StatusOK, next)
}
