// Package v1 HTTP API：更新请求、工作表、日志与设置。
package v1

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mohit-Baraiya11/DPR/internal/config"
	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/pipeline"
	"github.com/Mohit-Baraiya11/DPR/internal/service/excel"
	"github.com/Mohit-Baraiya11/DPR/internal/service/oracle"
	"github.com/Mohit-Baraiya11/DPR/internal/store"
)

// Deps Handler 依赖
type Deps struct {
	Config      *config.AppConfig
	DataDir     string
	Store       *store.Store
	Sheets      *excel.Workbooks
	Coordinator *pipeline.Coordinator
	Answerer    oracle.Answerer
	Settings    config.Settings
	Logger      *zap.Logger
}

// Handler V1 API 处理器
type Handler struct {
	cfg         *config.AppConfig
	dataDir     string
	store       *store.Store
	sheets      *excel.Workbooks
	coordinator *pipeline.Coordinator
	answerer    oracle.Answerer
	downloads   *exportDownloadStore
	logger      *zap.Logger

	mu       sync.RWMutex
	settings config.Settings
}

// NewHandler 创建 V1 API 处理器
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	answerer := d.Answerer
	if answerer == nil {
		answerer = oracle.Unavailable{}
	}
	return &Handler{
		cfg:         d.Config,
		dataDir:     d.DataDir,
		store:       d.Store,
		sheets:      d.Sheets,
		coordinator: d.Coordinator,
		answerer:    answerer,
		downloads:   newExportDownloadStore(),
		logger:      logger,
		settings:    d.Settings,
	}
}

// RegisterRoutes 注册 V1 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/health", h.Health)
	router.GET("/status", h.GetStatus)

	// 工作簿与工作表
	router.POST("/spreadsheets/:id/upload", h.UploadSpreadsheet)
	router.GET("/spreadsheets/:id/sheets", h.ListSheets)
	router.POST("/spreadsheets/:id/sheets", h.CreateSheet)
	router.GET("/spreadsheets/:id/imports", h.ListImports)

	// 更新请求
	router.POST("/process", h.Process)
	router.POST("/process/stream", h.ProcessStream)

	// 更新日志
	router.GET("/logs", h.ListLogs)
	router.POST("/logs/query", h.QueryLogs)
	router.POST("/logs/export", h.ExportLogs)
	router.GET("/logs/export/:token", h.DownloadLogs)

	// 运行期设置
	router.GET("/settings", h.GetSettings)
	router.PATCH("/settings", h.UpdateSettings)
}

func (h *Handler) currentSettings() config.Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"status": pipeline.StatusError, "message": message})
}

// errorStatus 把领域错误映射为 HTTP 状态码
func errorStatus(err error) int {
	var (
		sheetNotFound *excel.SheetNotFoundError
		oracleFailure *model.OracleFailure
	)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest), errors.Is(err, excel.ErrInvalidSpreadsheetID):
		return http.StatusBadRequest
	case errors.Is(err, excel.ErrSpreadsheetNotFound), errors.As(err, &sheetNotFound):
		return http.StatusNotFound
	case errors.Is(err, excel.ErrSheetExists):
		return http.StatusConflict
	case errors.As(err, &oracleFailure), errors.Is(err, oracle.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
