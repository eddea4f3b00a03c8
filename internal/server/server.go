package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/Mohit-Baraiya11/DPR/internal/api/v1"
	"github.com/Mohit-Baraiya11/DPR/internal/config"
	"github.com/Mohit-Baraiya11/DPR/internal/pipeline"
	"github.com/Mohit-Baraiya11/DPR/internal/service/excel"
	"github.com/Mohit-Baraiya11/DPR/internal/service/oracle"
	"github.com/Mohit-Baraiya11/DPR/internal/store"
)

// Server HTTP服务器
type Server struct {
	router *gin.Engine
	http   *http.Server
	store  *store.Store
	v1     *v1.Handler
	logger *zap.Logger
}

// NewServer 创建服务器
func NewServer(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Server, error) {
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 初始化数据目录
	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		return nil, err
	}

	sqliteStore, err := store.New(config.DBPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	settings, err := sqliteStore.LoadSettings(config.DefaultSettings(cfg))
	if err != nil {
		sqliteStore.Close()
		return nil, err
	}

	sheets, err := excel.NewWorkbooks(config.SheetsDir(dataDir))
	if err != nil {
		sqliteStore.Close()
		return nil, err
	}

	interpreter, answerer := NewOracle(ctx, cfg.Oracle, logger)

	coordinator := pipeline.NewCoordinator(sheets, sqliteStore, interpreter, pipeline.Options{
		TrackingSuffix: cfg.Sheet.TrackingSuffix,
		LogSheet:       cfg.Sheet.LogSheet,
		Unit:           cfg.Sheet.QuantityUnit,
		WIPColor:       cfg.Sheet.WIPColor,
		COMColor:       cfg.Sheet.COMColor,
		DateFormat:     cfg.Sheet.DateFormat,
	}, logger.Named("pipeline"))

	handler := v1.NewHandler(v1.Deps{
		Config:      cfg,
		DataDir:     dataDir,
		Store:       sqliteStore,
		Sheets:      sheets,
		Coordinator: coordinator,
		Answerer:    answerer,
		Settings:    settings,
		Logger:      logger.Named("api"),
	})

	s := &Server{
		router: gin.New(),
		store:  sqliteStore,
		v1:     handler,
		logger: logger,
	}
	s.setupRoutes(cfg.Server.AllowedOrigins)

	return s, nil
}

// NewOracle 根据配置构建带重试的语言理解客户端；未配置时返回不可用实现
func NewOracle(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (oracle.Interpreter, oracle.Answerer) {
	var (
		interpreter oracle.Interpreter = oracle.Unavailable{}
		answerer    oracle.Answerer    = oracle.Unavailable{}
	)

	switch {
	case cfg.Provider == "none":
		logger.Info("language oracle disabled")
	case cfg.APIKey == "":
		logger.Warn("no Gemini API key configured; updates will fail until one is set")
	default:
		client, err := oracle.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			logger.Error("failed to create Gemini client", zap.Error(err))
			break
		}
		interpreter, answerer = client, client
	}

	retrier := oracle.NewRetrier(oracle.Policy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff(),
		Timeout:    cfg.Timeout(),
	}, logger.Named("oracle"))

	return &oracle.RetryingInterpreter{Next: interpreter, Retrier: retrier},
		&oracle.RetryingAnswerer{Next: answerer, Retrier: retrier}
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(allowedOrigins []string) {
	s.router.Use(accessLog(s.logger), gin.Recovery())
	s.router.Use(cors(allowedOrigins))

	api := s.router.Group("/api")
	{
		s.v1.RegisterRoutes(api)
	}
}

// accessLog 请求日志
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func cors(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Handler 返回 HTTP 处理器（用于测试）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，阻塞直到 Shutdown
func (s *Server) Run(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收请求并关闭存储
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	return errors.Join(err, s.store.Close())
}

// GetStore 获取存储（用于测试）
func (s *Server) GetStore() *store.Store {
	return s.store
}
