package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mohit-Baraiya11/DPR/internal/config"
	"github.com/Mohit-Baraiya11/DPR/internal/parser"
	"github.com/Mohit-Baraiya11/DPR/internal/pipeline"
	"github.com/Mohit-Baraiya11/DPR/internal/server"
	"github.com/Mohit-Baraiya11/DPR/internal/service/excel"
	"github.com/Mohit-Baraiya11/DPR/internal/store"
	"github.com/Mohit-Baraiya11/DPR/internal/util"
)

var (
	configPath string
	port       int
	devMode    bool
	dataDir    string
	verbose    bool

	sheetName string
	actor     string
	location  string

	cfg    *config.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dpr",
	Short: "DPR - 施工进度自然语言更新服务",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var (
			info config.LoadConfigInfo
			err  error
		)
		if configPath != "" {
			cfg, info, err = config.LoadConfigFile(configPath)
		} else {
			cfg, info, err = config.LoadConfigWithInfo()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 命令行参数覆盖配置
		if port > 0 && !info.PortSpecified {
			cfg.Server.Port = port
		}
		if devMode {
			cfg.Server.DevMode = true
			cfg.Logging.Development = true
		}
		if dataDir != "" {
			cfg.Data.DataDir = dataDir
		}

		logger, err = util.NewLogger(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE:  runServe,
}

var indexCmd = &cobra.Command{
	Use:   "index <spreadsheetId>",
	Short: "打印工作表的行列索引",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <spreadsheetId> <message>",
	Short: "对本地工作簿执行一条更新",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runResolve,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径 (默认为可执行文件目录下的 config.toml)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "服务端口 (config.toml 优先；仅当未显式配置 port 时生效)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "开发模式")
	rootCmd.PersistentFlags().StringVar(&dataDir, "dataDir", "", "数据目录 (覆盖配置文件)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")

	indexCmd.Flags().StringVar(&sheetName, "sheet", "", "工作表名称")
	_ = indexCmd.MarkFlagRequired("sheet")

	resolveCmd.Flags().StringVar(&sheetName, "sheet", "", "工作表名称")
	resolveCmd.Flags().StringVar(&actor, "actor", "", "现场工程师")
	resolveCmd.Flags().StringVar(&location, "location", "", "提交位置")
	_ = resolveCmd.MarkFlagRequired("sheet")

	rootCmd.AddCommand(serveCmd, indexCmd, resolveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr), zap.String("dataDir", config.ResolveDataDir(cfg)))
		errCh <- srv.Run(addr)
	}()

	select {
	case err := <-errCh:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openWorkbooks() (*excel.Workbooks, string, error) {
	dir, err := config.EnsureDataDir(cfg)
	if err != nil {
		return nil, "", err
	}
	sheets, err := excel.NewWorkbooks(config.SheetsDir(dir))
	return sheets, dir, err
}

func runIndex(cmd *cobra.Command, args []string) error {
	sheets, _, err := openWorkbooks()
	if err != nil {
		return err
	}

	rows, err := sheets.Read(args[0], sheetName)
	if err != nil {
		return err
	}
	idx, err := parser.BuildIndex(rows)
	if err != nil {
		return err
	}
	return printJSON(cmd, idx)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sheets, dir, err := openWorkbooks()
	if err != nil {
		return err
	}
	logs, err := store.New(config.DBPath(dir))
	if err != nil {
		return err
	}
	defer logs.Close()

	interpreter, _ := server.NewOracle(ctx, cfg.Oracle, logger)
	coordinator := pipeline.NewCoordinator(sheets, logs, interpreter, pipeline.Options{
		TrackingSuffix: cfg.Sheet.TrackingSuffix,
		LogSheet:       cfg.Sheet.LogSheet,
		Unit:           cfg.Sheet.QuantityUnit,
		WIPColor:       cfg.Sheet.WIPColor,
		COMColor:       cfg.Sheet.COMColor,
		DateFormat:     cfg.Sheet.DateFormat,
	}, logger)

	report, err := coordinator.Process(ctx, pipeline.Request{
		Spreadsheet: args[0],
		Sheet:       sheetName,
		Query:       strings.Join(args[1:], " "),
		Actor:       actor,
		Location:    location,
	})
	if perr := printJSON(cmd, report); perr != nil {
		return perr
	}
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
