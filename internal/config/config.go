package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// AppConfig 应用配置
type AppConfig struct {
	Server  ServerConfig  `toml:"server"`
	Data    DataConfig    `toml:"data"`
	Oracle  OracleConfig  `toml:"oracle"`
	Sheet   SheetConfig   `toml:"sheet"`
	Logs    LogsConfig    `toml:"logs"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int      `toml:"port"`
	DevMode        bool     `toml:"dev_mode"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// OracleConfig 语言理解服务配置
type OracleConfig struct {
	Provider       string `toml:"provider"` // gemini | none
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	RetryBackoffMS int    `toml:"retry_backoff_ms"`
}

// Timeout 单次调用超时
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// RetryBackoff 重试退避基数
func (o OracleConfig) RetryBackoff() time.Duration {
	return time.Duration(o.RetryBackoffMS) * time.Millisecond
}

// SheetConfig 工作表写入配置
type SheetConfig struct {
	TrackingSuffix string `toml:"tracking_suffix"`
	LogSheet       string `toml:"log_sheet"`
	QuantityUnit   string `toml:"quantity_unit"`
	WIPColor       string `toml:"wip_color"`
	COMColor       string `toml:"com_color"`
	DateFormat     string `toml:"date_format"`
}

// LogsConfig 日志问答配置
type LogsConfig struct {
	MaxEntries int `toml:"max_entries"`
	MaxBytes   int `toml:"max_bytes"`
}

// LoggingConfig 日志输出配置
type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	PortSpecified bool
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           20262,
			AllowedOrigins: []string{"*"},
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Oracle: OracleConfig{
			Provider:       "gemini",
			Model:          "gemini-2.0-flash",
			TimeoutSeconds: 60,
			MaxRetries:     10,
			RetryBackoffMS: 500,
		},
		Sheet: SheetConfig{
			TrackingSuffix: " QTY",
			LogSheet:       "LOGS",
			QuantityUnit:   "m³",
			WIPColor:       "#F20000",
			COMColor:       "#00F200",
			DateFormat:     "2006-01-02",
		},
		Logs: LogsConfig{
			MaxEntries: 200,
			MaxBytes:   64 << 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultConfigPath 可执行文件同目录下的 config.toml
func DefaultConfigPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, "config.toml")
}

// LoadConfigWithInfo 从 config.toml 加载配置并返回元信息
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	return LoadConfigFile(DefaultConfigPath())
}

// LoadConfigFile 从指定路径加载配置；文件不存在时使用默认配置
func LoadConfigFile(configPath string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{Path: configPath}
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, info, err
		}
		// 配置文件不存在，使用默认配置
	} else {
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, err
		}
	}

	applyEnv(config)
	return config, info, nil
}

// applyEnv 环境变量覆盖
func applyEnv(config *AppConfig) {
	if v := os.Getenv("DPR_GEMINI_API_KEY"); v != "" {
		config.Oracle.APIKey = v
	}
	if config.Oracle.APIKey == "" {
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			config.Oracle.APIKey = v
		}
	}
	if v := os.Getenv("DPR_DATA_DIR"); v != "" {
		config.Data.DataDir = v
	}
}

// LoadConfig 从 config.toml 加载配置
// 配置文件位于可执行文件同目录下
func LoadConfig() (*AppConfig, error) {
	config, _, err := LoadConfigWithInfo()
	return config, err
}

// SaveConfig 保存配置到指定路径
func SaveConfig(config *AppConfig, configPath string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}

// ResolveDataDir 相对路径以可执行文件目录为基准
func ResolveDataDir(config *AppConfig) string {
	if filepath.IsAbs(config.Data.DataDir) {
		return config.Data.DataDir
	}
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, config.Data.DataDir)
}

// EnsureDataDir 确保数据目录及子目录存在
func EnsureDataDir(config *AppConfig) (string, error) {
	dataDir := ResolveDataDir(config)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	// 创建子目录
	subdirs := []string{"sheets", "exports"}
	for _, subdir := range subdirs {
		path := filepath.Join(dataDir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", err
		}
	}

	return dataDir, nil
}

// SheetsDir 工作簿目录
func SheetsDir(dataDir string) string {
	return filepath.Join(dataDir, "sheets")
}

// DBPath 审计数据库路径
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "dpr.db")
}
