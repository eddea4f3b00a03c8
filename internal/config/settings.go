package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Settings 运行期可修改的设置，由 store 持久化
type Settings struct {
	DefaultSpreadsheet string `json:"defaultSpreadsheet"`
	DefaultSheet       string `json:"defaultSheet"`
	QuantityUnit       string `json:"quantityUnit"`
	LogMaxEntries      int    `json:"logMaxEntries"`
}

// 设置项在配置表中的键
const (
	KeyDefaultSpreadsheet = "default_spreadsheet"
	KeyDefaultSheet       = "default_sheet"
	KeyQuantityUnit       = "quantity_unit"
	KeyLogMaxEntries      = "log_max_entries"
)

// DefaultSettings 由启动配置推导出的初始设置
func DefaultSettings(cfg *AppConfig) Settings {
	return Settings{
		QuantityUnit:  cfg.Sheet.QuantityUnit,
		LogMaxEntries: cfg.Logs.MaxEntries,
	}
}

// Apply 应用一组键值更新；未知键或非法值返回错误且不修改原值
func (s Settings) Apply(updates map[string]string) (Settings, error) {
	out := s
	for key, value := range updates {
		value = strings.TrimSpace(value)
		switch key {
		case KeyDefaultSpreadsheet:
			out.DefaultSpreadsheet = value
		case KeyDefaultSheet:
			out.DefaultSheet = value
		case KeyQuantityUnit:
			if value == "" {
				return s, fmt.Errorf("%s must not be empty", key)
			}
			out.QuantityUnit = value
		case KeyLogMaxEntries:
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return s, fmt.Errorf("%s must be a positive integer", key)
			}
			out.LogMaxEntries = n
		default:
			return s, fmt.Errorf("unknown setting: %s", key)
		}
	}
	return out, nil
}

// Values 设置的键值形式
func (s Settings) Values() map[string]string {
	return map[string]string{
		KeyDefaultSpreadsheet: s.DefaultSpreadsheet,
		KeyDefaultSheet:       s.DefaultSheet,
		KeyQuantityUnit:       s.QuantityUnit,
		KeyLogMaxEntries:      strconv.Itoa(s.LogMaxEntries),
	}
}
