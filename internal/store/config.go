package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mohit-Baraiya11/DPR/internal/config"
)

// GetConfig 获取配置项
func (s *Store) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("config key not found: %s", key)
		}
		return "", err
	}
	return value, nil
}

// SetConfig 设置配置项
func (s *Store) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`, key, value, value)
	return err
}

// GetAllConfig 获取所有配置项
func (s *Store) GetAllConfig() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM config")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}

	return values, rows.Err()
}

// LoadSettings 读取持久化设置，缺失项沿用 defaults
func (s *Store) LoadSettings(defaults config.Settings) (config.Settings, error) {
	all, err := s.GetAllConfig()
	if err != nil {
		return defaults, fmt.Errorf("failed to load settings: %w", err)
	}

	updates := make(map[string]string)
	for key := range defaults.Values() {
		if v, ok := all[key]; ok {
			updates[key] = v
		}
	}
	settings, err := defaults.Apply(updates)
	if err != nil {
		return defaults, fmt.Errorf("invalid stored settings: %w", err)
	}
	return settings, nil
}

// SaveSettings 持久化全部设置
func (s *Store) SaveSettings(settings config.Settings) error {
	for key, value := range settings.Values() {
		if err := s.SetConfig(key, value); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	return nil
}
