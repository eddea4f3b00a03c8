package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// 上传状态
const (
	ImportProcessing = "processing"
	ImportSuccess    = "success"
	ImportFailed     = "failed"
)

// ImportLog 工作簿上传记录
type ImportLog struct {
	ID           int64      `json:"id"`
	Spreadsheet  string     `json:"spreadsheetId"`
	Filename     string     `json:"filename"`
	FileSize     int64      `json:"fileSize"`
	FileHash     string     `json:"fileHash"`
	TotalSheets  int        `json:"totalSheets"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// CreateImportLog 创建上传记录，返回 import_log_id
func (s *Store) CreateImportLog(ctx context.Context, spreadsheet, filename string, fileSize int64, fileHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_logs (spreadsheet, filename, file_size, file_hash, status)
		VALUES (?, ?, ?, ?, ?)
	`, spreadsheet, filename, fileSize, fileHash, ImportProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to create import log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get import log id: %w", err)
	}
	return id, nil
}

// CompleteImportLog 完成上传记录
func (s *Store) CompleteImportLog(ctx context.Context, id int64, totalSheets int, status, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_logs SET
			total_sheets = ?,
			status = ?,
			error_message = ?,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, totalSheets, status, errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}
	return nil
}

// ListImportLogs 列出工作簿的上传记录，最新的在前
func (s *Store) ListImportLogs(ctx context.Context, spreadsheet string) ([]ImportLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, spreadsheet, filename, file_size, file_hash, total_sheets,
			status, error_message, created_at, completed_at
		FROM import_logs
		WHERE spreadsheet = ?
		ORDER BY id DESC
	`, spreadsheet)
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	defer rows.Close()

	out := []ImportLog{}
	for rows.Next() {
		var (
			l         ImportLog
			completed sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.Spreadsheet, &l.Filename, &l.FileSize, &l.FileHash, &l.TotalSheets,
			&l.Status, &l.ErrorMessage, &l.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		if completed.Valid {
			t := completed.Time
			l.CompletedAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
