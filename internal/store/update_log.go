package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 5000
)

// AppendUpdateLogs 在一个事务中追加更新日志
func (s *Store) AppendUpdateLogs(ctx context.Context, entries []model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO update_logs (
				id, created_at, actor, location, spreadsheet, sheet, key_fields,
				column_label, status, delta, before_qty, cumulative, instruction, feedback, cell
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare update log insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			keys, err := json.Marshal(e.KeyFields)
			if err != nil {
				return fmt.Errorf("failed to encode key fields: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				e.ID, e.Timestamp.UnixNano(), e.Actor, e.Location, e.Spreadsheet, e.Sheet, string(keys),
				e.ColumnLabel, string(e.Status), e.Delta, e.Before, e.Cumulative, e.Instruction, e.Feedback, e.Cell,
			); err != nil {
				return fmt.Errorf("failed to insert update log %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// ListUpdateLogs 按条件查询更新日志，最新的在前
func (s *Store) ListUpdateLogs(ctx context.Context, filter model.LogFilter) ([]model.LogEntry, error) {
	where, args := logWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, actor, location, spreadsheet, sheet, key_fields,
			column_label, status, delta, before_qty, cumulative, instruction, feedback, cell
		FROM update_logs`+where+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query update logs: %w", err)
	}
	defer rows.Close()

	out := []model.LogEntry{}
	for rows.Next() {
		var (
			e       model.LogEntry
			created int64
			keys    string
			status  string
		)
		if err := rows.Scan(
			&e.ID, &created, &e.Actor, &e.Location, &e.Spreadsheet, &e.Sheet, &keys,
			&e.ColumnLabel, &status, &e.Delta, &e.Before, &e.Cumulative, &e.Instruction, &e.Feedback, &e.Cell,
		); err != nil {
			return nil, fmt.Errorf("failed to scan update log: %w", err)
		}
		e.Timestamp = time.Unix(0, created)
		e.Status = model.Status(status)
		if err := json.Unmarshal([]byte(keys), &e.KeyFields); err != nil {
			return nil, fmt.Errorf("failed to decode key fields of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountUpdateLogs 统计日志条数；spreadsheet 为空时统计全部
func (s *Store) CountUpdateLogs(ctx context.Context, spreadsheet string) (int, error) {
	where, args := logWhere(model.LogFilter{Spreadsheet: spreadsheet})

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM update_logs"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count update logs: %w", err)
	}
	return n, nil
}

func logWhere(filter model.LogFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if v := strings.TrimSpace(filter.Spreadsheet); v != "" {
		conds = append(conds, "spreadsheet = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(filter.Actor); v != "" {
		conds = append(conds, "actor = ? COLLATE NOCASE")
		args = append(args, v)
	}
	if v := strings.TrimSpace(filter.Location); v != "" {
		conds = append(conds, "location = ? COLLATE NOCASE")
		args = append(args, v)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
