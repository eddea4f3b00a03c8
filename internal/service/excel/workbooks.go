// Package excel 以本地 xlsx 工作簿实现表格存储。
//
// 每个 spreadsheet 对应 <dir>/<id>.xlsx。同一工作簿的读写在进程内串行化，
// 跨请求的“读取旧值再写入”不做协调。
package excel

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

var (
	ErrInvalidSpreadsheetID = errors.New("invalid spreadsheet id")
	ErrSpreadsheetNotFound  = errors.New("spreadsheet not found")
	ErrSheetExists          = errors.New("sheet already exists")
)

// SheetNotFoundError 工作表不存在
type SheetNotFoundError struct {
	Sheet string
}

func (e *SheetNotFoundError) Error() string {
	return fmt.Sprintf("sheet %q not found", e.Sheet)
}

var spreadsheetIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Workbooks xlsx 表格存储
type Workbooks struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWorkbooks 创建存储；dir 不存在时自动创建
func NewWorkbooks(dir string) (*Workbooks, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sheets dir: %w", err)
	}
	return &Workbooks{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir 工作簿目录
func (w *Workbooks) Dir() string {
	return w.dir
}

// Path 返回 spreadsheet 对应的文件路径
func (w *Workbooks) Path(id string) (string, error) {
	if !spreadsheetIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSpreadsheetID, id)
	}
	return filepath.Join(w.dir, id+".xlsx"), nil
}

func (w *Workbooks) lock(id string) func() {
	w.mu.Lock()
	l, ok := w.locks[id]
	if !ok {
		l = &sync.Mutex{}
		w.locks[id] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create 新建空工作簿，sheets 为初始工作表（为空时保留默认 Sheet1）
func (w *Workbooks) Create(id string, sheets ...string) error {
	path, err := w.Path(id)
	if err != nil {
		return err
	}
	defer w.lock(id)()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
			continue
		}
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", name, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Import 用上传的 xlsx 覆盖（或创建）工作簿
func (w *Workbooks) Import(id string, r io.Reader) error {
	path, err := w.Path(id)
	if err != nil {
		return err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("failed to open excel: %w", err)
	}
	defer f.Close()

	defer w.lock(id)()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *Workbooks) open(id string) (*excelize.File, error) {
	path, err := w.Path(id)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, id)
		}
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return f, nil
}

// update 打开工作簿，执行 fn，成功后保存
func (w *Workbooks) update(id string, fn func(f *excelize.File) error) error {
	defer w.lock(id)()

	f, err := w.open(id)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *Workbooks) view(id string, fn func(f *excelize.File) error) error {
	defer w.lock(id)()

	f, err := w.open(id)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

// Read 读取 "Sheet" 或 "Sheet!A1:C3" 范围内的单元格文本（原始值）
func (w *Workbooks) Read(id, rng string) ([][]string, error) {
	r, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}

	var grid [][]string
	err = w.view(id, func(f *excelize.File) error {
		if idx, _ := f.GetSheetIndex(r.Sheet); idx < 0 {
			return &SheetNotFoundError{Sheet: r.Sheet}
		}
		rows, err := f.GetRows(r.Sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("failed to read sheet %q: %w", r.Sheet, err)
		}
		grid = r.clip(rows)
		return nil
	})
	return grid, err
}

// Write 以范围左上角为锚点写入网格
func (w *Workbooks) Write(id, rng string, grid [][]any) error {
	r, err := ParseRange(rng)
	if err != nil {
		return err
	}

	return w.update(id, func(f *excelize.File) error {
		if idx, _ := f.GetSheetIndex(r.Sheet); idx < 0 {
			return &SheetNotFoundError{Sheet: r.Sheet}
		}
		for i, row := range grid {
			for j, v := range row {
				cell, err := excelize.CoordinatesToCellName(r.FromCol+j, r.FromRow+i)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(r.Sheet, cell, v); err != nil {
					return fmt.Errorf("failed to write %s!%s: %w", r.Sheet, cell, err)
				}
			}
		}
		return nil
	})
}

// BatchMutate 在一次保存中应用全部单元格写入；缺失的工作表会被创建
func (w *Workbooks) BatchMutate(id string, mutations []model.CellMutation) error {
	if len(mutations) == 0 {
		return nil
	}

	return w.update(id, func(f *excelize.File) error {
		styles := make(map[styleKey]int)
		for _, m := range mutations {
			if err := ensureSheet(f, m.Sheet); err != nil {
				return err
			}
			if err := f.SetCellValue(m.Sheet, m.Cell, m.Value); err != nil {
				return fmt.Errorf("failed to write %s!%s: %w", m.Sheet, m.Cell, err)
			}

			key := styleKey{fill: m.Fill, bold: m.Bold, centered: m.Centered}
			if key == (styleKey{}) {
				continue
			}
			styleID, ok := styles[key]
			if !ok {
				var err error
				styleID, err = f.NewStyle(key.style())
				if err != nil {
					return fmt.Errorf("failed to create style: %w", err)
				}
				styles[key] = styleID
			}
			if err := f.SetCellStyle(m.Sheet, m.Cell, m.Cell, styleID); err != nil {
				return fmt.Errorf("failed to style %s!%s: %w", m.Sheet, m.Cell, err)
			}
		}
		return nil
	})
}

// CreateSheet 新建工作表并返回其名称
func (w *Workbooks) CreateSheet(id, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("sheet title is required")
	}

	err := w.update(id, func(f *excelize.File) error {
		if idx, _ := f.GetSheetIndex(title); idx >= 0 {
			return fmt.Errorf("%w: %s", ErrSheetExists, title)
		}
		if _, err := f.NewSheet(title); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", title, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return title, nil
}

// ListSheets 列出全部工作表
func (w *Workbooks) ListSheets(id string) ([]string, error) {
	var sheets []string
	err := w.view(id, func(f *excelize.File) error {
		sheets = f.GetSheetList()
		return nil
	})
	return sheets, err
}

// AvailableSheets 列出可更新的工作表：排除日志表与数量追踪表
func (w *Workbooks) AvailableSheets(id, logSheet, trackingSuffix string) ([]string, error) {
	all, err := w.ListSheets(id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, name := range all {
		if strings.EqualFold(name, logSheet) {
			continue
		}
		if trackingSuffix != "" && strings.HasSuffix(name, trackingSuffix) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// AppendRows 追加到工作表末尾；工作表不存在时创建并写入表头
func (w *Workbooks) AppendRows(id, sheet string, header []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	return w.update(id, func(f *excelize.File) error {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
			}
		}

		existing, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		next := len(existing) + 1
		if len(existing) == 0 && len(header) > 0 {
			if err := setRow(f, sheet, 1, stringsToAny(header)); err != nil {
				return err
			}
			if style, err := f.NewStyle(headerStyle()); err == nil {
				_ = f.SetRowStyle(sheet, 1, 1, style)
			}
			next = 2
		}

		for i, row := range rows {
			if err := setRow(f, sheet, next+i, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureSheet(f *excelize.File, sheet string) error {
	if idx, _ := f.GetSheetIndex(sheet); idx >= 0 {
		return nil
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %q: %w", row, sheet, err)
	}
	return nil
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

type styleKey struct {
	fill     string
	bold     bool
	centered bool
}

func (k styleKey) style() *excelize.Style {
	s := &excelize.Style{}
	if k.fill != "" {
		s.Fill = excelize.Fill{Type: "pattern", Color: []string{k.fill}, Pattern: 1}
	}
	if k.bold {
		s.Font = &excelize.Font{Bold: true}
	}
	if k.centered {
		s.Alignment = &excelize.Alignment{Horizontal: "center", Vertical: "center"}
	}
	return s
}

func headerStyle() *excelize.Style {
	return &excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}
}
