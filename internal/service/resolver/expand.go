package resolver

import "github.com/Mohit-Baraiya11/DPR/internal/model"

type pairing struct {
	row      model.RowEntry
	column   model.Column
	quantity float64
}

// expand 一对多展开：
//   - 单个工作项：数量按行位置配对，不足时重复最后一个，多余的忽略
//   - 多个工作项：每行展开为每个工作项一条，数量按工作项位置配对（同样重复最后一个）
func expand(rows []model.RowEntry, columns []model.Column, quantities []float64) []pairing {
	if len(quantities) == 0 {
		quantities = []float64{0}
	}

	out := make([]pairing, 0, len(rows)*len(columns))
	if len(columns) == 1 {
		for i, row := range rows {
			out = append(out, pairing{row: row, column: columns[0], quantity: pick(quantities, i)})
		}
		return out
	}

	for _, row := range rows {
		for j, col := range columns {
			out = append(out, pairing{row: row, column: col, quantity: pick(quantities, j)})
		}
	}
	return out
}

func pick(values []float64, i int) float64 {
	if i >= len(values) {
		return values[len(values)-1]
	}
	return values[i]
}
