package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

func sampleGrid() [][]string {
	return [][]string{
		{"", "", "", "", "", "Civil", "", "Finishing"},
		{"Location", "Sub Location", "Peta Location", "Category", "", "Brickwork", "Inner Plaster", "Outer Plaster", "", "Notes"},
		{"A building", "1ST", "101", "2 BHK", "", "", "", ""},
		{"A building", "1ST", "102", "2 BHK"},
		{"SPAN", "408", "103"},
	}
}

func TestBuildIndex_BreakpointAndFields(t *testing.T) {
	t.Parallel()

	idx, err := BuildIndex(sampleGrid())
	require.NoError(t, err)

	assert.Equal(t, 4, idx.Breakpoint)
	assert.Equal(t, []string{"Location", "Sub Location", "Peta Location", "Category"}, idx.Rows.Fields)

	require.Len(t, idx.Rows.Rows, 3)
	assert.Equal(t, 3, idx.Rows.Rows[0].Number)
	assert.Equal(t, 5, idx.Rows.Rows[2].Number)
	// 短行补空
	assert.Equal(t, []string{"SPAN", "408", "103", ""}, idx.Rows.Rows[2].Values)
}

func TestBuildIndex_ColumnsSkipLeadingGapAndStopAtFirstEmpty(t *testing.T) {
	t.Parallel()

	idx, err := BuildIndex(sampleGrid())
	require.NoError(t, err)

	require.Len(t, idx.Columns.Columns, 3)
	assert.Equal(t, model.Column{ID: "F", Label: "Brickwork", Category: "Civil"}, idx.Columns.Columns[0])
	assert.Equal(t, model.Column{ID: "G", Label: "Inner Plaster", Category: "Civil"}, idx.Columns.Columns[1])
	assert.Equal(t, model.Column{ID: "H", Label: "Outer Plaster", Category: "Finishing"}, idx.Columns.Columns[2])

	_, ok := idx.Columns.Lookup("J")
	assert.False(t, ok, "columns after the first trailing gap must be excluded")
}

func TestBuildIndex_EmptyRunStopsAtFourthEmptyRow(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"", ""},
		{"Location", "Peta Location", "", "Brickwork"},
		{"A building", "101"},
		{"", ""},
		{"  ", ""},
		{""},
		{},
		{"A building", "999"},
	}

	idx, err := BuildIndex(grid)
	require.NoError(t, err)

	require.Len(t, idx.Rows.Rows, 1)
	assert.Equal(t, 3, idx.Rows.Rows[0].Number)
}

func TestBuildIndex_ShortEmptyRunDoesNotStop(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{},
		{"Location", "Peta Location", "", "Brickwork"},
		{"A building", "101"},
		{"", ""},
		{"", ""},
		{"", ""},
		{"A building", "104"},
	}

	idx, err := BuildIndex(grid)
	require.NoError(t, err)

	require.Len(t, idx.Rows.Rows, 2)
	assert.Equal(t, 7, idx.Rows.Rows[1].Number)
}

func TestBuildIndex_NoEmptyHeaderCell(t *testing.T) {
	t.Parallel()

	idx, err := BuildIndex([][]string{
		{"Cat"},
		{"Location", "Peta Location"},
		{"A building", "101"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Breakpoint)
	assert.Empty(t, idx.Columns.Columns)
	assert.Len(t, idx.Rows.Rows, 1)
}

func TestBuildIndex_EmptySheet(t *testing.T) {
	t.Parallel()

	_, err := BuildIndex([][]string{{"only one row"}})
	var empty *model.EmptySheetError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, 1, empty.Rows)

	_, err = BuildIndex(nil)
	require.True(t, errors.As(err, &empty))
}

func TestBuildIndex_IsPure(t *testing.T) {
	t.Parallel()

	grid := sampleGrid()
	first, err := BuildIndex(grid)
	require.NoError(t, err)
	second, err := BuildIndex(grid)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
