package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/service/excel"
	"github.com/Mohit-Baraiya11/DPR/internal/service/oracle"
	"github.com/Mohit-Baraiya11/DPR/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// genai 依赖链在 init 时启动的统计 worker
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type scriptedInterpreter struct {
	raw    string
	err    error
	prompt string
}

func (s *scriptedInterpreter) Interpret(_ context.Context, prompt string) (*oracle.Candidate, error) {
	s.prompt = prompt
	if s.err != nil {
		return nil, s.err
	}
	return oracle.DecodeCandidate([]byte(s.raw))
}

type failingLogs struct{}

func (failingLogs) AppendUpdateLogs(context.Context, []model.LogEntry) error {
	return errors.New("disk full")
}

type fixture struct {
	sheets *excel.Workbooks
	logs   *store.Store
	oracle *scriptedInterpreter
	coord  *Coordinator
}

func newFixture(t *testing.T, raw string) *fixture {
	t.Helper()

	dir := t.TempDir()
	sheets, err := excel.NewWorkbooks(filepath.Join(dir, "sheets"))
	require.NoError(t, err)
	logs, err := store.New(filepath.Join(dir, "dpr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logs.Close() })

	require.NoError(t, sheets.Create("site-a", "July.25"))
	require.NoError(t, sheets.Write("site-a", "July.25!A1", [][]any{
		{"", "", "", "Civil", "Finishing"},
		{"Location", "Peta Location", "", "Brickwork", "Inner Plaster", "Outer Plaster"},
		{"A building", "101"},
		{"A building", "102"},
	}))

	interp := &scriptedInterpreter{raw: raw}
	coord := NewCoordinator(sheets, logs, interp, Options{}, nil)
	coord.now = func() time.Time { return time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC) }

	return &fixture{sheets: sheets, logs: logs, oracle: interp, coord: coord}
}

func request(query string) Request {
	return Request{Spreadsheet: "site-a", Sheet: "July.25", Query: query, Actor: "Ravi", Location: "site office"}
}

const brickworkCandidate = `{"instructions":[{
	"text":"A building 101 and 102 brickwork completed by 20",
	"key_fields":[{"name":"Location","values":["A building"]},{"name":"Peta Location","values":["101","102"]}],
	"work_terms":["brick"],
	"status_words":["completed"],
	"quantities":[20]
}]}`

func TestProcess_AppliesCumulativeUpdatesAndLogs(t *testing.T) {
	f := newFixture(t, brickworkCandidate)
	require.NoError(t, f.sheets.BatchMutate("site-a", []model.CellMutation{
		{Sheet: "July.25 QTY", Cell: "D3", Value: 5.0},
	}))

	report, err := f.coord.Process(context.Background(), request("A building 101 and 102 brickwork completed by 20"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Contains(t, f.oracle.prompt, `"label":"Brickwork"`)

	require.Len(t, report.Updates, 2)
	assert.Equal(t, "D3", report.Updates[0].Cell)
	assert.Equal(t, 3, report.Updates[0].Row)
	assert.Equal(t, "D", report.Updates[0].Column)
	assert.Equal(t, 25.0, report.Updates[0].Cumulative)
	assert.Equal(t, 20.0, report.Updates[1].Cumulative)
	assert.Equal(t, []string{
		"Location A building, Peta Location 101 has been updated to COM for Brickwork",
		"Location A building, Peta Location 102 has been updated to COM for Brickwork",
	}, report.Feedback)

	marker, err := f.sheets.Read("site-a", "July.25!D3")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"COM - 25 m³ - 2025-07-14"}}, marker)

	qty, err := f.sheets.Read("site-a", "July.25 QTY!D3:D4")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"25"}, {"20"}}, qty)

	entries, err := f.logs.ListUpdateLogs(context.Background(), model.LogFilter{Spreadsheet: "site-a"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	mirror, err := f.sheets.Read("site-a", "LOGS")
	require.NoError(t, err)
	assert.Len(t, mirror, 3)
}

func TestProcess_AmbiguousColumnIsRejectedWithoutWrites(t *testing.T) {
	f := newFixture(t, `{"instructions":[{
		"key_fields":{"Location":["A building"],"Peta Location":["101"]},
		"work_terms":["plaster"]
	}]}`)

	report, err := f.coord.Process(context.Background(), request("A building 101 plaster done"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, report.Status)
	assert.Empty(t, report.Updates)
	assert.Equal(t, []string{
		"Multiple matches found for 'plaster'. Please specify which one you mean: Inner Plaster, Outer Plaster.",
	}, report.Feedback)

	sheets, err := f.sheets.ListSheets("site-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"July.25"}, sheets)
}

func TestProcess_NoRowMatch(t *testing.T) {
	f := newFixture(t, `{"instructions":[{
		"key_fields":{"Location":["A building"],"Peta Location":["999"]},
		"work_terms":["brick"],
		"quantities":[20]
	}]}`)

	report, err := f.coord.Process(context.Background(), request("A building 999 brickwork by 20"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, report.Status)
	assert.Equal(t, []string{model.NoRowMatchMessage}, report.Feedback)
}

func TestProcess_MixedInstructionsKeepGoodOnes(t *testing.T) {
	f := newFixture(t, `{"instructions":[
		{"text":"bad","key_fields":{"Location":["A building"]},"work_terms":[]},
		{"text":"good","key_fields":{"Location":["A building"],"Peta Location":["102"]},"work_terms":["outer"],"quantities":[3]}
	]}`)

	report, err := f.coord.Process(context.Background(), request("two updates"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	require.Len(t, report.Updates, 1)
	assert.Equal(t, "F4", report.Updates[0].Cell)
	assert.Equal(t, model.StatusWIP, report.Updates[0].Status)
	require.Len(t, report.Feedback, 2)
	assert.Contains(t, report.Feedback[0], `Could not understand "bad"`)
}

func TestProcess_MalformedOracleOutputRejects(t *testing.T) {
	f := newFixture(t, "not json at all")

	report, err := f.coord.Process(context.Background(), request("garbage"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, report.Status)
	assert.Len(t, report.Feedback, 1)
}

func TestProcess_OracleFailureIsStructuredError(t *testing.T) {
	f := newFixture(t, "")
	f.oracle.err = &model.OracleFailure{Attempts: 11, Err: oracle.ErrTransient}

	report, err := f.coord.Process(context.Background(), request("anything"))
	var failure *model.OracleFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, OracleFailureMessage, report.Message)
}

func TestProcess_EmptySheetIsNoData(t *testing.T) {
	f := newFixture(t, brickworkCandidate)
	_, err := f.sheets.CreateSheet("site-a", "Blank")
	require.NoError(t, err)

	req := request("anything")
	req.Sheet = "Blank"
	report, err := f.coord.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, report.Status)
	assert.Equal(t, NoDataMessage, report.Message)
}

func TestProcess_InvalidRequest(t *testing.T) {
	f := newFixture(t, brickworkCandidate)

	report, err := f.coord.Process(context.Background(), Request{Spreadsheet: "site-a"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, StatusError, report.Status)
}

func TestProcess_MissingSheetIsError(t *testing.T) {
	f := newFixture(t, brickworkCandidate)

	req := request("anything")
	req.Sheet = "Nope"
	report, err := f.coord.Process(context.Background(), req)
	var notFound *excel.SheetNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, StatusError, report.Status)
}

func TestProcess_LogFailureStillReportsAppliedCells(t *testing.T) {
	f := newFixture(t, brickworkCandidate)
	coord := NewCoordinator(f.sheets, failingLogs{}, f.oracle, Options{}, nil)

	report, err := coord.Process(context.Background(), request("A building 101 and 102 brickwork completed by 20"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "disk full")
}

func TestProcessStream_EmitsStagesAndCloses(t *testing.T) {
	f := newFixture(t, brickworkCandidate)

	var types, stages []string
	var last ProgressEvent
	for evt := range f.coord.ProcessStream(context.Background(), request("A building 101 brickwork completed by 20")) {
		types = append(types, evt.Type)
		if evt.Type == "stage" {
			stages = append(stages, evt.Message)
		}
		last = evt
	}

	assert.Equal(t, "start", types[0])
	assert.Equal(t, []string{"read", "index", "interpret", "resolve", "apply", "log"}, stages)
	require.Equal(t, "done", last.Type)
	report, ok := last.Data.(*Report)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, report.Status)
}

func TestProcessStream_ErrorEvent(t *testing.T) {
	f := newFixture(t, "")
	f.oracle.err = &model.OracleFailure{Attempts: 1, Err: oracle.ErrUnavailable}

	var last ProgressEvent
	for evt := range f.coord.ProcessStream(context.Background(), request("anything")) {
		last = evt
	}
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, OracleFailureMessage, last.Message)
}
