package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpredict/internal/apperrors"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIsMissing(t *testing.T) {
	for _, cell := range []string{"", "  ", "NA", "N/A", "NaN", "nan", "null", "NULL", "None", "<NA>", " NA "} {
		assert.True(t, IsMissing(cell), "cell %q", cell)
	}
	for _, cell := range []string{"0", "No", "none?", "x"} {
		assert.False(t, IsMissing(cell), "cell %q", cell)
	}
}

func TestParseNumber(t *testing.T) {
	v, err := ParseNumber(" 29.85 ")
	require.NoError(t, err)
	assert.InDelta(t, 29.85, v, 1e-12)

	_, err = ParseNumber("abc")
	assert.Error(t, err)

	_, err = ParseNumber("")
	assert.Error(t, err)

	assert.Equal(t, "1889.5", FormatNumber(1889.5))
	assert.Equal(t, "34", FormatNumber(34))
	assert.Equal(t, 0.123457, Round(0.1234567, 6))
}

func TestReadFileCSV(t *testing.T) {
	path := writeTemp(t, "in.csv", "customerID,tenure,Churn\nA,1,Yes\nB,,No\n")

	ds, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"customerID", "tenure", "Churn"}, ds.Columns)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, "B", ds.Value(1, "customerID"))
	assert.Equal(t, "", ds.Value(1, "tenure"))
	assert.Equal(t, path, ds.Source)
}

func TestReadFileSniffsTxtDelimiter(t *testing.T) {
	path := writeTemp(t, "in.txt", "a;b;c\n1;2;3\n")

	ds, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ds.Columns)
	assert.Equal(t, "3", ds.Value(0, "c"))
}

func TestReadFileTSV(t *testing.T) {
	path := writeTemp(t, "in.tsv", "a\tb\n1\t2\n")

	ds, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2", ds.Value(0, "b"))
}

func TestReadFileRejectsSpreadsheets(t *testing.T) {
	path := writeTemp(t, "in.xlsx", "binary")

	_, err := ReadFile(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDatasetIO))
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestReadFileEmpty(t *testing.T) {
	path := writeTemp(t, "empty.csv", "")

	_, err := ReadFile(path)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDatasetIO))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	ds := NewDataset([]string{"id", "note"}, [][]string{{"1", "a,b"}, {"2", "plain"}})
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	require.NoError(t, WriteFile(ds, path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ds.Columns, back.Columns)
	assert.Equal(t, ds.Rows, back.Rows)
}

func TestProjectDropAppend(t *testing.T) {
	ds := NewDataset([]string{"a", "b", "c"}, [][]string{{"1", "2", "3"}})

	p, err := ds.Project([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"3", "1"}}, p.Rows)

	_, err = ds.Project([]string{"z"})
	assert.Error(t, err)

	d := ds.Drop("b", "unknown")
	assert.Equal(t, []string{"a", "c"}, d.Columns)

	other := NewDataset([]string{"c", "b", "a"}, [][]string{{"6", "5", "4"}})
	joined, err := ds.Append(other)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}}, joined.Rows)
	assert.Equal(t, [][]string{{"1", "2", "3"}}, ds.Rows)
}

func TestSetColumnAndCopy(t *testing.T) {
	ds := NewDataset([]string{"a"}, [][]string{{"1"}, {"2"}})
	cp := ds.Copy()

	require.NoError(t, cp.SetColumn("a", []string{"9", "8"}))
	require.NoError(t, cp.SetColumn("b", []string{"x", "y"}))
	assert.Error(t, cp.SetColumn("c", []string{"only one"}))

	assert.Equal(t, [][]string{{"1"}, {"2"}}, ds.Rows)
	assert.Equal(t, [][]string{{"9", "x"}, {"8", "y"}}, cp.Rows)
	assert.True(t, cp.Has("b"))
	assert.Equal(t, []string{"c"}, cp.Missing([]string{"a", "c"}))
}

func TestBatchProcessor(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {5}}
	bp := NewBatchProcessor(2)

	var starts, sizes []int
	err := bp.ProcessBatches(X, func(start int, batch [][]float64) error {
		starts = append(starts, start)
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, starts)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestValidator(t *testing.T) {
	dv := NewDataValidator()

	assert.NoError(t, dv.ValidateMatrix([][]float64{{1, 2}, {3, 4}}, []int{0, 1}))
	assert.Error(t, dv.ValidateMatrix([][]float64{{1, 2}, {3}}, []int{0, 1}))
	assert.Error(t, dv.ValidateMatrix(nil, nil))
	assert.Error(t, dv.ValidateLabels([]int{1, 1, 1}))
	assert.NoError(t, dv.ValidateLabels([]int{0, 1}))

	ds := NewDataset([]string{"a", "b"}, [][]string{{"1", "x"}, {"", "x"}, {"3", "y"}})
	stats := dv.GetDatasetStats(ds)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, ColumnStats{Name: "a", Missing: 1, Numeric: 2, Distinct: 2}, stats.Columns[0])
	assert.Equal(t, ColumnStats{Name: "b", Missing: 0, Numeric: 0, Distinct: 2}, stats.Columns[1])
}
