package preprocessing

import (
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpredict/internal/data"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, Median(nil))

	values := []float64{3, 1}
	Median(values)
	assert.Equal(t, []float64{3, 1}, values)
}

func TestMostFrequentTieBreak(t *testing.T) {
	assert.Equal(t, "b", MostFrequent([]string{"c", "b", "c", "b", "a"}))
	assert.Equal(t, "x", MostFrequent([]string{"x", "x", "y"}))
}

func TestImputer(t *testing.T) {
	ds := data.NewDataset(
		[]string{"Contract", "tenure"},
		[][]string{{"Two year", "1"}, {"", "3"}, {"Month", ""}, {"Month", "x"}},
	)

	im := NewImputer([]string{"Contract"}, []string{"tenure"})
	require.NoError(t, im.FitTransform(ds))

	contract, _ := ds.Column("Contract")
	tenure, _ := ds.Column("tenure")
	assert.Equal(t, []string{"Two year", "Month", "Month", "Month"}, contract)
	assert.Equal(t, []string{"1", "3", "2", "2"}, tenure)
}

func TestEncoderDropFirstLayout(t *testing.T) {
	ds := data.NewDataset(
		[]string{"Contract", "tenure", "Partner"},
		[][]string{
			{"Two year", "1", "Yes"},
			{"Month-to-month", "5", "No"},
			{"One year", "2", "Yes"},
		},
	)

	enc := NewEncoder([]string{"tenure"}, []string{"Contract", "Partner"}, true)
	X, err := enc.FitTransform(ds)
	require.NoError(t, err)

	assert.Equal(t, []string{"tenure", "Contract_One year", "Contract_Two year", "Partner_Yes"}, enc.FeatureNames)
	assert.Equal(t, []float64{1, 0, 1, 1}, X[0])
	assert.Equal(t, []float64{5, 0, 0, 0}, X[1])
	assert.Equal(t, []float64{2, 1, 0, 1}, X[2])
}

func TestEncoderUnseenLevelIsZero(t *testing.T) {
	train := data.NewDataset([]string{"c"}, [][]string{{"a"}, {"b"}})
	enc := NewEncoder(nil, []string{"c"}, false)
	require.NoError(t, enc.Fit(train))

	X, err := enc.Transform(data.NewDataset([]string{"c"}, [][]string{{"z"}}))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}}, X)
}

func TestEncodeAll(t *testing.T) {
	ds := data.NewDataset(
		[]string{"tenure", "Contract"},
		[][]string{{"3", "Month-to-month"}, {"7", "Three year"}},
	)

	names, X, err := EncodeAll(ds, []string{"tenure"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tenure", "Contract_Month-to-month", "Contract_Three year"}, names)
	assert.Equal(t, [][]float64{{3, 1, 0}, {7, 0, 1}}, X)
}

func TestEncodeToManifest(t *testing.T) {
	ds := data.NewDataset(
		[]string{"Contract", "tenure", "gender"},
		[][]string{
			{"Month-to-month", "3", "Male"},
			{"Two year", "7", "Female"},
			{"Three year", "9", "Male"},
		},
	)
	manifest := []string{"tenure", "Contract_One year", "Contract_Two year"}

	X, report, err := EncodeToManifest(ds, []string{"tenure"}, manifest)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{3, 0, 0}, {7, 0, 1}, {9, 0, 0}}, X)
	assert.Equal(t, []string{"Contract_One year"}, report.Added)
	assert.ElementsMatch(t,
		[]string{"Contract_Month-to-month", "Contract_Three year", "gender_Male", "gender_Female"},
		report.Dropped)
}

func TestEncodeToManifestIgnoresHighCardinalityColumns(t *testing.T) {
	const rows = 3000
	values := make([][]string, rows)
	for i := range values {
		values[i] = []string{fmt.Sprintf("customer%d@example.com", i), "1", "One year"}
	}
	ds := data.NewDataset([]string{"Email", "tenure", "Contract"}, values)
	manifest := []string{"tenure", "Contract_One year", "Contract_Two year"}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	X, report, err := EncodeToManifest(ds, []string{"tenure"}, manifest)
	runtime.ReadMemStats(&after)
	require.NoError(t, err)

	require.Len(t, X, rows)
	for _, row := range X {
		require.Equal(t, []float64{1, 1, 0}, row)
	}
	assert.Len(t, report.Dropped, rows)
	// One column per email would need rows*rows*8 bytes (72 MB) here.
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(8<<20))
}

func TestEncodeToManifestRejectsBadNumbers(t *testing.T) {
	ds := data.NewDataset([]string{"tenure"}, [][]string{{"abc"}})
	_, _, err := EncodeToManifest(ds, []string{"tenure"}, []string{"tenure"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenure")
}

func TestScalerStandardPopulationVariance(t *testing.T) {
	s := NewScaler("standard")
	X, err := s.FitTransform([][]float64{{1, 5}, {3, 5}})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, s.FeatureMean[0], 1e-12)
	assert.InDelta(t, 1.0, s.FeatureStd[0], 1e-12)
	assert.InDelta(t, 1.0, s.FeatureStd[1], 1e-12)
	assert.InDelta(t, -1.0, X[0][0], 1e-12)
	assert.InDelta(t, 1.0, X[1][0], 1e-12)
	assert.InDelta(t, 0.0, X[0][1], 1e-12)

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestScalerMinMaxAndPersistence(t *testing.T) {
	s := NewScaler("minmax")
	require.NoError(t, s.Fit([][]float64{{0}, {10}}))

	path := filepath.Join(t.TempDir(), "scaler.json")
	require.NoError(t, s.Save(path))

	loaded, err := LoadScaler(path)
	require.NoError(t, err)

	X, err := loaded.Transform([][]float64{{5}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, X[0][0], 1e-12)

	assert.Error(t, NewScaler("log").Fit([][]float64{{1}}))
}

func TestTargetEncoder(t *testing.T) {
	te := NewTargetEncoder()

	y, err := te.Transform([]string{"Yes", "no", "TRUE", "0", "1.0"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 1, 0, 1}, y)

	_, err = te.Transform([]string{"maybe"})
	assert.Error(t, err)

	labels, err := te.InverseTransform([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"Yes", "No"}, labels)
}
