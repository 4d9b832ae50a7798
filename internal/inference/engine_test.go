package inference

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/models"
	"churnpredict/internal/persistence"
	"churnpredict/internal/preprocessing"
	"churnpredict/internal/schema"
	"churnpredict/internal/trainer"
)

// firstFeature scores each row with its first column and remembers its input.
type firstFeature struct {
	width int
	seen  [][]float64
	calls int
}

func (f *firstFeature) Predict(X [][]float64) []int {
	return make([]int, len(X))
}

func (f *firstFeature) PredictProba(X [][]float64) [][]float64 {
	f.calls++
	out := make([][]float64, len(X))
	for i, row := range X {
		f.seen = append(f.seen, row)
		out[i] = []float64{1 - row[0], row[0]}
	}
	return out
}

func (f *firstFeature) NumFeatures() int { return f.width }

type labelsOnly struct{}

func (labelsOnly) Predict(X [][]float64) []int { return make([]int, len(X)) }

func customers(rows ...[]string) *data.Dataset {
	return data.NewDataset([]string{"customerID", "tenure", "Contract", "Churn"}, rows)
}

func TestPredictAlignsToManifest(t *testing.T) {
	ds := customers(
		[]string{"a", "0.9", "One year", "Yes"},
		[]string{"b", "0.2", "Three year", "No"},
	)
	model := &firstFeature{width: 3}
	lm := &persistence.LoadedModel{
		Model:    model,
		Features: []string{"tenure", "Contract_One year", "Contract_Two year"},
	}

	labels, proba, err := NewEngine(schema.Default(), 10, zap.NewNop()).Predict(ds, lm)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0}, labels)
	assert.InDelta(t, 0.9, proba[0][1], 1e-12)
	assert.Equal(t, [][]float64{{0.9, 1, 0}, {0.2, 0, 0}}, model.seen)
}

func TestMatrixSkipsColumnsOutsideManifest(t *testing.T) {
	ds := schema.Default().Sample(500, 9)
	emails := make([]string, ds.Len())
	for i := range emails {
		emails[i] = fmt.Sprintf("customer%d@example.com", i)
	}
	require.NoError(t, ds.SetColumn("Email", emails))

	lm := &persistence.LoadedModel{
		Model:    &firstFeature{width: 3},
		Features: []string{"tenure", "Contract_One year", "Contract_Two year"},
	}
	X, err := NewEngine(schema.Default(), 0, nil).Matrix(ds, lm)
	require.NoError(t, err)

	require.Len(t, X, 500)
	tenure, err := ds.Column("tenure")
	require.NoError(t, err)
	contract, err := ds.Column("Contract")
	require.NoError(t, err)
	for i, row := range X {
		require.Len(t, row, 3)
		want, err := data.ParseNumber(tenure[i])
		require.NoError(t, err)
		assert.Equal(t, want, row[0])
		assert.Equal(t, contract[i] == "One year", row[1] == 1)
		assert.Equal(t, contract[i] == "Two year", row[2] == 1)
	}
}

func TestPredictThresholdIsInclusive(t *testing.T) {
	ds := customers([]string{"a", "0.5", "One year", "No"})
	lm := &persistence.LoadedModel{Model: &firstFeature{}, Features: []string{"tenure"}}

	labels, _, err := NewEngine(schema.Default(), 0, nil).Predict(ds, lm)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, labels)
}

func TestPredictInBatches(t *testing.T) {
	var rows [][]string
	for i := 0; i < 5; i++ {
		rows = append(rows, []string{"c", data.FormatNumber(float64(i) / 10), "One year", "No"})
	}
	model := &firstFeature{}
	lm := &persistence.LoadedModel{Model: model, Features: []string{"tenure"}}

	_, proba, err := NewEngine(schema.Default(), 2, nil).Predict(customers(rows...), lm)
	require.NoError(t, err)

	assert.Equal(t, 3, model.calls)
	for i, row := range proba {
		assert.InDelta(t, float64(i)/10, row[1], 1e-12)
	}
}

func TestPredictScalesNeuralFamilyOnly(t *testing.T) {
	ds := customers(
		[]string{"a", "10", "One year", "No"},
		[]string{"b", "30", "One year", "No"},
	)
	scaler := preprocessing.NewScaler("standard")
	require.NoError(t, scaler.Fit([][]float64{{10}, {30}}))

	neural := &firstFeature{}
	lm := &persistence.LoadedModel{Model: neural, Family: models.FamilyNeuralNet, Features: []string{"tenure"}, Scaler: scaler}
	_, _, err := NewEngine(schema.Default(), 0, nil).Predict(ds, lm)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, neural.seen[0][0], 1e-9)
	assert.InDelta(t, 1.0, neural.seen[1][0], 1e-9)

	tree := &firstFeature{}
	lm = &persistence.LoadedModel{Model: tree, Family: models.FamilyTreeEnsemble, Features: []string{"tenure"}, Scaler: scaler}
	_, _, err = NewEngine(schema.Default(), 0, nil).Predict(ds, lm)
	require.NoError(t, err)
	assert.Equal(t, 10.0, tree.seen[0][0])
}

func TestPredictErrors(t *testing.T) {
	engine := NewEngine(schema.Default(), 0, nil)
	ds := customers([]string{"a", "1", "One year", "No"})

	_, _, err := engine.Predict(ds, &persistence.LoadedModel{Model: labelsOnly{}})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInference))
	assert.Contains(t, err.Error(), "PredictProba")

	_, _, err = engine.Predict(customers(), &persistence.LoadedModel{Model: &firstFeature{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rows")

	lm := &persistence.LoadedModel{Model: &firstFeature{width: 4}, Features: []string{"tenure", "Contract_One year"}}
	_, _, err = engine.Predict(ds, lm)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInference))
	assert.Contains(t, err.Error(), "expects 4 features, got 2")

	_, _, err = engine.Predict(ds, nil)
	assert.Error(t, err)
}

func TestPredictWithTrainedModel(t *testing.T) {
	s := schema.Default()
	sample := s.Sample(200, 5)
	dir := t.TempDir()
	path := filepath.Join(dir, "train.csv")
	require.NoError(t, data.WriteFile(sample, path))

	tr := trainer.New(s, nil)
	tr.Config.NTrees = 20
	modelPath := filepath.Join(dir, "gb.model")
	result := tr.Train(path, modelPath, "")
	require.True(t, result.OK, result.Message)

	lm, err := persistence.NewLoader("", "", nil).Load(modelPath)
	require.NoError(t, err)

	input, err := schema.NewRegistry(s, nil).Validate(sample.Drop("Churn"), schema.Lenient)
	require.NoError(t, err)

	labels, proba, err := NewEngine(s, 64, nil).Predict(input, lm)
	require.NoError(t, err)
	require.Len(t, labels, 200)

	direct := lm.Model.(models.ProbabilityPredictor)
	X, err := NewEngine(s, 64, nil).Matrix(input, lm)
	require.NoError(t, err)
	assert.Equal(t, direct.PredictProba(X), proba)
	for i := range labels {
		assert.Equal(t, proba[i][1] >= 0.5, labels[i] == 1)
	}
}
