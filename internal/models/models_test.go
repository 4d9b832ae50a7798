package models

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separable returns two clusters on feature 0; feature 1 is noise.
func separable() ([][]float64, []int) {
	var X [][]float64
	var y []int
	for i := 0; i < 20; i++ {
		X = append(X, []float64{-1 + 0.04*float64(i), float64(i % 3)})
		y = append(y, 0)
		X = append(X, []float64{0.2 + 0.04*float64(i), float64((i + 1) % 3)})
		y = append(y, 1)
	}
	return X, y
}

func accuracy(pred, y []int) float64 {
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

func assertProba(t *testing.T, proba [][]float64) {
	t.Helper()
	for _, row := range proba {
		require.Len(t, row, 2)
		assert.InDelta(t, 1.0, row[0]+row[1], 1e-9)
		assert.GreaterOrEqual(t, row[1], 0.0)
		assert.LessOrEqual(t, row[1], 1.0)
	}
}

func TestDecisionTreeSeparable(t *testing.T) {
	X, y := separable()
	tree := NewDecisionTree(4, 2, 1)
	require.NoError(t, tree.Fit(X, y))

	assert.Equal(t, 1.0, accuracy(tree.Predict(X), y))
	assertProba(t, tree.PredictProba(X))
	assert.Equal(t, []int{0, 1}, tree.GetClasses())
	assert.Equal(t, 2, tree.NumFeatures())

	imp := tree.FeatureImportances()
	assert.InDelta(t, 1.0, imp[0], 1e-9)
	assert.InDelta(t, 0.0, imp[1], 1e-9)
	assert.Equal(t, 1, tree.Tree.Depth())
	assert.Equal(t, 2, tree.Tree.LeafCount())
}

func TestDecisionTreeRespectsMinLeaf(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []int{0, 1, 0, 1}
	tree := NewDecisionTree(5, 2, 3)
	require.NoError(t, tree.Fit(X, y))

	assert.Equal(t, 1, tree.Tree.LeafCount())
	assert.InDelta(t, 0.5, tree.PredictProba([][]float64{{0}})[0][1], 1e-9)
}

func TestRandomForestDeterministicAcrossWorkers(t *testing.T) {
	X, y := separable()

	parallel := NewRandomForest(15, 5, 2, 1)
	parallel.MaxWorkers = 3
	require.NoError(t, parallel.Fit(X, y))

	sequential := NewRandomForest(15, 5, 2, 1)
	sequential.Parallel = false
	require.NoError(t, sequential.Fit(X, y))

	assert.Equal(t, parallel.PredictProba(X), sequential.PredictProba(X))
	assert.GreaterOrEqual(t, accuracy(parallel.Predict(X), y), 0.95)
	assertProba(t, parallel.PredictProba(X))

	imp := parallel.FeatureImportances()
	assert.Greater(t, imp[0], imp[1])
}

func TestGradientBoostingSeparable(t *testing.T) {
	X, y := separable()
	gb := NewGradientBoosting(50, 0.3, 3, 2, 0.8, 42)
	require.NoError(t, gb.Fit(X, y))

	assert.Equal(t, 1.0, accuracy(gb.Predict(X), y))
	assertProba(t, gb.PredictProba(X))
	assert.Len(t, gb.Trees, 50)

	imp := gb.FeatureImportances()
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
	assert.Greater(t, imp[0], 0.9)
}

func TestGradientBoostingStartsFromPrior(t *testing.T) {
	X := [][]float64{{0}, {0}, {0}, {0}}
	y := []int{1, 0, 0, 0}
	gb := NewGradientBoosting(5, 0.1, 2, 2, 1, 42)
	require.NoError(t, gb.Fit(X, y))

	assert.InDelta(t, 0.25, gb.PredictProba([][]float64{{0}})[0][1], 1e-9)
}

func TestLogisticRegression(t *testing.T) {
	X, y := separable()
	lr := NewLogisticRegression(1.0, true, 100)
	require.NoError(t, lr.Fit(X, y))

	assert.Equal(t, 1.0, accuracy(lr.Predict(X), y))
	assertProba(t, lr.PredictProba(X))

	coef := lr.Coefficients()
	require.Len(t, coef, 1)
	require.Len(t, coef[0], 2)
	assert.Greater(t, coef[0][0], 0.0)
	assert.Less(t, lr.NIter, 100)
}

func TestLogisticRegressionRegularisationShrinks(t *testing.T) {
	X, y := separable()
	weak := NewLogisticRegression(10, false, 100)
	strong := NewLogisticRegression(0.017, false, 100)
	require.NoError(t, weak.Fit(X, y))
	require.NoError(t, strong.Fit(X, y))

	assert.Greater(t, weak.Weights[0], strong.Weights[0])
}

func TestNeuralNetwork(t *testing.T) {
	X, y := separable()
	nn := NewNeuralNetwork([]int{8}, 0.0001, 0.01, 300, 42)
	nn.NIterNoChange = 0
	require.NoError(t, nn.Fit(X, y))

	assert.GreaterOrEqual(t, accuracy(nn.Predict(X), y), 0.9)
	assertProba(t, nn.PredictProba(X))
	assert.Len(t, nn.LossCurve, 300)
	assert.Less(t, nn.LossCurve[len(nn.LossCurve)-1], nn.LossCurve[0])

	w := nn.InputWeights()
	require.Len(t, w, 2)
	assert.Len(t, w[0], 8)
}

func TestNeuralNetworkSeeded(t *testing.T) {
	X, y := separable()
	a := NewNeuralNetwork([]int{4, 3}, 0.01, 0.01, 20, 7)
	b := NewNeuralNetwork([]int{4, 3}, 0.01, 0.01, 20, 7)
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	assert.Equal(t, a.PredictProba(X), b.PredictProba(X))
}

func TestFitRejectsBadInput(t *testing.T) {
	assert.Error(t, NewDecisionTree(3, 2, 1).Fit(nil, nil))
	assert.Error(t, NewGradientBoosting(1, 0.1, 1, 2, 1, 1).Fit([][]float64{{1}}, []int{2}))
	assert.Error(t, NewLogisticRegression(1, false, 10).Fit([][]float64{{1}, {2}}, []int{1}))
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyTreeEnsemble, FamilyOf(NewDecisionTree(1, 2, 1)))
	assert.Equal(t, FamilyTreeEnsemble, FamilyOf(NewRandomForest(1, 1, 2, 1)))
	assert.Equal(t, FamilyTreeEnsemble, FamilyOf(NewGradientBoosting(1, 0.1, 1, 2, 1, 1)))
	assert.Equal(t, FamilyLinear, FamilyOf(NewLogisticRegression(1, false, 1)))
	assert.Equal(t, FamilyNeuralNet, FamilyOf(NewNeuralNetwork(nil, 0, 0, 1, 1)))
	assert.Equal(t, FamilyUnknown, FamilyOf("not a model"))
	assert.Equal(t, "tree_ensemble", FamilyTreeEnsemble.String())
}

func TestCreateModel(t *testing.T) {
	for _, algorithm := range Algorithms() {
		m, err := CreateModel(DefaultConfig(algorithm))
		require.NoError(t, err, algorithm)
		assert.Equal(t, algorithm, m.GetName())
	}

	gb, err := CreateModel(DefaultConfig(AlgorithmGradientBoosting))
	require.NoError(t, err)
	boosting := gb.(*GradientBoosting)
	assert.Equal(t, 400, boosting.NEstimators)
	assert.Equal(t, 0.01, boosting.LearningRate)
	assert.Equal(t, 5, boosting.MaxDepth)
	assert.Equal(t, 0.8, boosting.Subsample)
	assert.Equal(t, int64(42), boosting.Seed)

	_, err = CreateModel(ModelConfig{Algorithm: "knn"})
	assert.Error(t, err)
}

func TestGobRoundTripThroughInterface(t *testing.T) {
	X, y := separable()
	fitted := []Model{
		NewDecisionTree(3, 2, 1),
		NewRandomForest(3, 3, 2, 1),
		NewGradientBoosting(5, 0.3, 2, 2, 1, 42),
		NewLogisticRegression(1, false, 20),
		NewNeuralNetwork([]int{3}, 0.01, 0.01, 5, 1),
	}

	type envelope struct {
		Model Model
	}

	for _, m := range fitted {
		require.NoError(t, m.Fit(X, y))

		var buf bytes.Buffer
		require.NoError(t, gob.NewEncoder(&buf).Encode(envelope{Model: m}))

		var back envelope
		require.NoError(t, gob.NewDecoder(&buf).Decode(&back))
		assert.Equal(t, m.PredictProba(X), back.Model.PredictProba(X), m.GetName())
		assert.Equal(t, FamilyOf(m), FamilyOf(back.Model))
	}
}
