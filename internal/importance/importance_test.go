package importance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"churnpredict/internal/models"
)

type fixedImportances []float64

func (f fixedImportances) FeatureImportances() []float64 { return f }

type fixedCoefficients []float64

func (f fixedCoefficients) Coefficients() [][]float64 { return [][]float64{f} }

type fixedWeights [][]float64

func (f fixedWeights) InputWeights() [][]float64 { return f }

type opaque struct{}

func assertNormalised(t *testing.T, entries []Entry) {
	t.Helper()
	require.NotEmpty(t, entries)
	assert.LessOrEqual(t, len(entries), TopN)
	sum := 0.0
	for _, e := range entries {
		sum += e.Importance
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Feature
	}
	return out
}

func TestResolveTreeImportances(t *testing.T) {
	features := []string{"a", "b", "c", "d", "e", "f", "g"}
	model := fixedImportances{0.05, 0.3, 0.1, 0.2, 0.05, 0.25, 0.05}

	entries := NewResolver(zap.NewNop()).Resolve(model, features)
	assertNormalised(t, entries)
	assert.Equal(t, []string{"b", "f", "d", "c", "a"}, names(entries))
	assert.InDelta(t, 0.3/0.9, entries[0].Importance, 1e-9)
}

func TestResolveLinearUsesAbsoluteCoefficients(t *testing.T) {
	entries := NewResolver(nil).Resolve(fixedCoefficients{-2, 1, 0.5}, []string{"x", "y", "z"})
	assertNormalised(t, entries)
	assert.Equal(t, []string{"x", "y", "z"}, names(entries))
	assert.InDelta(t, 2/3.5, entries[0].Importance, 1e-9)
}

func TestResolveNeuralSumsInputWeights(t *testing.T) {
	weights := fixedWeights{
		{0.1, -0.1},
		{-1, 1},
		{0.5, 0},
	}
	entries := NewResolver(nil).Resolve(weights, []string{"x", "y", "z"})
	assertNormalised(t, entries)
	assert.Equal(t, []string{"y", "z", "x"}, names(entries))
}

func TestResolveTruncatesOnLengthMismatch(t *testing.T) {
	entries := NewResolver(nil).Resolve(fixedImportances{0.5, 0.5}, []string{"x", "y", "z"})
	assertNormalised(t, entries)
	assert.Len(t, entries, 2)
}

func TestResolveAllZeroGetsEqualWeights(t *testing.T) {
	entries := NewResolver(nil).Resolve(fixedImportances{0, 0, 0}, []string{"x", "y", "z"})
	assertNormalised(t, entries)
	for _, e := range entries {
		assert.InDelta(t, 1.0/3, e.Importance, 1e-9)
	}
}

func TestResolveUnknownModelUsesDomainRanking(t *testing.T) {
	features := []string{"gender", "tenure", "Contract_One year", "Contract_Two year", "MonthlyCharges", "TechSupport_Yes"}

	entries := NewResolver(nil).Resolve(opaque{}, features)
	assertNormalised(t, entries)
	assert.Equal(t, []string{"tenure", "Contract_One year", "Contract_Two year", "MonthlyCharges", "TechSupport_Yes"}, names(entries))
	assert.Greater(t, entries[0].Importance, entries[3].Importance)
}

func TestResolveDegenerateScoresUseDomainRanking(t *testing.T) {
	entries := NewResolver(nil).Resolve(fixedImportances{math.NaN(), 1}, []string{"foo", "bar"})
	assertNormalised(t, entries)
	assert.Equal(t, []string{"foo", "bar"}, names(entries))
	assert.InDelta(t, 0.5, entries[0].Importance, 1e-9)
}

func TestResolveNothingToRank(t *testing.T) {
	entries := NewResolver(nil).Resolve(opaque{}, nil)
	assert.Equal(t, Fixed(), entries)
	assertNormalised(t, entries)
}

func TestResolveFittedModels(t *testing.T) {
	var X [][]float64
	var y []int
	for i := 0; i < 40; i++ {
		X = append(X, []float64{float64(i), float64(i % 5), float64(i % 2)})
		if i >= 20 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	features := []string{"tenure", "MonthlyCharges", "Partner_Yes"}

	for _, algorithm := range []string{
		models.AlgorithmDecisionTree,
		models.AlgorithmLogisticRegression,
	} {
		model, err := models.CreateModel(models.DefaultConfig(algorithm))
		require.NoError(t, err)
		require.NoError(t, model.Fit(X, y))

		entries := NewResolver(nil).Resolve(model, features)
		assertNormalised(t, entries)
		assert.Equal(t, "tenure", entries[0].Feature, algorithm)
	}
}

func TestRankedFullList(t *testing.T) {
	ranked := Ranked(fixedImportances{1, 3, 0, 0, 0, 0, 4}, []string{"a", "b", "c", "d", "e", "f", "g"})
	require.Len(t, ranked, 7)
	assert.Equal(t, "g", ranked[0].Feature)
	assert.Equal(t, "b", ranked[1].Feature)
	assert.InDelta(t, 0.5, ranked[0].Importance, 1e-9)

	assert.Nil(t, Ranked(opaque{}, []string{"a"}))
}
