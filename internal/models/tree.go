package models

import (
	"fmt"
	"math/rand"
)

type DecisionTree struct {
	BaseModel
	Tree            *Tree
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Balanced        bool
	Seed            int64
}

func NewDecisionTree(maxDepth, minSamplesSplit, minSamplesLeaf int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	if minSamplesSplit <= 0 {
		minSamplesSplit = 2
	}

	if minSamplesLeaf <= 0 {
		minSamplesLeaf = 1
	}

	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MinSamplesLeaf:  minSamplesLeaf,
		Seed:            42,
		BaseModel: BaseModel{
			Name: "decision_tree",
			Params: map[string]any{
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
				"min_samples_leaf":  minSamplesLeaf,
			},
		},
	}
}

func (dt *DecisionTree) Fit(X [][]float64, y []int) error {
	if err := checkTrainingData(X, y); err != nil {
		return fmt.Errorf("failed to fit decision tree: %w", err)
	}

	dt.Classes = ExtractClasses(y)
	dt.NFeatures = len(X[0])
	dt.Tree = dt.grow(X, presort(X), y, sampleWeights(y, dt.Balanced), 0, rand.New(rand.NewSource(dt.Seed)))
	return nil
}

func (dt *DecisionTree) grow(X [][]float64, order [][]int, y []int, weight []float64, maxFeatures int, rng *rand.Rand) *Tree {
	target := make([]float64, len(y))
	for i, label := range y {
		target[i] = float64(label)
	}

	builder := newTreeBuilder(X, order, treeParams{
		MaxDepth:        dt.MaxDepth,
		MinSamplesSplit: dt.MinSamplesSplit,
		MinSamplesLeaf:  dt.MinSamplesLeaf,
		MaxFeatures:     maxFeatures,
	}, rng)
	return builder.build(target, weight, weightedMean(target, weight))
}

func (dt *DecisionTree) Predict(X [][]float64) []int {
	return labelsFromProba(dt.PredictProba(X))
}

func (dt *DecisionTree) PredictProba(X [][]float64) [][]float64 {
	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = probaRow(dt.Tree.value(sample))
	}
	return proba
}

func (dt *DecisionTree) FeatureImportances() []float64 {
	if dt.Tree == nil {
		return nil
	}
	return normalize(dt.Tree.Importances)
}

func (dt *DecisionTree) Reset() {
	dt.Tree = nil
	dt.Classes = nil
	dt.NFeatures = 0
}
