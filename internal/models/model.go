package models

import (
	"encoding/gob"
	"fmt"
	"math"
	"sort"
)

func init() {
	gob.Register(&DecisionTree{})
	gob.Register(&RandomForest{})
	gob.Register(&GradientBoosting{})
	gob.Register(&LogisticRegression{})
	gob.Register(&NeuralNetwork{})
}

// Model is a binary churn classifier. PredictProba returns one row per
// sample with the probabilities of class 0 and class 1, in that order.
type Model interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) []int
	PredictProba(X [][]float64) [][]float64
	GetName() string
	GetParams() map[string]any
	GetClasses() []int
	NumFeatures() int
	Reset()
}

type Predictor interface {
	Predict(X [][]float64) []int
}

type ProbabilityPredictor interface {
	PredictProba(X [][]float64) [][]float64
}

// ImportanceProvider is implemented by tree ensembles.
type ImportanceProvider interface {
	FeatureImportances() []float64
}

// CoefficientProvider is implemented by linear models. Row 0 holds the
// coefficients of the positive class.
type CoefficientProvider interface {
	Coefficients() [][]float64
}

// WeightProvider is implemented by neural networks. Row i holds the
// weights leaving input feature i.
type WeightProvider interface {
	InputWeights() [][]float64
}

type Family int

const (
	FamilyUnknown Family = iota
	FamilyTreeEnsemble
	FamilyLinear
	FamilyNeuralNet
)

func (f Family) String() string {
	switch f {
	case FamilyTreeEnsemble:
		return "tree_ensemble"
	case FamilyLinear:
		return "linear_model"
	case FamilyNeuralNet:
		return "neural_net"
	default:
		return "unknown"
	}
}

func FamilyOf(m any) Family {
	switch m.(type) {
	case *DecisionTree, *RandomForest, *GradientBoosting:
		return FamilyTreeEnsemble
	case *LogisticRegression:
		return FamilyLinear
	case *NeuralNetwork:
		return FamilyNeuralNet
	default:
		return FamilyUnknown
	}
}

type BaseModel struct {
	Name      string
	Params    map[string]any
	Classes   []int
	NFeatures int
}

func (bm *BaseModel) GetName() string {
	return bm.Name
}

func (bm *BaseModel) GetParams() map[string]any {
	return bm.Params
}

func (bm *BaseModel) GetClasses() []int {
	return bm.Classes
}

func (bm *BaseModel) NumFeatures() int {
	return bm.NFeatures
}

func ExtractClasses(y []int) []int {
	classMap := make(map[int]bool)
	for _, label := range y {
		classMap[label] = true
	}

	classes := make([]int, 0, len(classMap))
	for class := range classMap {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	return classes
}

func checkTrainingData(X [][]float64, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y))
	}
	if len(X[0]) == 0 {
		return fmt.Errorf("features cannot be empty")
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("label at sample %d is %d, expected 0 or 1", i, label)
		}
	}
	return nil
}

// sampleWeights returns 1 for every sample, or n / (2 * count(class)) when
// balanced, so both classes carry equal total weight.
func sampleWeights(y []int, balanced bool) []float64 {
	w := make([]float64, len(y))
	if !balanced {
		for i := range w {
			w[i] = 1
		}
		return w
	}

	var counts [2]float64
	for _, label := range y {
		counts[label]++
	}
	n := float64(len(y))
	for i, label := range y {
		w[i] = n / (2 * counts[label])
	}
	return w
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func probaRow(p float64) []float64 {
	return []float64{1 - p, p}
}

func labelOf(p float64) int {
	if p >= 0.5 {
		return 1
	}
	return 0
}

func labelsFromProba(proba [][]float64) []int {
	labels := make([]int, len(proba))
	for i, row := range proba {
		labels[i] = labelOf(row[1])
	}
	return labels
}

func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
