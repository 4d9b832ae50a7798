package evaluation

import (
	"fmt"
	"math"
	"math/rand"
)

type TrainTestSplitter struct {
	testSize   float64
	randomSeed int64
	shuffle    bool
}

func NewTrainTestSplitter(testSize float64, randomSeed int64, shuffle bool) *TrainTestSplitter {
	return &TrainTestSplitter{
		testSize:   testSize,
		randomSeed: randomSeed,
		shuffle:    shuffle,
	}
}

// DefaultTrainTestSplitter is the fixed 80/20 split seeded with 42.
func DefaultTrainTestSplitter() *TrainTestSplitter {
	return NewTrainTestSplitter(0.2, 42, true)
}

// SplitIndices returns the row indices of the train and test partitions of
// n rows. The test partition holds ceil(n * testSize) rows.
func (tts *TrainTestSplitter) SplitIndices(n int) ([]int, []int, error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("cannot split a dataset of %d rows", n)
	}

	if tts.testSize <= 0 || tts.testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be between 0 and 1")
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if tts.shuffle {
		rng := rand.New(rand.NewSource(tts.randomSeed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	testCount := int(math.Ceil(float64(n) * tts.testSize))
	if testCount >= n {
		testCount = n - 1
	}
	trainCount := n - testCount

	return indices[:trainCount], indices[trainCount:], nil
}

func (tts *TrainTestSplitter) Split(X [][]float64, y []int) ([][]float64, [][]float64, []int, []int, error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("x and y must have the same length")
	}

	train, test, err := tts.SplitIndices(len(X))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	XTrain, yTrain := Subset(X, y, train)
	XTest, yTest := Subset(X, y, test)
	return XTrain, XTest, yTrain, yTest, nil
}

// Subset selects rows of X and y by index. Rows are shared, not copied.
func Subset(X [][]float64, y []int, indices []int) ([][]float64, []int) {
	XOut := make([][]float64, len(indices))
	yOut := make([]int, len(indices))
	for i, idx := range indices {
		XOut[i] = X[idx]
		yOut[i] = y[idx]
	}
	return XOut, yOut
}
