package evaluation

import (
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/stat"

	"churnpredict/internal/models"
)

type CrossValidator struct {
	NFolds     int
	Shuffle    bool
	RandomSeed int64
	Parallel   bool
	MaxWorkers int
}

type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64
}

func NewCrossValidator(nFolds int) *CrossValidator {
	return &CrossValidator{
		NFolds:     nFolds,
		Shuffle:    true,
		RandomSeed: 42,
		Parallel:   true,
		MaxWorkers: 4,
	}
}

// CrossValidate fits a fresh model from newModel on every fold and scores
// its accuracy on the held-out part.
func (cv *CrossValidator) CrossValidate(X [][]float64, y []int, newModel func() (models.Model, error)) (*CVResult, error) {
	folds, err := cv.KFoldSplit(len(X))
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	errs := make([]error, len(folds))

	workers := 1
	if cv.Parallel {
		workers = cv.MaxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(folds) {
		workers = len(folds)
	}

	jobs := make(chan int, len(folds))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i], errs[i] = cv.evaluateFold(X, y, newModel, folds[i])
			}
		}()
	}

	for i := range folds {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("fold %d failed: %w", i, err)
		}
	}

	result := &CVResult{Scores: scores}
	if len(scores) > 1 {
		result.Mean, result.Std = stat.MeanStdDev(scores, nil)
	} else {
		result.Mean = scores[0]
	}
	return result, nil
}

func (cv *CrossValidator) evaluateFold(X [][]float64, y []int, newModel func() (models.Model, error), testIndices []int) (float64, error) {
	testSet := make(map[int]bool, len(testIndices))
	for _, idx := range testIndices {
		testSet[idx] = true
	}

	trainIndices := make([]int, 0, len(X)-len(testIndices))
	for i := 0; i < len(X); i++ {
		if !testSet[i] {
			trainIndices = append(trainIndices, i)
		}
	}

	XTrain, yTrain := Subset(X, y, trainIndices)
	XTest, yTest := Subset(X, y, testIndices)

	foldModel, err := newModel()
	if err != nil {
		return 0, err
	}
	if err := foldModel.Fit(XTrain, yTrain); err != nil {
		return 0, err
	}

	metrics, err := CalculateMetrics(yTest, foldModel.Predict(XTest), []int{0, 1})
	if err != nil {
		return 0, err
	}
	return metrics.Accuracy, nil
}

func (cv *CrossValidator) KFoldSplit(n int) ([][]int, error) {
	if cv.NFolds < 2 || cv.NFolds > n {
		return nil, fmt.Errorf("invalid number of folds: %d (must be between 2 and %d)", cv.NFolds, n)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if cv.Shuffle {
		rng := rand.New(rand.NewSource(cv.RandomSeed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([][]int, cv.NFolds)
	foldSize := n / cv.NFolds

	for i := 0; i < cv.NFolds; i++ {
		start := i * foldSize
		end := start + foldSize
		if i == cv.NFolds-1 {
			end = n
		}

		folds[i] = make([]int, end-start)
		copy(folds[i], indices[start:end])
	}

	return folds, nil
}
