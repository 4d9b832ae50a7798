package models

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

type RandomForest struct {
	BaseModel
	NTrees          int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Balanced        bool
	Seed            int64
	Trees           []*DecisionTree
	Parallel        bool
	MaxWorkers      int
}

func NewRandomForest(nTrees, maxDepth, minSamplesSplit, maxFeatures int) *RandomForest {
	return &RandomForest{
		NTrees:          nTrees,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MaxFeatures:     maxFeatures,
		Seed:            42,
		Parallel:        true,
		MaxWorkers:      4,
		BaseModel: BaseModel{
			Name: "random_forest",
			Params: map[string]any{
				"n_trees":           nTrees,
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
				"max_features":      maxFeatures,
			},
		},
	}
}

func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if err := checkTrainingData(X, y); err != nil {
		return fmt.Errorf("failed to fit random forest: %w", err)
	}
	if rf.NTrees <= 0 {
		return fmt.Errorf("random forest needs at least one tree, got %d", rf.NTrees)
	}

	rf.Classes = ExtractClasses(y)
	rf.NFeatures = len(X[0])

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(rf.NFeatures)))
	}
	if maxFeatures < 1 {
		maxFeatures = 1
	}
	if maxFeatures > rf.NFeatures {
		maxFeatures = rf.NFeatures
	}

	rf.Trees = make([]*DecisionTree, rf.NTrees)
	order := presort(X)
	classWeight := sampleWeights(y, rf.Balanced)

	if rf.Parallel {
		rf.trainParallel(X, order, y, classWeight, maxFeatures)
	} else {
		rf.trainSequential(X, order, y, classWeight, maxFeatures)
	}
	return nil
}

func (rf *RandomForest) trainParallel(X [][]float64, order [][]int, y []int, classWeight []float64, maxFeatures int) {
	var wg sync.WaitGroup

	workers := rf.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > rf.NTrees {
		workers = rf.NTrees
	}

	jobs := make(chan int, rf.NTrees)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rf.Trees[i] = rf.trainSingleTree(X, order, y, classWeight, maxFeatures, rf.Seed+int64(i))
			}
		}()
	}

	for i := 0; i < rf.NTrees; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
}

func (rf *RandomForest) trainSequential(X [][]float64, order [][]int, y []int, classWeight []float64, maxFeatures int) {
	for i := 0; i < rf.NTrees; i++ {
		rf.Trees[i] = rf.trainSingleTree(X, order, y, classWeight, maxFeatures, rf.Seed+int64(i))
	}
}

// trainSingleTree fits one tree on a bootstrap sample. The sample is
// expressed as per-row multiplicities folded into the weights, so the
// presorted feature order is shared by every tree.
func (rf *RandomForest) trainSingleTree(X [][]float64, order [][]int, y []int, classWeight []float64, maxFeatures int, seed int64) *DecisionTree {
	r := rand.New(rand.NewSource(seed))

	n := len(X)
	weight := make([]float64, n)
	for i := 0; i < n; i++ {
		weight[r.Intn(n)]++
	}
	for i := range weight {
		weight[i] *= classWeight[i]
	}

	tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit, 1)
	tree.Seed = seed
	tree.Classes = rf.Classes
	tree.NFeatures = rf.NFeatures
	tree.Tree = tree.grow(X, order, y, weight, maxFeatures, r)
	return tree
}

func (rf *RandomForest) Predict(X [][]float64) []int {
	return labelsFromProba(rf.PredictProba(X))
}

// PredictProba averages the leaf class frequencies of all trees.
func (rf *RandomForest) PredictProba(X [][]float64) [][]float64 {
	proba := make([][]float64, len(X))

	for i, sample := range X {
		p := 0.0
		for _, tree := range rf.Trees {
			p += tree.Tree.value(sample)
		}
		proba[i] = probaRow(p / float64(len(rf.Trees)))
	}

	return proba
}

func (rf *RandomForest) FeatureImportances() []float64 {
	if len(rf.Trees) == 0 {
		return nil
	}

	total := make([]float64, rf.NFeatures)
	for _, tree := range rf.Trees {
		for j, v := range tree.FeatureImportances() {
			total[j] += v
		}
	}
	return normalize(total)
}

func (rf *RandomForest) Reset() {
	rf.Trees = nil
	rf.Classes = nil
	rf.NFeatures = 0
}
