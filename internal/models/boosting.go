package models

import (
	"fmt"
	"math"
	"math/rand"
)

// GradientBoosting is a binary classifier fitted by gradient boosting on the
// log-loss. Each stage fits a regression tree to the residuals of a random
// subsample and sets its leaves with one Newton step.
type GradientBoosting struct {
	BaseModel
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Subsample       float64
	Seed            int64
	InitScore       float64
	Trees           []*Tree
}

func NewGradientBoosting(nEstimators int, learningRate float64, maxDepth, minSamplesSplit int, subsample float64, seed int64) *GradientBoosting {
	if nEstimators <= 0 {
		nEstimators = 100
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if minSamplesSplit <= 0 {
		minSamplesSplit = 2
	}
	if subsample <= 0 || subsample > 1 {
		subsample = 1
	}

	return &GradientBoosting{
		NEstimators:     nEstimators,
		LearningRate:    learningRate,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MinSamplesLeaf:  1,
		Subsample:       subsample,
		Seed:            seed,
		BaseModel: BaseModel{
			Name: "gradient_boosting",
			Params: map[string]any{
				"n_estimators":      nEstimators,
				"learning_rate":     learningRate,
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
				"subsample":         subsample,
				"random_state":      seed,
			},
		},
	}
}

func (gb *GradientBoosting) Fit(X [][]float64, y []int) error {
	if err := checkTrainingData(X, y); err != nil {
		return fmt.Errorf("failed to fit gradient boosting: %w", err)
	}

	gb.Classes = ExtractClasses(y)
	gb.NFeatures = len(X[0])
	n := len(X)

	positives := 0
	for _, label := range y {
		positives += label
	}
	prior := float64(positives) / float64(n)
	prior = math.Min(math.Max(prior, 1e-15), 1-1e-15)
	gb.InitScore = math.Log(prior / (1 - prior))

	score := make([]float64, n)
	for i := range score {
		score[i] = gb.InitScore
	}

	r := rand.New(rand.NewSource(gb.Seed))
	order := presort(X)
	builder := newTreeBuilder(X, order, treeParams{
		MaxDepth:        gb.MaxDepth,
		MinSamplesSplit: gb.MinSamplesSplit,
		MinSamplesLeaf:  gb.MinSamplesLeaf,
	}, nil)

	inBag := int(math.Round(gb.Subsample * float64(n)))
	if inBag < 1 {
		inBag = 1
	}

	gb.Trees = make([]*Tree, 0, gb.NEstimators)
	residual := make([]float64, n)
	hessian := make([]float64, n)
	weight := make([]float64, n)

	for stage := 0; stage < gb.NEstimators; stage++ {
		for i := range X {
			p := sigmoid(score[i])
			residual[i] = float64(y[i]) - p
			hessian[i] = p * (1 - p)
			weight[i] = 0
		}

		if inBag < n {
			for _, i := range r.Perm(n)[:inBag] {
				weight[i] = 1
			}
		} else {
			for i := range weight {
				weight[i] = 1
			}
		}

		tree := builder.build(residual, weight, func(members []int) float64 {
			var num, den float64
			for _, i := range members {
				num += residual[i]
				den += hessian[i]
			}
			if math.Abs(den) < 1e-150 {
				return 0
			}
			return num / den
		})

		for i := range X {
			score[i] += gb.LearningRate * tree.value(X[i])
		}
		gb.Trees = append(gb.Trees, tree)
	}

	return nil
}

func (gb *GradientBoosting) decision(sample []float64) float64 {
	score := gb.InitScore
	for _, tree := range gb.Trees {
		score += gb.LearningRate * tree.value(sample)
	}
	return score
}

func (gb *GradientBoosting) Predict(X [][]float64) []int {
	return labelsFromProba(gb.PredictProba(X))
}

func (gb *GradientBoosting) PredictProba(X [][]float64) [][]float64 {
	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = probaRow(sigmoid(gb.decision(sample)))
	}
	return proba
}

// FeatureImportances averages the normalised impurity decrease of every
// stage that made at least one split.
func (gb *GradientBoosting) FeatureImportances() []float64 {
	if len(gb.Trees) == 0 {
		return nil
	}

	total := make([]float64, gb.NFeatures)
	for _, tree := range gb.Trees {
		for j, v := range normalize(tree.Importances) {
			total[j] += v
		}
	}
	return normalize(total)
}

func (gb *GradientBoosting) Reset() {
	gb.Trees = nil
	gb.Classes = nil
	gb.NFeatures = 0
	gb.InitScore = 0
}
