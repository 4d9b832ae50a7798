package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegression minimises C * sum(w_i * logloss_i) + ||coef||^2 / 2
// with Newton's method. The intercept is not penalised.
type LogisticRegression struct {
	BaseModel
	C         float64
	Balanced  bool
	MaxIter   int
	Tol       float64
	Weights   []float64
	Intercept float64
	NIter     int
}

func NewLogisticRegression(c float64, balanced bool, maxIter int) *LogisticRegression {
	if c <= 0 {
		c = 1
	}
	if maxIter <= 0 {
		maxIter = 100
	}

	return &LogisticRegression{
		C:        c,
		Balanced: balanced,
		MaxIter:  maxIter,
		Tol:      1e-6,
		BaseModel: BaseModel{
			Name: "logistic_regression",
			Params: map[string]any{
				"C":        c,
				"penalty":  "l2",
				"balanced": balanced,
				"max_iter": maxIter,
			},
		},
	}
}

func (lr *LogisticRegression) Fit(X [][]float64, y []int) error {
	if err := checkTrainingData(X, y); err != nil {
		return fmt.Errorf("failed to fit logistic regression: %w", err)
	}

	lr.Classes = ExtractClasses(y)
	lr.NFeatures = len(X[0])

	n, p := len(X), lr.NFeatures
	dim := p + 1
	sw := sampleWeights(y, lr.Balanced)

	// theta[0:p] are the coefficients, theta[p] the intercept
	theta := make([]float64, dim)
	grad := mat.NewVecDense(dim, nil)
	hess := mat.NewSymDense(dim, nil)
	step := mat.NewVecDense(dim, nil)
	row := make([]float64, dim)

	lr.NIter = 0
	for iter := 0; iter < lr.MaxIter; iter++ {
		lr.NIter = iter + 1

		for j := 0; j < dim; j++ {
			grad.SetVec(j, 0)
			for k := j; k < dim; k++ {
				hess.SetSym(j, k, 0)
			}
		}

		for i := 0; i < n; i++ {
			copy(row, X[i])
			row[p] = 1
			prob := sigmoid(floats.Dot(row, theta))
			g := lr.C * sw[i] * (prob - float64(y[i]))
			h := lr.C * sw[i] * prob * (1 - prob)

			for j := 0; j < dim; j++ {
				grad.SetVec(j, grad.AtVec(j)+g*row[j])
				if h == 0 || row[j] == 0 {
					continue
				}
				for k := j; k < dim; k++ {
					hess.SetSym(j, k, hess.At(j, k)+h*row[j]*row[k])
				}
			}
		}

		for j := 0; j < p; j++ {
			grad.SetVec(j, grad.AtVec(j)+theta[j])
			hess.SetSym(j, j, hess.At(j, j)+1)
		}
		hess.SetSym(p, p, hess.At(p, p)+1e-8)

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return fmt.Errorf("failed to fit logistic regression: hessian is not positive definite at iteration %d", iter)
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return fmt.Errorf("failed to fit logistic regression: %w", err)
		}

		// halve the Newton step until the objective stops increasing
		current := lr.objective(X, y, sw, theta)
		candidate := make([]float64, dim)
		scale := 1.0
		for attempt := 0; attempt < 30; attempt++ {
			for j := range candidate {
				candidate[j] = theta[j] - scale*step.AtVec(j)
			}
			if lr.objective(X, y, sw, candidate) <= current {
				break
			}
			scale /= 2
		}

		maxStep := 0.0
		for j := 0; j < dim; j++ {
			maxStep = math.Max(maxStep, math.Abs(candidate[j]-theta[j]))
		}
		copy(theta, candidate)
		if maxStep < lr.Tol {
			break
		}
	}

	lr.Weights = append([]float64(nil), theta[:p]...)
	lr.Intercept = theta[p]
	return nil
}

func (lr *LogisticRegression) objective(X [][]float64, y []int, sw, theta []float64) float64 {
	p := len(theta) - 1
	loss := 0.0
	for i, sample := range X {
		z := floats.Dot(theta[:p], sample) + theta[p]
		loss += sw[i] * (softplus(z) - float64(y[i])*z)
	}
	penalty := floats.Dot(theta[:p], theta[:p]) / 2
	return lr.C*loss + penalty
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func (lr *LogisticRegression) decision(sample []float64) float64 {
	return floats.Dot(lr.Weights, sample) + lr.Intercept
}

func (lr *LogisticRegression) Predict(X [][]float64) []int {
	return labelsFromProba(lr.PredictProba(X))
}

func (lr *LogisticRegression) PredictProba(X [][]float64) [][]float64 {
	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = probaRow(sigmoid(lr.decision(sample)))
	}
	return proba
}

func (lr *LogisticRegression) Coefficients() [][]float64 {
	if lr.Weights == nil {
		return nil
	}
	return [][]float64{append([]float64(nil), lr.Weights...)}
}

func (lr *LogisticRegression) Reset() {
	lr.Weights = nil
	lr.Intercept = 0
	lr.Classes = nil
	lr.NFeatures = 0
	lr.NIter = 0
}
