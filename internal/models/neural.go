package models

import (
	"fmt"
	"math"
	"math/rand"
)

// NeuralNetwork is a multi-layer perceptron with ReLU hidden layers and a
// single sigmoid output, trained with mini-batch Adam on the log-loss.
// Weights[l][i][j] connects unit i of layer l to unit j of layer l+1.
type NeuralNetwork struct {
	BaseModel
	HiddenLayers  []int
	Alpha         float64
	LearningRate  float64
	MaxIter       int
	BatchSize     int
	NIterNoChange int
	Tol           float64
	Seed          int64
	Weights       [][][]float64
	Biases        [][]float64
	LossCurve     []float64
}

func NewNeuralNetwork(hiddenLayers []int, alpha, learningRate float64, maxIter int, seed int64) *NeuralNetwork {
	if len(hiddenLayers) == 0 {
		hiddenLayers = []int{100}
	}
	if learningRate <= 0 {
		learningRate = 0.001
	}
	if maxIter <= 0 {
		maxIter = 200
	}

	return &NeuralNetwork{
		HiddenLayers:  hiddenLayers,
		Alpha:         alpha,
		LearningRate:  learningRate,
		MaxIter:       maxIter,
		BatchSize:     200,
		NIterNoChange: 10,
		Tol:           1e-4,
		Seed:          seed,
		BaseModel: BaseModel{
			Name: "neural_network",
			Params: map[string]any{
				"hidden_layer_sizes": hiddenLayers,
				"activation":         "relu",
				"solver":             "adam",
				"alpha":              alpha,
				"learning_rate_init": learningRate,
				"max_iter":           maxIter,
			},
		},
	}
}

func (nn *NeuralNetwork) layerSizes() []int {
	sizes := []int{nn.NFeatures}
	sizes = append(sizes, nn.HiddenLayers...)
	return append(sizes, 1)
}

func (nn *NeuralNetwork) initWeights(r *rand.Rand) {
	sizes := nn.layerSizes()
	nn.Weights = make([][][]float64, len(sizes)-1)
	nn.Biases = make([][]float64, len(sizes)-1)

	for l := 0; l < len(sizes)-1; l++ {
		fanIn, fanOut := sizes[l], sizes[l+1]
		factor := 6.0
		if l == len(sizes)-2 {
			factor = 2.0
		}
		bound := math.Sqrt(factor / float64(fanIn+fanOut))

		nn.Weights[l] = make([][]float64, fanIn)
		for i := range nn.Weights[l] {
			nn.Weights[l][i] = make([]float64, fanOut)
			for j := range nn.Weights[l][i] {
				nn.Weights[l][i][j] = (r.Float64()*2 - 1) * bound
			}
		}
		nn.Biases[l] = make([]float64, fanOut)
		for j := range nn.Biases[l] {
			nn.Biases[l][j] = (r.Float64()*2 - 1) * bound
		}
	}
}

// forward returns the activations of every layer, input included.
func (nn *NeuralNetwork) forward(sample []float64) [][]float64 {
	activations := make([][]float64, len(nn.Weights)+1)
	activations[0] = sample

	for l, W := range nn.Weights {
		in := activations[l]
		out := make([]float64, len(nn.Biases[l]))
		copy(out, nn.Biases[l])
		for i, x := range in {
			if x == 0 {
				continue
			}
			for j, w := range W[i] {
				out[j] += x * w
			}
		}

		last := l == len(nn.Weights)-1
		for j := range out {
			if last {
				out[j] = sigmoid(out[j])
			} else if out[j] < 0 {
				out[j] = 0
			}
		}
		activations[l+1] = out
	}

	return activations
}

type adamState struct {
	mW, vW [][][]float64
	mB, vB [][]float64
	t      int
}

func zerosLike(nn *NeuralNetwork) ([][][]float64, [][]float64) {
	gW := make([][][]float64, len(nn.Weights))
	gB := make([][]float64, len(nn.Biases))
	for l := range nn.Weights {
		gW[l] = make([][]float64, len(nn.Weights[l]))
		for i := range gW[l] {
			gW[l][i] = make([]float64, len(nn.Weights[l][i]))
		}
		gB[l] = make([]float64, len(nn.Biases[l]))
	}
	return gW, gB
}

func (nn *NeuralNetwork) Fit(X [][]float64, y []int) error {
	if err := checkTrainingData(X, y); err != nil {
		return fmt.Errorf("failed to fit neural network: %w", err)
	}

	nn.Classes = ExtractClasses(y)
	nn.NFeatures = len(X[0])

	r := rand.New(rand.NewSource(nn.Seed))
	nn.initWeights(r)

	var adam adamState
	adam.mW, adam.mB = zerosLike(nn)
	adam.vW, adam.vB = zerosLike(nn)

	n := len(X)
	batchSize := nn.BatchSize
	if batchSize <= 0 || batchSize > n {
		batchSize = n
	}

	nn.LossCurve = nil
	bestLoss := math.Inf(1)
	noImprove := 0

	for epoch := 0; epoch < nn.MaxIter; epoch++ {
		perm := r.Perm(n)
		epochLoss := 0.0

		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				end = n
			}
			epochLoss += nn.trainBatch(X, y, perm[start:end], &adam) * float64(end-start)
		}

		epochLoss /= float64(n)
		nn.LossCurve = append(nn.LossCurve, epochLoss)

		if epochLoss > bestLoss-nn.Tol {
			noImprove++
		} else {
			noImprove = 0
		}
		if epochLoss < bestLoss {
			bestLoss = epochLoss
		}
		if nn.NIterNoChange > 0 && noImprove >= nn.NIterNoChange {
			break
		}
	}

	return nil
}

// trainBatch applies one Adam update and returns the mean batch loss
// including the L2 penalty.
func (nn *NeuralNetwork) trainBatch(X [][]float64, y []int, batch []int, adam *adamState) float64 {
	gW, gB := zerosLike(nn)
	loss := 0.0
	last := len(nn.Weights) - 1

	for _, idx := range batch {
		acts := nn.forward(X[idx])
		p := acts[len(acts)-1][0]
		target := float64(y[idx])
		pc := math.Min(math.Max(p, 1e-15), 1-1e-15)
		loss -= target*math.Log(pc) + (1-target)*math.Log(1-pc)

		delta := []float64{p - target}
		for l := last; l >= 0; l-- {
			in := acts[l]
			for i, x := range in {
				if x == 0 {
					continue
				}
				for j, d := range delta {
					gW[l][i][j] += x * d
				}
			}
			for j, d := range delta {
				gB[l][j] += d
			}

			if l == 0 {
				break
			}
			prev := make([]float64, len(in))
			for i := range prev {
				if in[i] <= 0 {
					continue
				}
				sum := 0.0
				for j, d := range delta {
					sum += nn.Weights[l][i][j] * d
				}
				prev[i] = sum
			}
			delta = prev
		}
	}

	m := float64(len(batch))
	penalty := 0.0
	for l := range nn.Weights {
		for i := range nn.Weights[l] {
			for j, w := range nn.Weights[l][i] {
				penalty += w * w
				gW[l][i][j] = gW[l][i][j]/m + nn.Alpha*w/m
			}
		}
		for j := range gB[l] {
			gB[l][j] /= m
		}
	}

	nn.adamStep(gW, gB, adam)
	return loss/m + nn.Alpha*penalty/(2*m)
}

func (nn *NeuralNetwork) adamStep(gW [][][]float64, gB [][]float64, adam *adamState) {
	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	adam.t++
	lr := nn.LearningRate * math.Sqrt(1-math.Pow(beta2, float64(adam.t))) / (1 - math.Pow(beta1, float64(adam.t)))

	update := func(param, grad, m, v *float64) {
		*m = beta1**m + (1-beta1)**grad
		*v = beta2**v + (1-beta2)**grad**grad
		*param -= lr * *m / (math.Sqrt(*v) + eps)
	}

	for l := range nn.Weights {
		for i := range nn.Weights[l] {
			for j := range nn.Weights[l][i] {
				update(&nn.Weights[l][i][j], &gW[l][i][j], &adam.mW[l][i][j], &adam.vW[l][i][j])
			}
		}
		for j := range nn.Biases[l] {
			update(&nn.Biases[l][j], &gB[l][j], &adam.mB[l][j], &adam.vB[l][j])
		}
	}
}

func (nn *NeuralNetwork) Predict(X [][]float64) []int {
	return labelsFromProba(nn.PredictProba(X))
}

func (nn *NeuralNetwork) PredictProba(X [][]float64) [][]float64 {
	proba := make([][]float64, len(X))
	for i, sample := range X {
		acts := nn.forward(sample)
		proba[i] = probaRow(acts[len(acts)-1][0])
	}
	return proba
}

func (nn *NeuralNetwork) InputWeights() [][]float64 {
	if len(nn.Weights) == 0 {
		return nil
	}
	out := make([][]float64, len(nn.Weights[0]))
	for i, row := range nn.Weights[0] {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func (nn *NeuralNetwork) Reset() {
	nn.Weights = nil
	nn.Biases = nil
	nn.LossCurve = nil
	nn.Classes = nil
	nn.NFeatures = 0
}
