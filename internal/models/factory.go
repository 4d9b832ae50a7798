package models

import (
	"fmt"
)

type ModelConfig struct {
	Algorithm    string  `yaml:"algorithm"`
	MaxDepth     int     `yaml:"max_depth"`
	MinSplit     int     `yaml:"min_samples_split"`
	MinLeaf      int     `yaml:"min_samples_leaf"`
	NTrees       int     `yaml:"n_estimators"`
	MaxFeatures  int     `yaml:"max_features"`
	LearningRate float64 `yaml:"learning_rate"`
	Subsample    float64 `yaml:"subsample"`
	C            float64 `yaml:"c"`
	Balanced     bool    `yaml:"balanced"`
	HiddenLayers []int   `yaml:"hidden_layers"`
	Alpha        float64 `yaml:"alpha"`
	MaxIter      int     `yaml:"max_iter"`
	Seed         int64   `yaml:"seed"`
	NeedsScaling bool    `yaml:"needs_scaling"`
}

const (
	AlgorithmDecisionTree       = "decision_tree"
	AlgorithmRandomForest       = "random_forest"
	AlgorithmGradientBoosting   = "gradient_boosting"
	AlgorithmLogisticRegression = "logistic_regression"
	AlgorithmNeuralNetwork      = "neural_network"
)

// Algorithms lists every supported family in bootstrap order.
func Algorithms() []string {
	return []string{
		AlgorithmGradientBoosting,
		AlgorithmLogisticRegression,
		AlgorithmRandomForest,
		AlgorithmNeuralNetwork,
		AlgorithmDecisionTree,
	}
}

func CreateModel(config ModelConfig) (Model, error) {
	switch config.Algorithm {
	case AlgorithmDecisionTree:
		tree := NewDecisionTree(config.MaxDepth, config.MinSplit, config.MinLeaf)
		tree.Balanced = config.Balanced
		tree.Seed = config.Seed
		return tree, nil

	case AlgorithmRandomForest:
		if config.NTrees <= 0 {
			config.NTrees = 100
		}
		if config.MaxDepth <= 0 {
			config.MaxDepth = 10
		}
		if config.MinSplit <= 0 {
			config.MinSplit = 2
		}
		forest := NewRandomForest(config.NTrees, config.MaxDepth, config.MinSplit, config.MaxFeatures)
		forest.Balanced = config.Balanced
		forest.Seed = config.Seed
		return forest, nil

	case AlgorithmGradientBoosting:
		return NewGradientBoosting(config.NTrees, config.LearningRate, config.MaxDepth, config.MinSplit, config.Subsample, config.Seed), nil

	case AlgorithmLogisticRegression:
		return NewLogisticRegression(config.C, config.Balanced, config.MaxIter), nil

	case AlgorithmNeuralNetwork:
		return NewNeuralNetwork(config.HiddenLayers, config.Alpha, config.LearningRate, config.MaxIter, config.Seed), nil

	default:
		return nil, fmt.Errorf("unknown algorithm: %s", config.Algorithm)
	}
}

// DefaultConfig returns the fixed production hyperparameters of a family.
func DefaultConfig(algorithm string) ModelConfig {
	config := ModelConfig{Algorithm: algorithm, Seed: 42}

	switch algorithm {
	case AlgorithmGradientBoosting:
		config.NTrees = 400
		config.LearningRate = 0.01
		config.MaxDepth = 5
		config.MinSplit = 2
		config.Subsample = 0.8
	case AlgorithmLogisticRegression:
		config.C = 0.017
		config.Balanced = true
		config.MaxIter = 1000
	case AlgorithmRandomForest:
		config.NTrees = 150
		config.MaxFeatures = 6
		config.MaxDepth = 20
		config.MinSplit = 5
		config.Balanced = true
	case AlgorithmNeuralNetwork:
		config.HiddenLayers = []int{100, 50}
		config.Alpha = 0.01
		config.LearningRate = 0.001
		config.MaxIter = 500
		config.NeedsScaling = true
	case AlgorithmDecisionTree:
		config.MaxDepth = 6
		config.MinSplit = 5
		config.MinLeaf = 9
	}

	return config
}
