package preprocessing

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Scaler struct {
	ScaleType   string    `json:"scale_type"`
	IsFitted    bool      `json:"is_fitted"`
	FeatureMin  []float64 `json:"feature_min,omitempty"`
	FeatureMax  []float64 `json:"feature_max,omitempty"`
	FeatureMean []float64 `json:"feature_mean,omitempty"`
	FeatureStd  []float64 `json:"feature_std,omitempty"`
}

func NewScaler(scaleType string) *Scaler {
	return &Scaler{
		ScaleType: scaleType,
		IsFitted:  false,
	}
}

func (s *Scaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("empty dataset")
	}

	switch s.ScaleType {
	case "minmax", "normalized":
		s.fitMinMax(X)
	case "standard", "standardized":
		s.fitStandard(X)
	case "raw", "none":
	default:
		return fmt.Errorf("unknown scale type: %s", s.ScaleType)
	}

	s.IsFitted = true
	return nil
}

func (s *Scaler) Width() int {
	switch s.ScaleType {
	case "minmax", "normalized":
		return len(s.FeatureMin)
	case "standard", "standardized":
		return len(s.FeatureMean)
	}
	return 0
}

func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.IsFitted {
		return nil, fmt.Errorf("scaler must be fitted before transform")
	}

	result := make([][]float64, len(X))
	for i := range X {
		result[i] = make([]float64, len(X[i]))
		copy(result[i], X[i])
	}

	if s.ScaleType == "raw" || s.ScaleType == "none" {
		return result, nil
	}

	for i := range result {
		if len(result[i]) != s.Width() {
			return nil, fmt.Errorf("sample %d has %d features, scaler was fitted on %d", i, len(result[i]), s.Width())
		}
		for j := range result[i] {
			switch s.ScaleType {
			case "minmax", "normalized":
				result[i][j] = s.transformMinMax(result[i][j], j)
			case "standard", "standardized":
				result[i][j] = s.transformStandard(result[i][j], j)
			}
		}
	}

	return result, nil
}

func (s *Scaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func column(X [][]float64, j int) []float64 {
	col := make([]float64, len(X))
	for i := range X {
		col[i] = X[i][j]
	}
	return col
}

func (s *Scaler) fitMinMax(X [][]float64) {
	nFeatures := len(X[0])
	s.FeatureMin = make([]float64, nFeatures)
	s.FeatureMax = make([]float64, nFeatures)

	for j := 0; j < nFeatures; j++ {
		col := column(X, j)
		s.FeatureMin[j] = floats.Min(col)
		s.FeatureMax[j] = floats.Max(col)
	}
}

func (s *Scaler) fitStandard(X [][]float64) {
	nFeatures := len(X[0])
	n := float64(len(X))
	s.FeatureMean = make([]float64, nFeatures)
	s.FeatureStd = make([]float64, nFeatures)

	for j := 0; j < nFeatures; j++ {
		mean, variance := stat.MeanVariance(column(X, j), nil)
		// population variance
		if n > 1 {
			variance = variance * (n - 1) / n
		} else {
			variance = 0
		}

		s.FeatureMean[j] = mean
		s.FeatureStd[j] = math.Sqrt(variance)
		if s.FeatureStd[j] == 0 {
			s.FeatureStd[j] = 1
		}
	}
}

func (s *Scaler) transformMinMax(value float64, featureIndex int) float64 {
	range_ := s.FeatureMax[featureIndex] - s.FeatureMin[featureIndex]
	if range_ == 0 {
		return 0
	}
	return (value - s.FeatureMin[featureIndex]) / range_
}

func (s *Scaler) transformStandard(value float64, featureIndex int) float64 {
	return (value - s.FeatureMean[featureIndex]) / s.FeatureStd[featureIndex]
}

func (s *Scaler) Save(filename string) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scaler: %w", err)
	}
	return os.WriteFile(filename, raw, 0644)
}

func LoadScaler(filename string) (*Scaler, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var s Scaler
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode scaler %s: %w", filename, err)
	}
	if !s.IsFitted {
		return nil, fmt.Errorf("scaler %s is not fitted", filename)
	}
	return &s, nil
}
