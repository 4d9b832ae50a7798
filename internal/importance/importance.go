package importance

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"churnpredict/internal/models"
)

// TopN is the number of entries returned to callers.
const TopN = 5

type Entry struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// domainRanking orders the features known to drive churn, most important first.
var domainRanking = []string{
	"tenure", "Contract", "TotalCharges", "MonthlyCharges", "InternetService",
	"OnlineSecurity", "TechSupport", "PaymentMethod", "PaperlessBilling",
}

// Fixed is returned when neither the model nor the feature names give
// anything to rank.
func Fixed() []Entry {
	return []Entry{
		{Feature: "tenure", Importance: 0.33},
		{Feature: "TotalCharges", Importance: 0.27},
		{Feature: "MonthlyCharges", Importance: 0.20},
		{Feature: "Contract", Importance: 0.13},
		{Feature: "InternetService", Importance: 0.07},
	}
}

type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve returns at most TopN entries whose weights sum to one. It never fails.
func (r *Resolver) Resolve(model any, featureNames []string) []Entry {
	scores, source := Scores(model)
	if usable(scores) {
		if len(scores) != len(featureNames) {
			r.logger.Warn("importance length mismatch",
				zap.Int("scores", len(scores)),
				zap.Int("features", len(featureNames)))
		}
		entries := pair(featureNames, scores)
		if len(entries) > 0 {
			r.logger.Debug("feature importance from model", zap.String("source", source))
			return top(entries, TopN)
		}
	}

	r.logger.Info("using domain feature ranking", zap.Int("features", len(featureNames)))
	if entries := Domain(featureNames); len(entries) > 0 {
		return entries
	}
	return Fixed()
}

// Scores extracts raw per-feature scores from whichever capability the model
// exposes, and names the capability used.
func Scores(model any) ([]float64, string) {
	switch m := model.(type) {
	case models.ImportanceProvider:
		return m.FeatureImportances(), "feature_importances"
	case models.CoefficientProvider:
		coef := m.Coefficients()
		if len(coef) == 0 {
			return nil, "coefficients"
		}
		out := make([]float64, len(coef[0]))
		for i, c := range coef[0] {
			out[i] = math.Abs(c)
		}
		return out, "coefficients"
	case models.WeightProvider:
		weights := m.InputWeights()
		out := make([]float64, len(weights))
		for i, row := range weights {
			for _, w := range row {
				out[i] += math.Abs(w)
			}
		}
		return out, "input_weights"
	}
	return nil, ""
}

// Ranked returns every feature with its share of the model's total score,
// sorted descending. It is nil when the model offers no usable scores.
func Ranked(model any, featureNames []string) []Entry {
	scores, _ := Scores(model)
	if !usable(scores) {
		return nil
	}
	entries := pair(featureNames, scores)
	sortDesc(entries)
	renormalize(entries)
	return entries
}

// Domain ranks featureNames against the known churn drivers. One-hot dummies
// match their source column by prefix.
func Domain(featureNames []string) []Entry {
	var entries []Entry
	taken := make(map[string]bool)

	for i, key := range domainRanking {
		weight := math.Max(1.0-0.1*float64(i), 0.1)
		for _, name := range featureNames {
			if name == key || strings.HasPrefix(name, key+"_") {
				entries = append(entries, Entry{Feature: name, Importance: weight})
				taken[name] = true
			}
		}
	}

	for _, name := range featureNames {
		if len(entries) >= TopN {
			break
		}
		if !taken[name] {
			entries = append(entries, Entry{Feature: name, Importance: 0.05})
			taken[name] = true
		}
	}

	if len(entries) == 0 {
		return nil
	}
	return top(entries, TopN)
}

func usable(scores []float64) bool {
	if len(scores) == 0 {
		return false
	}
	for _, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return false
		}
	}
	return true
}

func pair(names []string, scores []float64) []Entry {
	n := len(names)
	if len(scores) < n {
		n = len(scores)
	}
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = Entry{Feature: names[i], Importance: scores[i]}
	}
	return entries
}

func sortDesc(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Importance > entries[j].Importance
	})
}

func top(entries []Entry, n int) []Entry {
	sortDesc(entries)
	if len(entries) > n {
		entries = entries[:n]
	}
	out := append([]Entry(nil), entries...)
	renormalize(out)
	return out
}

// renormalize scales weights to sum to one; an all-zero set gets equal weights.
func renormalize(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	weights := make([]float64, len(entries))
	for i, e := range entries {
		weights[i] = e.Importance
	}

	total := floats.Sum(weights)
	if total <= 0 {
		for i := range entries {
			entries[i].Importance = 1 / float64(len(entries))
		}
		return
	}
	floats.Scale(1/total, weights)
	for i := range entries {
		entries[i].Importance = weights[i]
	}
}
