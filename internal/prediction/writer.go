package prediction

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/preprocessing"
	"churnpredict/internal/store"
)

const (
	PredictionColumn  = "Churn_Prediction"
	ProbabilityColumn = "Churn_Probability"

	probabilityPlaces = 6
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]`)

// SafeName replaces every character that is not a letter or digit with '_'.
func SafeName(name string) string {
	if name == "" {
		return "prediction"
	}
	return unsafeChars.ReplaceAllString(name, "_")
}

type Writer struct {
	ResultRoot string
	Role       string
	logger     *zap.Logger
	now        func() time.Time
}

func NewWriter(resultRoot string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		ResultRoot: resultRoot,
		Role:       store.RoleUser,
		logger:     logger,
		now:        time.Now,
	}
}

// WithRole returns a copy of w writing under the role's directory.
func (w *Writer) WithRole(role string) *Writer {
	out := *w
	if role == store.RoleDeveloper {
		out.Role = store.RoleDeveloper
	} else {
		out.Role = store.RoleUser
	}
	return &out
}

func (w *Writer) Dir() string {
	return filepath.Join(w.ResultRoot, w.Role, "predictionResult")
}

// Save writes ds with the prediction and probability columns appended to a
// uniquely named CSV file and returns its path and file name.
func (w *Writer) Save(ds *data.Dataset, labels []int, proba [][]float64, name string) (string, string, error) {
	if len(labels) != ds.Len() || len(proba) != ds.Len() {
		return "", "", apperrors.NewDatasetIOError("prediction count %d does not match %d rows", len(labels), ds.Len())
	}

	predictions, err := preprocessing.NewTargetEncoder().InverseTransform(labels)
	if err != nil {
		return "", "", apperrors.NewDatasetIOError("invalid prediction labels").WithCause(err)
	}
	probabilities := make([]string, len(proba))
	for i := range proba {
		probabilities[i] = data.FormatNumber(data.Round(proba[i][1], probabilityPlaces))
	}

	out := ds.Copy()
	if err := out.SetColumn(PredictionColumn, predictions); err != nil {
		return "", "", apperrors.NewDatasetIOError("error adding predictions").WithCause(err)
	}
	if err := out.SetColumn(ProbabilityColumn, probabilities); err != nil {
		return "", "", apperrors.NewDatasetIOError("error adding probabilities").WithCause(err)
	}

	filename := fmt.Sprintf("%s_%s_%s.csv",
		SafeName(name),
		w.now().Format("20060102_150405"),
		uuid.NewString()[:8])
	path := filepath.Join(w.Dir(), filename)

	if err := data.WriteFile(out, path); err != nil {
		return "", "", apperrors.NewDatasetIOError("error saving prediction results").WithCause(err)
	}

	w.logger.Info("prediction results saved", zap.String("path", path), zap.Int("rows", out.Len()))
	return path, filename, nil
}

type Distribution struct {
	Churn     int     `json:"churn"`
	NoChurn   int     `json:"no_churn"`
	ChurnRate float64 `json:"churn_rate"`
}

type Summary struct {
	TotalRecords      int          `json:"total_records"`
	ChurnDistribution Distribution `json:"churn_distribution"`
}

func Summarize(labels []int) Summary {
	churn := 0
	for _, label := range labels {
		if label == 1 {
			churn++
		}
	}

	s := Summary{
		TotalRecords: len(labels),
		ChurnDistribution: Distribution{
			Churn:   churn,
			NoChurn: len(labels) - churn,
		},
	}
	if len(labels) > 0 {
		s.ChurnDistribution.ChurnRate = float64(churn) / float64(len(labels))
	}
	return s
}
