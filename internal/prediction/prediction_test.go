package prediction

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/evaluation"
	"churnpredict/internal/importance"
	"churnpredict/internal/inference"
	"churnpredict/internal/persistence"
	"churnpredict/internal/schema"
	"churnpredict/internal/store"
	"churnpredict/internal/trainer"
)

func TestSafeName(t *testing.T) {
	assert.Equal(t, "Q1_report_", SafeName("Q1 report!"))
	assert.Equal(t, "abc123", SafeName("abc123"))
	assert.Equal(t, "prediction", SafeName(""))
}

func TestWriterSave(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, zap.NewNop())
	w.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ds := data.NewDataset([]string{"customerID", "tenure"}, [][]string{{"a", "1"}, {"b", "2"}})
	path, filename, err := w.WithRole(store.RoleDeveloper).Save(ds, []int{1, 0}, [][]float64{{0.1234567, 0.8765433}, {0.9, 0.1}}, "Q1 report")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^Q1_report_20260102_030405_[0-9a-f]{8}\.csv$`), filename)
	assert.Equal(t, filepath.Join(root, "dev", "predictionResult", filename), path)

	saved, err := data.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"customerID", "tenure", PredictionColumn, ProbabilityColumn}, saved.Columns)
	assert.Equal(t, []string{"a", "1", "Yes", "0.876543"}, saved.Rows[0])
	assert.Equal(t, []string{"b", "2", "No", "0.1"}, saved.Rows[1])

	assert.Equal(t, []string{"customerID", "tenure"}, ds.Columns)
}

func TestWriterUniqueNames(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	ds := data.NewDataset([]string{"x"}, [][]string{{"1"}})

	_, first, err := w.Save(ds, []int{0}, [][]float64{{1, 0}}, "same")
	require.NoError(t, err)
	_, second, err := w.Save(ds, []int{0}, [][]float64{{1, 0}}, "same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestWriterRejectsLengthMismatch(t *testing.T) {
	ds := data.NewDataset([]string{"x"}, [][]string{{"1"}, {"2"}})
	_, _, err := NewWriter(t.TempDir(), nil).Save(ds, []int{0}, [][]float64{{1, 0}}, "n")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDatasetIO))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]int{1, 0, 0, 1, 1})
	assert.Equal(t, 5, s.TotalRecords)
	assert.Equal(t, 3, s.ChurnDistribution.Churn)
	assert.Equal(t, 2, s.ChurnDistribution.NoChurn)
	assert.InDelta(t, 0.6, s.ChurnDistribution.ChurnRate, 1e-12)

	assert.Equal(t, Summary{}, Summarize(nil))
}

type fixture struct {
	service *Service
	store   *store.MemoryStore
	modelID int64
	dir     string
	sample  *data.Dataset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := schema.Default()
	dir := t.TempDir()

	sample := s.Sample(200, 9)
	trainPath := filepath.Join(dir, "train.csv")
	require.NoError(t, data.WriteFile(sample, trainPath))

	tr := trainer.New(s, nil)
	tr.Config.NTrees = 20
	modelPath := filepath.Join(dir, "models", "gradient_boosting_v1.model")
	result := tr.Train(trainPath, modelPath, "")
	require.True(t, result.OK, result.Message)

	st := store.NewMemoryStore()
	id, err := st.RegisterModel(context.Background(), &store.Model{
		Name: "Default GB", Version: "1", FilePath: modelPath, ModelType: "gradient_boosting", IsDefault: true,
	}, evaluation.Summary{})
	require.NoError(t, err)

	service := NewService(
		schema.NewRegistry(s, nil),
		persistence.NewLoader(filepath.Join(dir, "models"), "", nil),
		inference.NewEngine(s, 50, nil),
		importance.NewResolver(nil),
		NewWriter(filepath.Join(dir, "results"), nil),
		st,
		zap.NewNop(),
	)
	return &fixture{service: service, store: st, modelID: id, dir: dir, sample: sample}
}

func TestServiceProcess(t *testing.T) {
	f := newFixture(t)

	input := f.sample.Drop("Churn")
	idx, _ := input.ColumnIndex("TotalCharges")
	input.Rows[0][idx] = ""
	inputPath := filepath.Join(f.dir, "upload.csv")
	require.NoError(t, data.WriteFile(input, inputPath))

	resp, err := f.service.Process(context.Background(), Request{
		FilePath: inputPath, ModelID: f.modelID, Name: "march run", Role: store.RoleUser, UserID: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.TotalRecords)
	assert.Equal(t, 200, resp.ChurnDistribution.Churn+resp.ChurnDistribution.NoChurn)
	assert.Equal(t, "/api/predictions/1/download", resp.DownloadURL)
	assert.Equal(t, "Default GB", resp.ModelName)

	require.NotEmpty(t, resp.FeatureImportance)
	assert.LessOrEqual(t, len(resp.FeatureImportance), importance.TopN)
	total := 0.0
	for _, e := range resp.FeatureImportance {
		total += e.Importance
	}
	assert.InDelta(t, 1.0, total, 1e-6)

	assert.FileExists(t, resp.ResultPath)
	assert.Equal(t, filepath.Join(f.dir, "results", "user", "predictionResult"), filepath.Dir(resp.ResultPath))

	recorded := f.store.Predictions()
	require.Len(t, recorded, 1)
	assert.Equal(t, "upload.csv", recorded[0].Input.FileName)
	assert.Equal(t, int64(7), recorded[0].UserID)
	assert.Equal(t, filepath.Base(resp.ResultPath), recorded[0].ResultFile)
}

func TestServiceErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inputPath := filepath.Join(f.dir, "upload.csv")
	require.NoError(t, data.WriteFile(f.sample, inputPath))

	_, err := f.service.Process(ctx, Request{FilePath: inputPath, ModelID: 42})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindModelLoad))

	broken := f.sample.Drop("tenure", "Contract")
	brokenPath := filepath.Join(f.dir, "broken.csv")
	require.NoError(t, data.WriteFile(broken, brokenPath))
	_, err = f.service.Process(ctx, Request{FilePath: brokenPath, ModelID: f.modelID})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Contains(t, err.Error(), "tenure")
	assert.Contains(t, err.Error(), "Contract")

	_, err = f.service.Process(ctx, Request{FilePath: filepath.Join(f.dir, "upload.xlsx"), ModelID: f.modelID})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDatasetIO))

	id, err := f.store.RegisterModel(ctx, &store.Model{Name: "gone", FilePath: filepath.Join(f.dir, "gone.model")}, evaluation.Summary{})
	require.NoError(t, err)
	_, err = f.service.Process(ctx, Request{FilePath: inputPath, ModelID: id})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindModelLoad))

	assert.Empty(t, f.store.Predictions())
}
