package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpredict/internal/config"
	"churnpredict/internal/evaluation"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db.local", Port: 3307, User: "churn", Password: "s3cret", Name: "fyp_db"})
	assert.Equal(t, "churn:s3cret@tcp(db.local:3307)/fyp_db?parseTime=true", dsn)
}

func TestOpenWithoutDatabaseUsesMemory(t *testing.T) {
	s, err := Open(context.Background(), config.Default(), nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, s.Close())
}

func TestTypeKey(t *testing.T) {
	assert.Equal(t, "gradient_boosting", TypeKey(" Gradient Boosting "))
	assert.Equal(t, "neural_network", TypeKey("neural_network"))
}

func TestMemoryLatestDataset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.LatestDataset(ctx, "CCP1")
	assert.ErrorIs(t, err, ErrNotFound)

	origID, err := s.RegisterDataset(ctx, &Dataset{Name: "telco", FilePath: "datasets/telco.csv", IsOriginal: true})
	require.NoError(t, err)

	d, err := s.LatestDataset(ctx, "CCP1")
	require.NoError(t, err)
	assert.Equal(t, origID, d.ID)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.RegisterDataset(ctx, &Dataset{CompanyID: "CCP1", Name: "c1", IsCombined: true, CreatedAt: base})
	require.NoError(t, err)
	newest, err := s.RegisterDataset(ctx, &Dataset{CompanyID: "CCP1", Name: "c2", IsCombined: true, CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.RegisterDataset(ctx, &Dataset{CompanyID: "CCP2", Name: "other", IsCombined: true, CreatedAt: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	_, err = s.RegisterDataset(ctx, &Dataset{CompanyID: "CCP1", Name: "upload", IsUploaded: true, CreatedAt: base.Add(3 * time.Hour)})
	require.NoError(t, err)

	d, err = s.LatestDataset(ctx, "CCP1")
	require.NoError(t, err)
	assert.Equal(t, newest, d.ID)
	assert.Equal(t, "c2", d.Name)
}

func TestMemoryModelVersionsAndMetrics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v, err := s.NextModelVersion(ctx, "CCP1", "gradient_boosting")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, found, err := s.PreviousModelMetrics(ctx, "CCP1", "gradient_boosting")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.RegisterModel(ctx, &Model{Name: "default gb", Version: "1", ModelType: "Gradient Boosting", IsDefault: true},
		evaluation.Summary{Accuracy: 0.79})
	require.NoError(t, err)

	prev, found, err := s.PreviousModelMetrics(ctx, "CCP1", "gradient_boosting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0.79, prev.Accuracy)

	for _, version := range []string{"2", "10", "3"} {
		_, err := s.RegisterModel(ctx, &Model{CompanyID: "CCP1", Version: version, ModelType: "gradient_boosting"},
			evaluation.Summary{Accuracy: float64(len(version)) / 10})
		require.NoError(t, err)
	}

	v, err = s.NextModelVersion(ctx, "CCP1", "gradient_boosting")
	require.NoError(t, err)
	assert.Equal(t, "11", v)

	v, err = s.NextModelVersion(ctx, "CCP2", "gradient_boosting")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	prev, found, err = s.PreviousModelMetrics(ctx, "CCP1", "gradient_boosting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0.2, prev.Accuracy)

	m, err := s.GetModel(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "10", m.Version)

	_, err = s.GetModel(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRecordPrediction(t *testing.T) {
	s := NewMemoryStore()
	id, err := s.RecordPrediction(context.Background(), &Prediction{Name: "q1", Role: RoleUser, ModelID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	recorded := s.Predictions()
	require.Len(t, recorded, 1)
	assert.Equal(t, "q1", recorded[0].Name)
	assert.False(t, recorded[0].CreatedAt.IsZero())
}
