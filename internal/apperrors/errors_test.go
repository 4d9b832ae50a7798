package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewDatasetIOError("failed to write %s", "out.csv").WithCause(cause)

	assert.Equal(t, "failed to write out.csv: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindDatasetIO, err.Kind)
}

func TestIsKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("predict: %w", NewInferenceError("model has no PredictProba capability"))

	assert.True(t, IsKind(err, KindInference))
	assert.False(t, IsKind(err, KindValidation))
	assert.Equal(t, KindInference, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestFromPanic(t *testing.T) {
	err := FromPanic(KindTraining, "index out of range")
	assert.Equal(t, KindTraining, err.Kind)
	assert.Contains(t, err.Error(), "index out of range")

	cause := errors.New("boom")
	err = FromPanic(KindTraining, cause)
	assert.ErrorIs(t, err, cause)
}
