package persistence

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"

	"churnpredict/internal/evaluation"
	"churnpredict/internal/models"
	"churnpredict/internal/preprocessing"
)

type ModelBundle struct {
	Model     models.Model
	Scaler    *preprocessing.Scaler
	Metadata  BundleMetadata
	CreatedAt time.Time
}

type BundleMetadata struct {
	ModelName    string
	Version      string
	Dataset      string
	Metrics      evaluation.Summary
	TrainingTime time.Duration
	Features     []string
	Parameters   map[string]any
}

// rawEnvelope is the model-only format: no metadata, no scaler.
type rawEnvelope struct {
	Model any
}

func NewModelBundle(model models.Model, features []string) *ModelBundle {
	return &ModelBundle{
		Model:     model,
		CreatedAt: time.Now(),
		Metadata: BundleMetadata{
			ModelName:  model.GetName(),
			Features:   features,
			Parameters: model.GetParams(),
		},
	}
}

func (mb *ModelBundle) Encode(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(mb); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	return nil
}

func DecodeModelBundle(r io.Reader) (*ModelBundle, error) {
	var bundle ModelBundle
	if err := gob.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if bundle.Model == nil {
		return nil, fmt.Errorf("bundle holds no model")
	}
	return &bundle, nil
}

func (mb *ModelBundle) Save(filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		return mb.Encode(w)
	})
}

// SaveCompressed writes the bundle as a snappy framed stream.
func (mb *ModelBundle) SaveCompressed(filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		sw := snappy.NewBufferedWriter(w)
		if err := mb.Encode(sw); err != nil {
			return err
		}
		return sw.Close()
	})
}

func LoadModelBundle(filename string) (*ModelBundle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return DecodeModelBundle(bufio.NewReader(file))
}

func LoadCompressedModelBundle(filename string) (*ModelBundle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return DecodeModelBundle(snappy.NewReader(file))
}

// SaveRawModel writes only the model value, without the bundle wrapper.
func SaveRawModel(model any, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		if err := gob.NewEncoder(w).Encode(rawEnvelope{Model: model}); err != nil {
			return fmt.Errorf("failed to encode model: %w", err)
		}
		return nil
	})
}

func LoadRawModel(filename string) (any, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var env rawEnvelope
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if env.Model == nil {
		return nil, fmt.Errorf("file holds no model")
	}
	return env.Model, nil
}

func (mb *ModelBundle) Describe(w io.Writer) {
	fmt.Fprintf(w, "Model: %s\n", mb.Metadata.ModelName)
	if mb.Metadata.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", mb.Metadata.Version)
	}
	fmt.Fprintf(w, "Dataset: %s\n", mb.Metadata.Dataset)
	fmt.Fprintf(w, "Created: %s\n", mb.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Features: %d\n", len(mb.Metadata.Features))
	fmt.Fprintf(w, "Accuracy: %.4f\n", mb.Metadata.Metrics.Accuracy)
	fmt.Fprintf(w, "Precision: %.4f\n", mb.Metadata.Metrics.Precision)
	fmt.Fprintf(w, "Recall: %.4f\n", mb.Metadata.Metrics.Recall)
	fmt.Fprintf(w, "F1 Score: %.4f\n", mb.Metadata.Metrics.F1Score)
	fmt.Fprintf(w, "Training Time: %v\n", mb.Metadata.TrainingTime)
}

func writeFile(filename string, encode func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	w := bufio.NewWriter(file)
	if err := encode(w); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return file.Close()
}
