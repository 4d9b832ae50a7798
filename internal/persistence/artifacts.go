package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	modelExt      = ".model"
	snappySuffix  = "_snappy"
	featureSuffix = "_features.json"
	scalerSuffix  = "_scaler.json"
)

// Artifacts names the files that make up one saved model. Base is the model
// path without its extension or variant suffix.
type Artifacts struct {
	Base string
}

func ArtifactsFor(modelPath string) Artifacts {
	base := strings.TrimSuffix(modelPath, modelExt)
	base = strings.TrimSuffix(base, snappySuffix)
	return Artifacts{Base: base}
}

func (a Artifacts) ModelPath() string {
	return a.Base + modelExt
}

func (a Artifacts) SnappyPath() string {
	return a.Base + snappySuffix + modelExt
}

func (a Artifacts) FeaturesPath() string {
	return a.Base + featureSuffix
}

func (a Artifacts) ScalerPath() string {
	return a.Base + scalerSuffix
}

func IsSnappyVariant(path string) bool {
	return strings.HasSuffix(strings.TrimSuffix(path, modelExt), snappySuffix)
}

// SaveArtifacts writes the bundle, its snappy variant, the feature manifest
// and, when present, the scaler. featuresPath may be empty to use the
// companion name.
func SaveArtifacts(bundle *ModelBundle, modelPath, featuresPath string) (Artifacts, error) {
	a := ArtifactsFor(modelPath)
	if featuresPath == "" {
		featuresPath = a.FeaturesPath()
	}

	if err := bundle.Save(modelPath); err != nil {
		return a, fmt.Errorf("failed to save model: %w", err)
	}
	if err := bundle.SaveCompressed(a.SnappyPath()); err != nil {
		return a, fmt.Errorf("failed to save compressed model: %w", err)
	}
	if err := SaveFeatures(featuresPath, bundle.Metadata.Features); err != nil {
		return a, err
	}
	if featuresPath != a.FeaturesPath() {
		if err := SaveFeatures(a.FeaturesPath(), bundle.Metadata.Features); err != nil {
			return a, err
		}
	}
	if bundle.Scaler != nil {
		if err := bundle.Scaler.Save(a.ScalerPath()); err != nil {
			return a, fmt.Errorf("failed to save scaler: %w", err)
		}
	}

	return a, nil
}

func SaveFeatures(path string, features []string) error {
	if features == nil {
		features = []string{}
	}
	raw, err := json.MarshalIndent(features, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feature manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write feature manifest: %w", err)
	}
	return nil
}

func LoadFeatures(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var features []string
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, fmt.Errorf("failed to decode feature manifest %s: %w", path, err)
	}
	return features, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
