package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/models"
	"churnpredict/internal/preprocessing"
)

// LoadedModel is a decoded classifier together with everything inference
// needs to feed it.
type LoadedModel struct {
	Model    any
	Family   models.Family
	Features []string
	Scaler   *preprocessing.Scaler
	Path     string
	Strategy string
	Metadata *BundleMetadata
}

func (lm *LoadedModel) Name() string {
	if lm.Metadata != nil && lm.Metadata.ModelName != "" {
		return lm.Metadata.ModelName
	}
	if named, ok := lm.Model.(interface{ GetName() string }); ok {
		return named.GetName()
	}
	return ""
}

type decodeStrategy struct {
	name   string
	decode func(path string) (any, *ModelBundle, error)
}

// decodeStrategies are tried in order on a single file; the first that
// yields a usable model wins.
var decodeStrategies = []decodeStrategy{
	{name: "bundle", decode: func(path string) (any, *ModelBundle, error) {
		b, err := LoadModelBundle(path)
		if err != nil {
			return nil, nil, err
		}
		return b.Model, b, nil
	}},
	{name: "raw", decode: func(path string) (any, *ModelBundle, error) {
		m, err := LoadRawModel(path)
		return m, nil, err
	}},
	{name: "compressed", decode: func(path string) (any, *ModelBundle, error) {
		b, err := LoadCompressedModelBundle(path)
		if err != nil {
			return nil, nil, err
		}
		return b.Model, b, nil
	}},
}

type Loader struct {
	DefaultDir   string
	FallbackPath string
	logger       *zap.Logger
}

func NewLoader(defaultDir, fallbackPath string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		DefaultDir:   defaultDir,
		FallbackPath: fallbackPath,
		logger:       logger,
	}
}

func normalizePath(path string) string {
	return filepath.FromSlash(strings.ReplaceAll(path, `\`, "/"))
}

func (l *Loader) resolve(path string) (string, bool) {
	if fileExists(path) {
		return path, true
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path, false
	}
	alt := filepath.Join(cwd, strings.TrimLeft(path, "/"))
	if fileExists(alt) {
		return alt, true
	}
	return path, false
}

// Load decodes the model at path. When the file exists but cannot be decoded
// the snappy sibling and then the configured fallback model are tried.
func (l *Loader) Load(path string) (*LoadedModel, error) {
	original := path
	resolved, ok := l.resolve(normalizePath(path))
	if !ok {
		return nil, apperrors.NewModelLoadError("model file not found: %s", original)
	}

	lm, err := l.loadWithSibling(resolved)
	if err == nil {
		return l.complete(lm), nil
	}
	l.logger.Warn("model decode failed", zap.String("path", resolved), zap.Error(err))

	if l.FallbackPath != "" {
		fallback, ok := l.resolve(normalizePath(l.FallbackPath))
		if ok && fallback != resolved {
			if lm, ferr := l.loadWithSibling(fallback); ferr == nil {
				lm.Strategy = "fallback/" + lm.Strategy
				l.logger.Warn("using fallback model",
					zap.String("requested", original),
					zap.String("fallback", fallback))
				return l.complete(lm), nil
			}
		}
	}

	return nil, apperrors.NewModelLoadError("could not load a valid model from %s", original).WithCause(err)
}

func (l *Loader) loadWithSibling(path string) (*LoadedModel, error) {
	lm, err := decodeFile(path)
	if err == nil {
		return lm, nil
	}

	if !IsSnappyVariant(path) {
		sibling := ArtifactsFor(path).SnappyPath()
		if fileExists(sibling) {
			if lm, serr := decodeFile(sibling); serr == nil {
				lm.Strategy = "sibling/" + lm.Strategy
				return lm, nil
			}
		}
	}
	return nil, err
}

func decodeFile(path string) (*LoadedModel, error) {
	var errs []string
	for _, s := range decodeStrategies {
		model, bundle, err := s.decode(path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.name, err))
			continue
		}
		if missing := MissingCapabilities(model); len(missing) > 0 {
			errs = append(errs, fmt.Sprintf("%s: decoded value lacks %s", s.name, strings.Join(missing, ", ")))
			continue
		}

		lm := &LoadedModel{
			Model:    model,
			Family:   models.FamilyOf(model),
			Path:     path,
			Strategy: s.name,
		}
		if bundle != nil {
			lm.Metadata = &bundle.Metadata
			lm.Scaler = bundle.Scaler
		}
		return lm, nil
	}
	return nil, fmt.Errorf("no decoder accepted %s (%s)", path, strings.Join(errs, "; "))
}

// MissingCapabilities lists the prediction methods m does not implement.
func MissingCapabilities(m any) []string {
	var missing []string
	if _, ok := m.(models.Predictor); !ok {
		missing = append(missing, "Predict")
	}
	if _, ok := m.(models.ProbabilityPredictor); !ok {
		missing = append(missing, "PredictProba")
	}
	return missing
}

func (l *Loader) complete(lm *LoadedModel) *LoadedModel {
	a := ArtifactsFor(lm.Path)
	name := lm.Name()

	if features, err := LoadFeatures(a.FeaturesPath()); err == nil {
		lm.Features = features
	} else if lm.Metadata != nil && len(lm.Metadata.Features) > 0 {
		lm.Features = lm.Metadata.Features
	} else if name != "" && l.DefaultDir != "" {
		if features, err := LoadFeatures(filepath.Join(l.DefaultDir, name+featureSuffix)); err == nil {
			lm.Features = features
		}
	}
	if lm.Features == nil {
		l.logger.Warn("no feature manifest for model", zap.String("path", lm.Path))
	}

	if lm.Family != models.FamilyNeuralNet {
		lm.Scaler = nil
		return lm
	}
	if lm.Scaler == nil {
		if s, err := preprocessing.LoadScaler(a.ScalerPath()); err == nil {
			lm.Scaler = s
		} else if name != "" && l.DefaultDir != "" {
			if s, err := preprocessing.LoadScaler(filepath.Join(l.DefaultDir, name+scalerSuffix)); err == nil {
				lm.Scaler = s
			}
		}
	}
	if lm.Scaler == nil {
		l.logger.Warn("neural model loaded without scaler", zap.String("path", lm.Path))
	}
	return lm
}
