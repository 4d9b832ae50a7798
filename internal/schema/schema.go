package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Schema is the fixed column layout every dataset is checked against. It is
// loaded once at startup and shared read-only.
type Schema struct {
	Categorical []string
	Numerical   []string
	Meta        []string
	Target      string
	features    []string
}

func Default() *Schema {
	return &Schema{
		Categorical: []string{
			"InternetService", "OnlineSecurity", "TechSupport", "Contract",
			"SeniorCitizen", "Partner", "Dependents", "OnlineBackup",
			"DeviceProtection", "StreamingTV", "StreamingMovies",
			"PaymentMethod", "PaperlessBilling",
		},
		Numerical: []string{"tenure", "TotalCharges", "MonthlyCharges"},
		Meta:      []string{"customerID"},
		Target:    "Churn",
	}
}

// Key is the primary entity column, the first meta column.
func (s *Schema) Key() string {
	if len(s.Meta) == 0 {
		return "customerID"
	}
	return s.Meta[0]
}

// Features lists the model input columns before encoding.
func (s *Schema) Features() []string {
	if len(s.features) > 0 {
		return append([]string(nil), s.features...)
	}
	out := make([]string, 0, len(s.Categorical)+len(s.Numerical))
	out = append(out, s.Categorical...)
	return append(out, s.Numerical...)
}

// Required is meta, then categorical, then numerical columns.
func (s *Schema) Required() []string {
	out := make([]string, 0, len(s.Meta)+len(s.Categorical)+len(s.Numerical))
	out = append(out, s.Meta...)
	out = append(out, s.Categorical...)
	return append(out, s.Numerical...)
}

func (s *Schema) IsNumerical(column string) bool {
	for _, c := range s.Numerical {
		if c == column {
			return true
		}
	}
	return false
}

// stringList accepts either a JSON string or a list of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = stringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = many
	return nil
}

type manifest struct {
	Features    stringList `json:"features"`
	Target      string     `json:"target"`
	Meta        stringList `json:"meta"`
	Categorical stringList `json:"categorical"`
	Numerical   stringList `json:"numerical"`
}

// LoadManifest reads a column_info.json file.
func LoadManifest(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse schema manifest %s: %w", path, err)
	}

	if len(m.Categorical) == 0 && len(m.Numerical) == 0 {
		return nil, fmt.Errorf("schema manifest %s declares no feature columns", path)
	}

	s := &Schema{
		Categorical: m.Categorical,
		Numerical:   m.Numerical,
		Meta:        m.Meta,
		Target:      m.Target,
		features:    m.Features,
	}
	if s.Target == "" {
		s.Target = "Churn"
	}
	return s, nil
}

// LoadOrDefault returns the manifest at path, or the built-in schema when the
// manifest is absent or unreadable. The returned error explains the fallback
// and is informational only.
func LoadOrDefault(path string) (*Schema, error) {
	s, err := LoadManifest(path)
	if err != nil {
		return Default(), err
	}
	return s, nil
}

func (s *Schema) SaveManifest(path string) error {
	m := manifest{
		Features:    s.Features(),
		Target:      s.Target,
		Meta:        s.Meta,
		Categorical: s.Categorical,
		Numerical:   s.Numerical,
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, raw, 0644)
}
