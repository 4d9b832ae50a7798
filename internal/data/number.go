package data

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var nullTokens = map[string]bool{
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
	"<NA>": true,
}

// IsMissing reports whether a cell counts as absent: blank, whitespace only,
// or one of the common null tokens written by spreadsheet and dataframe exports.
func IsMissing(cell string) bool {
	trimmed := strings.TrimSpace(cell)
	return trimmed == "" || nullTokens[trimmed]
}

func ParseNumber(cell string) (float64, error) {
	trimmed := strings.TrimSpace(cell)
	if IsMissing(trimmed) {
		return 0, fmt.Errorf("missing value")
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q as number: %w", cell, err)
	}

	f, _ := d.Float64()
	return f, nil
}

func IsNumber(cell string) bool {
	_, err := ParseNumber(cell)
	return err == nil
}

func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Round returns v rounded half away from zero to the given number of places.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
