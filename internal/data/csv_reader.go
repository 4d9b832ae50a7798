package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"churnpredict/internal/apperrors"
)

const defaultReadBatch = 5000

// ReadFile loads a flat delimited dataset. The format is chosen by extension:
// .csv is comma separated, .tsv and .tab are tab separated and .txt has its
// delimiter sniffed from the header line.
func ReadFile(path string) (*Dataset, error) {
	delimiter, err := delimiterFor(path)
	if err != nil {
		return nil, err
	}

	reader, err := NewStreamingReader(path, delimiter, defaultReadBatch)
	if err != nil {
		return nil, apperrors.NewDatasetIOError("failed to read dataset %s", path).WithCause(err)
	}
	defer reader.Close()

	ds := NewDataset(reader.GetHeaders(), nil)
	ds.Source = path
	for {
		batch, err := reader.ReadBatch()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewDatasetIOError("failed to read dataset %s", path).WithCause(err)
		}
		ds.Rows = append(ds.Rows, batch.Rows...)
	}

	return ds, nil
}

func delimiterFor(path string) (rune, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ',', nil
	case ".tsv", ".tab":
		return '\t', nil
	case ".txt":
		d, err := SniffDelimiter(path)
		if err != nil {
			return 0, apperrors.NewDatasetIOError("failed to read dataset %s", path).WithCause(err)
		}
		return d, nil
	default:
		return 0, apperrors.NewDatasetIOError("unsupported file format: %s", filepath.Ext(path))
	}
}

// SniffDelimiter picks whichever of comma, semicolon or tab occurs most often
// in the first line of the file. Comma wins ties.
func SniffDelimiter(path string) (rune, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	line, err := bufio.NewReader(file).ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to read header line: %w", err)
	}

	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best, nil
}

// WriteFile writes the dataset as comma separated text, creating parent
// directories as needed.
func WriteFile(ds *Dataset, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewDatasetIOError("failed to create directory %s", dir).WithCause(err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewDatasetIOError("failed to create %s", path).WithCause(err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(ds.Columns); err != nil {
		return apperrors.NewDatasetIOError("failed to write header to %s", path).WithCause(err)
	}
	if err := writer.WriteAll(ds.Rows); err != nil {
		return apperrors.NewDatasetIOError("failed to write rows to %s", path).WithCause(err)
	}

	return nil
}
