package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

type StreamingReader struct {
	file      *os.File
	reader    *csv.Reader
	headers   []string
	batchSize int
}

func NewStreamingReader(filename string, delimiter rune, batchSize int) (*StreamingReader, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := csv.NewReader(bufio.NewReader(file))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		file.Close()
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	for i, h := range headers {
		h = strings.TrimPrefix(h, "\ufeff")
		headers[i] = strings.TrimSpace(h)
	}

	return &StreamingReader{
		file:      file,
		reader:    reader,
		headers:   headers,
		batchSize: batchSize,
	}, nil
}

// ReadBatch returns up to batchSize rows as a dataset sharing the file's
// header. Short rows are padded with empty cells, long rows are rejected.
// io.EOF is returned once no rows remain.
func (sr *StreamingReader) ReadBatch() (*Dataset, error) {
	rows := make([][]string, 0, sr.batchSize)
	width := len(sr.headers)

	for len(rows) < sr.batchSize {
		record, err := sr.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record: %w", err)
		}

		if len(record) == 1 && strings.TrimSpace(record[0]) == "" && width > 1 {
			continue
		}
		if len(record) > width {
			line, _ := sr.reader.FieldPos(0)
			return nil, fmt.Errorf("line %d has %d fields, header has %d", line, len(record), width)
		}
		for len(record) < width {
			record = append(record, "")
		}

		rows = append(rows, record)
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}
	return NewDataset(sr.headers, rows), nil
}

func (sr *StreamingReader) GetHeaders() []string {
	return sr.headers
}

func (sr *StreamingReader) Close() error {
	return sr.file.Close()
}

// ProcessLargeFile streams a delimited file through processor one batch at a time.
func ProcessLargeFile(filename string, batchSize int, processor func(*Dataset) error) error {
	delimiter, err := SniffDelimiter(filename)
	if err != nil {
		return err
	}

	reader, err := NewStreamingReader(filename, delimiter, batchSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	batchNum := 0
	for {
		batch, err := reader.ReadBatch()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading batch %d: %w", batchNum, err)
		}

		if err := processor(batch); err != nil {
			return fmt.Errorf("error processing batch %d: %w", batchNum, err)
		}

		batchNum++
	}

	return nil
}
