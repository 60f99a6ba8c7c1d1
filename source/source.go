package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/viant/afs"
)

// Format identifies the record encoding of a source.
type Format int

const (
	// FormatJSONL is one JSON object per line.
	FormatJSONL Format = iota
	// FormatCSV is one id,v1,v2,... row per line with an optional header.
	FormatCSV
)

// Record is a single point read from a source.
type Record struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// DetectFormat infers the format from the URL extension, defaulting to JSON lines.
func DetectFormat(URL string) Format {
	switch strings.ToLower(path.Ext(URL)) {
	case ".csv":
		return FormatCSV
	default:
		return FormatJSONL
	}
}

// Loader reads point records through an afs service.
type Loader struct {
	fs afs.Service
}

// New creates a loader backed by the default afs service.
func New() *Loader {
	return &Loader{fs: afs.New()}
}

// NewWithService creates a loader backed by the supplied afs service.
func NewWithService(fs afs.Service) *Loader {
	return &Loader{fs: fs}
}

// Load reads every record at URL and returns parallel ids and vectors.
func (l *Loader) Load(ctx context.Context, URL string) ([]string, [][]float32, error) {
	ok, err := l.fs.Exists(ctx, URL)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %s: %w", URL, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("source: %s not found", URL)
	}
	data, err := l.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, nil, fmt.Errorf("source: download %s: %w", URL, err)
	}
	records, err := Parse(data, DetectFormat(URL))
	if err != nil {
		return nil, nil, fmt.Errorf("source: %s: %w", URL, err)
	}
	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		ids[i], vectors[i] = r.ID, r.Vector
	}
	return ids, vectors, nil
}

// Load reads every record at URL with the default afs service.
func Load(ctx context.Context, URL string) ([]string, [][]float32, error) {
	return New().Load(ctx, URL)
}

// Parse decodes records. Records without an id get their 1-based ordinal.
// Every vector must be non-empty and share the first record's dimension.
func Parse(data []byte, format Format) ([]Record, error) {
	var records []Record
	var err error
	switch format {
	case FormatCSV:
		records, err = parseCSV(data)
	default:
		records, err = parseJSONL(data)
	}
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = strconv.Itoa(i + 1)
		}
		if len(records[i].Vector) == 0 {
			return nil, fmt.Errorf("record %s has an empty vector", records[i].ID)
		}
		if len(records[i].Vector) != len(records[0].Vector) {
			return nil, fmt.Errorf("record %s has dim %d, want %d", records[i].ID, len(records[i].Vector), len(records[0].Vector))
		}
	}
	return records, nil
}

func parseJSONL(data []byte) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, r)
	}
	return records, scanner.Err()
}

func parseCSV(data []byte) ([]Record, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	var records []Record
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("row %d: want id and at least one coordinate", row)
		}
		vec, err := parseFloats(fields[1:])
		if err != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		records = append(records, Record{ID: fields[0], Vector: vec})
	}
	return records, nil
}

func parseFloats(fields []string) ([]float32, error) {
	vec := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, err
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// ParseVector parses a comma-separated coordinate list such as "1,2.5,-3".
func ParseVector(text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("source: empty vector")
	}
	vec, err := parseFloats(strings.Split(text, ","))
	if err != nil {
		return nil, fmt.Errorf("source: vector %q: %w", text, err)
	}
	return vec, nil
}
