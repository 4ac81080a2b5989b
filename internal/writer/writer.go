// Package writer persists finished datasets to the local filesystem and reads
// them back.
//
// File layout:
//
//	{baseDir}/{dataset_type}_{2026-02-20T15-04-05Z}_{request id prefix}.{csv|json}
//
// CSV files carry the metadata as trailing "# key: <json>" comment lines, one
// per top-level metadata key in sorted order. JSON files hold {data, metadata}.
// Every file is written to a temp file in the same directory and renamed into
// place, so readers never observe a partial dataset.
package writer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/vaisu-bhut/GeniQ/internal/validation"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

const metaPrefix = "# "

// FileWriter writes envelopes under a base directory.
type FileWriter struct {
	baseDir string
}

// NewFileWriter creates a file writer. If baseDir is empty it defaults to
// "~/.geniq/datasets".
func NewFileWriter(baseDir string) *FileWriter {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			baseDir = filepath.Join(os.TempDir(), "geniq", "datasets")
		} else {
			baseDir = filepath.Join(home, ".geniq", "datasets")
		}
	}
	return &FileWriter{baseDir: baseDir}
}

// Dir returns the output directory.
func (w *FileWriter) Dir() string { return w.baseDir }

// Write serializes env in format and returns the final path.
func (w *FileWriter) Write(ctx context.Context, env *models.Envelope, columns []models.ColumnDefinition, format models.OutputFormat) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	var buf bytes.Buffer
	switch format {
	case models.FormatCSV:
		if err := encodeCSV(&buf, env, columns); err != nil {
			return "", err
		}
	case models.FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(env); err != nil {
			return "", fmt.Errorf("encode dataset: %w", err)
		}
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}

	fpath := filepath.Join(w.baseDir, fileName(env, format))
	if err := writeAtomic(fpath, buf.Bytes()); err != nil {
		return "", err
	}

	log.Debug().
		Str("path", fpath).
		Int("items", len(env.Data)).
		Str("format", string(format)).
		Msg("Dataset written")
	return fpath, nil
}

// HealthCheck verifies the output directory is writable.
func (w *FileWriter) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return fmt.Errorf("output path not writable: %w", err)
	}
	testFile := filepath.Join(w.baseDir, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("output path not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}

func fileName(env *models.Envelope, format models.OutputFormat) string {
	id := env.Metadata.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > 8 {
		id = id[:8]
	}
	ts := env.Metadata.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	kind := string(env.Metadata.DatasetType)
	if kind == "" {
		kind = "dataset"
	}
	return fmt.Sprintf("%s_%s_%s.%s", kind, ts.UTC().Format("2006-01-02T15-04-05Z"), id, format)
}

func writeAtomic(fpath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(fpath), ".geniq-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fpath); err != nil {
		return fmt.Errorf("rename dataset file: %w", err)
	}
	return nil
}

// ── CSV ─────────────────────────────────────────────────────

func encodeCSV(w io.Writer, env *models.Envelope, columns []models.ColumnDefinition) error {
	header := columnNames(env.Data, columns)

	if err := writeRecord(w, header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(header))
	for i, item := range env.Data {
		for j, name := range header {
			record[j] = cast.ToString(item[name])
		}
		if err := writeRecord(w, record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	meta, err := metadataLines(env.Metadata)
	if err != nil {
		return err
	}
	for _, line := range meta {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("write csv metadata: %w", err)
		}
	}
	return nil
}

// writeRecord writes one CSV line. A line that would begin with '#' gets its
// first field quoted so it cannot be mistaken for a metadata line.
func writeRecord(w io.Writer, record []string) error {
	var line bytes.Buffer
	cw := csv.NewWriter(&line)
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	out := line.Bytes()
	if len(out) > 0 && out[0] == '#' {
		// Unquoted, so the first field contains no comma, quote or newline.
		end := bytes.IndexAny(out, ",\n")
		out = append([]byte(`"`+string(out[:end])+`"`), out[end:]...)
	}
	_, err := w.Write(out)
	return err
}

// columnNames uses the declared column order, or sorted item keys when no
// columns are declared (QA).
func columnNames(data []models.Item, columns []models.ColumnDefinition) []string {
	if len(columns) > 0 {
		names := make([]string, len(columns))
		for i, c := range columns {
			names[i] = c.Name
		}
		return names
	}
	seen := make(map[string]bool)
	var names []string
	for _, item := range data {
		for k := range item {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

func metadataLines(md models.Metadata) ([]string, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("split metadata: %w", err)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s%s: %s", metaPrefix, k, fields[k])
	}
	return lines, nil
}

// ── Read ────────────────────────────────────────────────────

// Read parses a dataset file written by FileWriter. The format is chosen by
// file extension. Values are restored to their column types when the
// metadata declares columns.
func Read(path string) (*models.Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return decodeCSV(raw)
	case ".json":
		return decodeJSON(raw)
	}
	return nil, fmt.Errorf("unsupported dataset file %q", path)
}

func decodeJSON(raw []byte) (*models.Envelope, error) {
	var doc struct {
		Data     []map[string]json.RawMessage `json:"data"`
		Metadata models.Metadata              `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	env := &models.Envelope{Data: make([]models.Item, len(doc.Data)), Metadata: doc.Metadata}
	dtypes := columnTypes(doc.Metadata.Columns)
	for i, row := range doc.Data {
		item := make(models.Item, len(row))
		for k, v := range row {
			val, err := decodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("decode row %d column %s: %w", i, k, err)
			}
			item[k] = restore(dtypes, k, val)
		}
		env.Data[i] = item
	}
	return env, nil
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
	return v, nil
}

func decodeCSV(raw []byte) (*models.Envelope, error) {
	// The csv reader skips '#' lines only at record boundaries, so a quoted
	// cell whose continuation line starts with "# " stays part of its row.
	// Data records never start with '#' (see writeRecord).
	r := csv.NewReader(bytes.NewReader(raw))
	r.Comment = '#'
	r.FieldsPerRecord = -1

	var records [][]string
	var dataEnd int64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode csv: %w", err)
		}
		records = append(records, rec)
		dataEnd = r.InputOffset()
	}

	// Metadata is the trailing run of comment lines after the last record.
	meta := make(map[string]json.RawMessage)
	for _, line := range strings.Split(string(raw[dataEnd:]), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, metaPrefix) {
			return nil, fmt.Errorf("malformed metadata line %q", line)
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, metaPrefix), ": ")
		if !ok || !json.Valid([]byte(value)) {
			return nil, fmt.Errorf("malformed metadata line %q", line)
		}
		meta[key] = json.RawMessage(value)
	}

	env := &models.Envelope{Data: make([]models.Item, 0)}
	if len(meta) > 0 {
		joined, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("join metadata: %w", err)
		}
		if err := json.Unmarshal(joined, &env.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(records) == 0 {
		return env, nil
	}

	header := records[0]
	dtypes := columnTypes(env.Metadata.Columns)
	for _, rec := range records[1:] {
		item := make(models.Item, len(header))
		for j, name := range header {
			if j >= len(rec) {
				break
			}
			if rec[j] == "" && dtypes[name] != models.DTypeStr && dtypes[name] != "" {
				continue
			}
			item[name] = restore(dtypes, name, rec[j])
		}
		env.Data = append(env.Data, item)
	}
	return env, nil
}

func columnTypes(cols []models.ColumnDefinition) map[string]models.DType {
	m := make(map[string]models.DType, len(cols))
	for _, c := range cols {
		m[c.Name] = c.DType
	}
	return m
}

// restore coerces v to the declared column type, leaving it unchanged when no
// type is declared or coercion fails.
func restore(dtypes map[string]models.DType, name string, v interface{}) interface{} {
	dt, ok := dtypes[name]
	if !ok || v == nil {
		return v
	}
	out, err := validation.Coerce(dt, v)
	if err != nil {
		return v
	}
	return out
}
