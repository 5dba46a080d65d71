// Package dirty persists rows the writer could not commit to a CSV file, one
// line per row with the failure reason, the source line, a fingerprint of
// the row and its cells.
package dirty

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"graphetl/internal/graph"
	"graphetl/internal/ngql"
	"graphetl/internal/record"
	"graphetl/internal/writer"

	"github.com/zeebo/xxh3"
)

// Reasons written to the first CSV column.
const (
	ReasonTypeMapping = "type_mapping"
	ReasonRowWidth    = "row_width"
	ReasonNullKey     = "null_key"
	ReasonRejected    = "rejected"
	ReasonOther       = "other"
)

// CSVSink is a writer.DirtySink backed by a CSV file. It is safe for use by
// several partitions at once.
type CSVSink struct {
	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	reasons map[string]int
	err     error
}

// NewCSVSink creates path (and its parent directories) and writes the header:
// reason, line_number, fingerprint, error, then one column per name.
func NewCSVSink(path string, columns []string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("dirty: create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dirty: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	header := append([]string{"reason", "line_number", "fingerprint", "error"}, columns...)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("dirty: write header: %w", err)
	}
	return &CSVSink{f: f, w: w, reasons: make(map[string]int)}, nil
}

// Collect implements writer.DirtySink. Write errors are kept and returned by
// Close, since the sink itself has no error return.
func (s *CSVSink) Collect(d writer.DirtyRecord) {
	reason := Classify(d.Err)
	cells := d.Row.Strings()

	line := make([]string, 0, 4+len(cells))
	line = append(line, reason, strconv.Itoa(d.Row.Line), Fingerprint(d.Row), errString(d.Err))
	line = append(line, cells...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons[reason]++
	if err := s.w.Write(line); err != nil && s.err == nil {
		s.err = err
	}
}

// Reasons returns a copy of the per-reason counts.
func (s *CSVSink) Reasons() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.reasons))
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

// Close flushes and closes the file and logs a per-reason summary.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return s.err
	}

	s.w.Flush()
	err := errors.Join(s.err, s.w.Error(), s.f.Close())
	s.f = nil

	keys := make([]string, 0, len(s.reasons))
	for k := range s.reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, s.reasons[k])
	}
	if len(parts) > 0 {
		log.Printf("dirty: %s", strings.Join(parts, " "))
	}
	return err
}

// Classify maps a row failure to a reason.
func Classify(err error) string {
	switch {
	case errors.Is(err, ngql.ErrTypeMapping):
		return ReasonTypeMapping
	case errors.Is(err, ngql.ErrRowWidth):
		return ReasonRowWidth
	case errors.Is(err, ngql.ErrNullKey):
		return ReasonNullKey
	case errors.Is(err, graph.ErrStatement):
		return ReasonRejected
	default:
		return ReasonOther
	}
}

// Fingerprint hashes the row's cell kinds and text, so identical rows from
// different source lines share a fingerprint.
func Fingerprint(r record.Row) string {
	h := xxh3.New()
	for _, c := range r.Cells {
		_, _ = h.Write([]byte{byte(c.Kind)})
		_, _ = h.WriteString(c.String())
		_, _ = h.Write([]byte{0x1f})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
