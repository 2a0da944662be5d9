package scans

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	domain "github.com/bryanwahyu/viruslens/internal/domain/scans"
)

// RiskNotApplicable is reported for bulk rows with an empty input.
const RiskNotApplicable = "N/A"

// BulkItem satu baris input bulk
type BulkItem struct {
	Input string `json:"input"`
	Type  string `json:"type,omitempty"`
}

// BulkResult satu baris output bulk
type BulkResult struct {
	Index       int                   `json:"index"`
	Input       string                `json:"input"`
	Type        string                `json:"type"`
	OverallRisk string                `json:"overall_risk"`
	Engines     []domain.EngineResult `json:"engines"`
	Error       string                `json:"error,omitempty"`
}

// ProgressFunc is called after every processed item.
type ProgressFunc func(done, total int, r BulkResult)

// Bulk scans items one after another (never in parallel, to stay under the
// providers' rate limits). Bulk results are not written to history.
// A canceled ctx stops the loop; results processed so far are returned.
func (s *Service) Bulk(ctx context.Context, items []BulkItem, progress ProgressFunc) ([]BulkResult, error) {
	if s.MaxBulkItems > 0 && len(items) > s.MaxBulkItems {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(items), s.MaxBulkItems)
	}
	out := make([]BulkResult, 0, len(items))
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			s.log().Warn("bulk scan interrupted", "done", i, "total", len(items), "error", err)
			return out, err
		}
		r := s.bulkOne(ctx, i, it)
		out = append(out, r)
		if progress != nil {
			progress(i+1, len(items), r)
		}
	}
	s.log().Info("bulk scan finished", "total", len(items))
	return out, nil
}

func (s *Service) bulkOne(ctx context.Context, i int, it BulkItem) BulkResult {
	ioc := strings.TrimSpace(it.Input)
	r := BulkResult{Index: i, Input: ioc, Engines: []domain.EngineResult{}}
	if ioc == "" {
		r.Type = string(domain.TypeUnknown)
		r.OverallRisk = RiskNotApplicable
		return r
	}
	t, ok := domain.ParseIOCType(it.Type)
	if !ok {
		r.Type = strings.TrimSpace(it.Type)
		r.OverallRisk = RiskNotApplicable
		r.Error = fmt.Sprintf("invalid type %q", it.Type)
		return r
	}
	if t == domain.TypeHash && domain.HashKind(ioc) == "" {
		r.Type = string(t)
		r.OverallRisk = RiskNotApplicable
		r.Error = fmt.Sprintf("%q is not an md5/sha1/sha256 hex digest", ioc)
		return r
	}
	res := s.Aggregator.Aggregate(ctx, ioc, t)
	r.Type = string(res.Type)
	r.OverallRisk = string(res.OverallRisk)
	r.Engines = res.Engines
	if res.Type == domain.TypeUnknown {
		r.Error = "unrecognised input"
	}
	return r
}

// ParseBulkCSV reads rows with an "input" column and an optional "type"
// column. Header names are case-insensitive. UTF-8 (with or without BOM) and
// Windows-1252 files are accepted.
func ParseBulkCSV(r io.Reader) ([]BulkItem, error) {
	cr := csv.NewReader(utf8Reader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingInputColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	inputCol, typeCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "input":
			inputCol = i
		case "type":
			typeCol = i
		}
	}
	if inputCol < 0 {
		return nil, ErrMissingInputColumn
	}

	var items []BulkItem
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		it := BulkItem{}
		if inputCol < len(rec) {
			it.Input = strings.TrimSpace(rec[inputCol])
		}
		if typeCol >= 0 && typeCol < len(rec) {
			it.Type = strings.TrimSpace(rec[typeCol])
		}
		items = append(items, it)
	}
	return items, nil
}

// ParseBulkLines reads one IOC per line; blank lines and # comments are skipped.
func ParseBulkLines(r io.Reader) ([]BulkItem, error) {
	sc := bufio.NewScanner(utf8Reader(r))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	var items []BulkItem
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, BulkItem{Input: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return items, nil
}

// utf8Reader strips a UTF-8 BOM; input that is not valid UTF-8 is decoded as Windows-1252.
func utf8Reader(r io.Reader) io.Reader {
	data, err := io.ReadAll(r)
	if err != nil {
		return &errReader{err: err}
	}
	if utf8.Valid(data) {
		return transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(transform.Nop))
	}
	return transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder())
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }

// WriteBulkCSV writes input,type,overall_risk,engines; engines holds the
// per-engine results as JSON.
func WriteBulkCSV(w io.Writer, results []BulkResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"input", "type", "overall_risk", "engines"}); err != nil {
		return err
	}
	for _, r := range results {
		engines, err := json.Marshal(r.Engines)
		if err != nil {
			return fmt.Errorf("encode engines for %q: %w", r.Input, err)
		}
		if err := cw.Write([]string{r.Input, r.Type, r.OverallRisk, string(engines)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
