package scans

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bryanwahyu/viruslens/internal/application"
	domain "github.com/bryanwahyu/viruslens/internal/domain/scans"
)

// Service implements use-cases untuk scan: classify → aggregate → extract → persist.
// Service is safe for concurrent use.
type Service struct {
	Repo       domain.Repository
	Aggregator *Aggregator
	Archive    domain.ReportArchive // optional
	Clock      application.Clock
	Logger     *slog.Logger

	// MaxBulkItems caps one bulk request, <=0 means no cap
	MaxBulkItems int
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

//
// ==== USE CASES ====
//

// ScanRequest input dari user
type ScanRequest struct {
	Input string `json:"input"`
	Type  string `json:"type,omitempty"` // url | hash | "" (auto)
}

// ScanOutcome is everything the dashboard shows after one scan.
type ScanOutcome struct {
	Input     string                 `json:"input"`
	HashKind  string                 `json:"hash_kind,omitempty"`
	Result    domain.AggregateResult `json:"result"`
	Detail    domain.DetailRecord    `json:"detail"`
	Summary   string                 `json:"summary"`
	HistoryID int64                  `json:"history_id"`
	Errors    []StageError           `json:"errors"`
}

// Saved reports whether the scan reached the history store.
func (o ScanOutcome) Saved() bool { return o.HistoryID > 0 }

// Scan runs the full pipeline for one IOC. The returned error is only for
// invalid requests; stage failures are reported in ScanOutcome.Errors.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (ScanOutcome, error) {
	return s.scan(ctx, req, strings.TrimSpace(req.Input))
}

// ScanFile hashes the upload (SHA-256) and scans the digest as a hash.
func (s *Service) ScanFile(ctx context.Context, name string, r io.Reader) (ScanOutcome, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return ScanOutcome{}, fmt.Errorf("read upload: %w", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))
	if name == "" {
		name = "upload"
	}
	return s.scan(ctx, ScanRequest{Input: digest, Type: string(domain.TypeHash)}, fmt.Sprintf("%s (SHA256: %s)", name, digest))
}

func (s *Service) scan(ctx context.Context, req ScanRequest, inputValue string) (ScanOutcome, error) {
	ioc := strings.TrimSpace(req.Input)
	if ioc == "" {
		return ScanOutcome{}, ErrEmptyInput
	}
	declared, ok := domain.ParseIOCType(req.Type)
	if !ok {
		return ScanOutcome{}, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	if declared == domain.TypeHash && domain.HashKind(ioc) == "" {
		return ScanOutcome{}, fmt.Errorf("%w: %q is not an md5/sha1/sha256 hex digest", ErrInvalidType, ioc)
	}

	out := ScanOutcome{Input: inputValue, Errors: []StageError{}}

	t := declared
	if t == domain.TypeUnknown {
		t = domain.Classify(ioc)
	}
	if t == domain.TypeUnknown {
		out.Errors = append(out.Errors, StageError{
			Stage:   StageClassification,
			Message: "input is neither a URL nor an md5/sha1/sha256 hash; no provider applies",
		})
	}
	if t == domain.TypeHash {
		out.HashKind = domain.HashKind(ioc)
	}

	out.Result = s.Aggregator.Aggregate(ctx, ioc, t)
	for _, e := range out.Result.Engines {
		if e.Failed() {
			out.Errors = append(out.Errors, StageError{Stage: StageProvider, Engine: e.Engine, Message: e.ErrorMessage()})
		}
	}

	out.Detail = s.extract(out.Result, &out)
	out.Summary = SummaryLine(out.Result.Engines)

	// hasil unknown tidak disimpan, tidak ada scan yang berjalan
	if out.Result.Type == domain.TypeUnknown {
		return out, nil
	}

	id, err := s.Repo.Record(ctx, domain.NewEntry{
		ScanType:   string(out.Result.Type),
		InputValue: inputValue,
		Summary:    out.Summary,
		RiskScore:  string(out.Result.OverallRisk),
		Detail:     out.Detail,
		CreatedAt:  s.clock().Now(),
	})
	if err != nil {
		s.log().Error("save history failed", "input", inputValue, "error", err)
		out.Errors = append(out.Errors, StageError{Stage: StagePersistence, Message: err.Error()})
		return out, nil
	}
	out.HistoryID = id
	s.log().Info("scan recorded", "id", id, "type", string(out.Result.Type), "risk", string(out.Result.OverallRisk))
	return out, nil
}

// extract guards the extractor; a panic there must not hide the risk result.
func (s *Service) extract(res domain.AggregateResult, out *ScanOutcome) (d domain.DetailRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("detail extraction panicked", "panic", r)
			out.Errors = append(out.Errors, StageError{Stage: StageExtraction, Message: fmt.Sprint(r)})
			d = domain.NewDetailRecord()
			d["overall_risk"] = string(res.OverallRisk)
			d["type"] = string(res.Type)
		}
	}()
	return domain.Extract(res)
}

// SummaryLine renders "<engine>: <summary json>" joined by " | ".
func SummaryLine(engines []domain.EngineResult) string {
	parts := make([]string, 0, len(engines))
	for _, e := range engines {
		b, err := json.Marshal(e.Summary)
		if err != nil {
			b = []byte(`{}`)
		}
		parts = append(parts, e.Engine+": "+string(b))
	}
	return domain.TruncateSummary(strings.Join(parts, " | "))
}

// History returns a filtered page of past scans, newest first.
func (s *Service) History(ctx context.Context, f domain.HistoryFilter) (domain.HistoryPage, error) {
	rows, err := s.Repo.List(ctx, f)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	total, err := s.Repo.Count(ctx, f)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	return domain.HistoryPage{Data: rows, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Get ambil 1 entry by id
func (s *Service) Get(ctx context.Context, id int64) (*domain.HistoryEntry, error) {
	return s.Repo.Get(ctx, id)
}

// ClearHistory removes every entry. confirm must be true.
func (s *Service) ClearHistory(ctx context.Context, confirm bool) (int64, error) {
	if !confirm {
		return 0, ErrConfirmationRequired
	}
	n, err := s.Repo.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.log().Warn("history cleared", "deleted", n)
	return n, nil
}

// ArchiveReport uploads an already rendered report for entry id.
// Key layout: reports/<id>/<timestamp>.<ext>
func (s *Service) ArchiveReport(ctx context.Context, id int64, ext, contentType string, body []byte) (string, error) {
	if s.Archive == nil {
		return "", ErrArchiveDisabled
	}
	key := fmt.Sprintf("reports/%d/%s.%s", id, s.clock().Now().UTC().Format("20060102T150405Z"), ext)
	url, err := s.Archive.Put(ctx, key, body, contentType)
	if err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}
	return url, nil
}
