package ai

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bryanwahyu/viruslens/internal/application"
	"github.com/bryanwahyu/viruslens/internal/domain/ai"
	"github.com/bryanwahyu/viruslens/internal/domain/analyst"
	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

// ReportFunc renders a history entry as plain text for the model.
type ReportFunc func(e *scans.HistoryEntry) (string, error)

type Service struct {
	client ai.Client // nil when no API key
	repo   analyst.Repository
	render ReportFunc
	clock  application.Clock
}

func NewService(client ai.Client, repo analyst.Repository, render ReportFunc, clock application.Clock) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{client: client, repo: repo, render: render, clock: clock}
}

// Enabled reports whether an AI client is configured.
func (s *Service) Enabled() bool { return s.client != nil }

// AnalyzeAndStore asks the model for a triage note on entry and stores it.
func (s *Service) AnalyzeAndStore(ctx context.Context, entry *scans.HistoryEntry) (*analyst.Analysis, error) {
	if s.client == nil {
		return nil, ai.ErrNotConfigured
	}
	report, err := s.render(entry)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	result, err := s.client.Analyze(ctx, report)
	if err != nil {
		return nil, err
	}
	a := &analyst.Analysis{
		ID:        analyst.AnalysisID(uuid.NewString()),
		HistoryID: entry.ID,
		Model:     s.client.ModelName(),
		Result:    result,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	return a, nil
}

// List returns analyses of one history entry, newest first.
func (s *Service) List(ctx context.Context, historyID int64) ([]*analyst.Analysis, error) {
	return s.repo.ListByHistory(ctx, historyID)
}
