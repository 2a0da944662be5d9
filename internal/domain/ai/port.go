package ai

import "context"

// Client turns a flat scan report into a JSON triage note.
type Client interface {
	Analyze(ctx context.Context, report string) (string, error)
	ModelName() string
}
