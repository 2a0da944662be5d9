package analyst

import "context"

// Repository port for persisting and querying analyses
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	ListByHistory(ctx context.Context, historyID int64) ([]*Analysis, error)
}
