// Package store persists resolution runs, entities, and the party→entity
// mapping behind a driver-agnostic interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
)

// ErrNotFound is returned when a run, entity, or party has no row.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for resolution output.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	LatestCompleteRunID(ctx context.Context) (string, error)

	// Resolution output. SaveResult writes the full partition atomically:
	// consumers never observe a partial mapping.
	SaveResult(ctx context.Context, runID string, result *model.ResolutionResult) error
	ListEntities(ctx context.Context, runID string, limit, offset int) ([]model.Entity, error)
	GetEntity(ctx context.Context, runID, entityID string) (*model.Entity, error)
	GetEntityByParty(ctx context.Context, runID, partyID string) (*model.Entity, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store from config.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
