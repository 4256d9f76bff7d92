// Package store persists build runs and the terminal dataset of
// territorial units. SQLite is the default backend; PostgreSQL is
// available for shared deployments. Geometry travels as EWKB.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
)

// RunStatus tracks the lifecycle of a build run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// PhaseTiming records the wall-clock duration of one pipeline phase.
type PhaseTiming struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
}

// RunResult summarizes a completed build run.
type RunResult struct {
	Units           int           `json:"units"`
	DroppedUnits    int           `json:"dropped_units"`
	SourceFeatures  int           `json:"source_features"`
	TargetFeatures  int           `json:"target_features"`
	Fragments       int           `json:"fragments"`
	SkippedAttrs    []string      `json:"skipped_attrs,omitempty"`
	EpsilonFallback bool          `json:"epsilon_fallback"`
	Artifact        string        `json:"artifact,omitempty"`
	Phases          []PhaseTiming `json:"phases,omitempty"`
}

// Run is one build run record.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Unit is one persisted territorial unit with its aggregated attributes.
type Unit struct {
	CVE       string             `json:"cve_ut"`
	Name      string             `json:"nombre_ut"`
	Geom      geom.T             `json:"-"`
	Attrs     map[string]float64 `json:"attrs"`
	RunID     string             `json:"run_id,omitempty"`
	UpdatedAt time.Time          `json:"updated_at,omitempty"`
}

// UnitFilter pages through the persisted dataset. A non-positive limit
// returns every row.
type UnitFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines the persistence interface for runs and the dataset.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*Run, error)
	CompleteRun(ctx context.Context, runID string, result *RunResult) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Dataset
	UpsertUnits(ctx context.Context, runID string, crs string, units []Unit) error
	GetUnit(ctx context.Context, cve string) (*Unit, error)
	ListUnits(ctx context.Context, filter UnitFilter) ([]Unit, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds a Store from configuration. An empty driver means SQLite.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
