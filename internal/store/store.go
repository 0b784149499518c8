package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/model"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   model.RunKind `json:"kind,omitempty"`
	Period string        `json:"period,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store archives pipeline outputs.
type Store interface {
	// SaveRun persists run, assigning ID and CreatedAt when unset.
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and applies migrations. Driver
// "none" returns a store that discards runs.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		st, err = NewSQLite(cfg.SQLitePath)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck,gosec
		return nil, err
	}
	return st, nil
}

func prepare(run *model.Run) error {
	if run == nil {
		return eris.New("store: nil run")
	}
	if !run.Kind.Valid() {
		return eris.Errorf("store: invalid run kind %q", run.Kind)
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if len(run.Payload) == 0 {
		run.Payload = []byte("null")
	}
	return nil
}

// Nop is a Store that keeps nothing.
type Nop struct{}

func (Nop) SaveRun(_ context.Context, run *model.Run) error { return prepare(run) }

func (Nop) GetRun(_ context.Context, id string) (*model.Run, error) {
	return nil, eris.Wrapf(ErrNotFound, "id %s", id)
}

func (Nop) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return []model.Run{}, nil }

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
