package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/medrag-cli/internal/model"
)

// NopStore discards everything. It backs store.driver=none.
type NopStore struct{}

// CreateRun returns an unsaved run with a fresh ID.
func (NopStore) CreateRun(_ context.Context, spec model.RunSpec) (*model.Run, error) {
	now := time.Now().UTC()
	return &model.Run{
		ID:        uuid.New().String(),
		Spec:      spec,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (NopStore) CompleteRun(context.Context, string, *model.RunSummary) error { return nil }

func (NopStore) FailRun(context.Context, string, *model.RunSummary, string) error { return nil }

func (NopStore) GetRun(context.Context, string) (*model.Run, error) { return nil, ErrNotFound }

func (NopStore) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return nil, nil }

func (NopStore) Migrate(context.Context) error { return nil }

func (NopStore) Close() error { return nil }
