package abtests

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/docstore"
)

// TestRepository defines the data access contract for A/B tests.
type TestRepository interface {
	// FindByID returns nil and no error when the test does not exist.
	FindByID(ctx context.Context, id string) (*Test, error)
	Save(ctx context.Context, t *Test) error

	// Update merges top-level fields. Not-found AppError when missing.
	Update(ctx context.Context, id string, fields map[string]any) error

	// ListByAutomation returns an automation's tests, newest first.
	ListByAutomation(ctx context.Context, automationID string) ([]Test, error)

	// ListActive returns every active test.
	ListActive(ctx context.Context) ([]Test, error)
}

type testRepository struct {
	store      docstore.Store
	collection string
}

// NewTestRepository creates a repository over the given collection.
func NewTestRepository(store docstore.Store, collection string) TestRepository {
	return &testRepository{store: store, collection: collection}
}

func (r *testRepository) FindByID(ctx context.Context, id string) (*Test, error) {
	var t Test
	err := r.store.Get(ctx, r.collection, id, &t)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading test %s: %w", id, err)
	}
	return &t, nil
}

func (r *testRepository) Save(ctx context.Context, t *Test) error {
	if err := r.store.Set(ctx, r.collection, t.ID, t); err != nil {
		return fmt.Errorf("saving test %s: %w", t.ID, err)
	}
	return nil
}

func (r *testRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	err := r.store.Update(ctx, r.collection, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperror.NewNotFound(fmt.Sprintf("test %q not found", id))
	}
	if err != nil {
		return fmt.Errorf("updating test %s: %w", id, err)
	}
	return nil
}

func (r *testRepository) ListByAutomation(ctx context.Context, automationID string) ([]Test, error) {
	docs, err := r.store.Query(ctx, r.collection, docstore.Query{Newest: true}.Where("automation_id", automationID))
	if err != nil {
		return nil, fmt.Errorf("listing tests for %s: %w", automationID, err)
	}
	return docstore.DecodeAll[Test](docs)
}

func (r *testRepository) ListActive(ctx context.Context) ([]Test, error) {
	docs, err := r.store.Query(ctx, r.collection, docstore.Query{}.Where("status", StatusActive))
	if err != nil {
		return nil, fmt.Errorf("listing active tests: %w", err)
	}
	return docstore.DecodeAll[Test](docs)
}
