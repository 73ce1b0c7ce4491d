package automations

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/docstore"
)

// AutomationRepository defines the data access contract for automations.
// Storage details stay behind the document store.
type AutomationRepository interface {
	// FindByID returns nil and no error when the automation does not exist.
	FindByID(ctx context.Context, id string) (*Automation, error)

	// Save writes the full record, creating it if needed.
	Save(ctx context.Context, a *Automation) error

	// Update merges top-level fields. Returns a not-found AppError when the
	// automation does not exist.
	Update(ctx context.Context, id string, fields map[string]any) error

	Delete(ctx context.Context, id string) error

	// List returns automations, newest first, optionally filtered by status.
	List(ctx context.Context, status string) ([]Automation, error)
}

// automationRepository implements AutomationRepository on a document store.
type automationRepository struct {
	store      docstore.Store
	collection string
}

// NewAutomationRepository creates a repository over the given collection.
func NewAutomationRepository(store docstore.Store, collection string) AutomationRepository {
	return &automationRepository{store: store, collection: collection}
}

func (r *automationRepository) FindByID(ctx context.Context, id string) (*Automation, error) {
	var a Automation
	err := r.store.Get(ctx, r.collection, id, &a)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading automation %s: %w", id, err)
	}
	return &a, nil
}

func (r *automationRepository) Save(ctx context.Context, a *Automation) error {
	if err := r.store.Set(ctx, r.collection, a.ID, a); err != nil {
		return fmt.Errorf("saving automation %s: %w", a.ID, err)
	}
	return nil
}

func (r *automationRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	err := r.store.Update(ctx, r.collection, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperror.NewNotFound(fmt.Sprintf("automation %q not found", id))
	}
	if err != nil {
		return fmt.Errorf("updating automation %s: %w", id, err)
	}
	return nil
}

func (r *automationRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, r.collection, id); err != nil {
		return fmt.Errorf("deleting automation %s: %w", id, err)
	}
	return nil
}

func (r *automationRepository) List(ctx context.Context, status string) ([]Automation, error) {
	q := docstore.Query{Newest: true}
	if status != "" {
		q = q.Where("status", status)
	}
	docs, err := r.store.Query(ctx, r.collection, q)
	if err != nil {
		return nil, fmt.Errorf("listing automations: %w", err)
	}
	return docstore.DecodeAll[Automation](docs)
}
