package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/docstore"
)

// AnalyticsRepository stores records by kind. Each kind lives in
// "<root>/<kind>/entries".
type AnalyticsRepository interface {
	Save(ctx context.Context, kind, id string, doc any) error

	// Update merges fields into an existing record. Not-found AppError when
	// the record does not exist.
	Update(ctx context.Context, kind, id string, fields map[string]any) error

	// List returns matching records newest first. limit <= 0 means all.
	List(ctx context.Context, kind string, filters []docstore.Filter, limit int) ([]docstore.Document, error)
}

type analyticsRepository struct {
	store docstore.Store
	root  string
}

// NewAnalyticsRepository creates a repository rooted at the given document
// path (e.g. "tenants/ads/analytics").
func NewAnalyticsRepository(store docstore.Store, root string) AnalyticsRepository {
	return &analyticsRepository{store: store, root: root}
}

func (r *analyticsRepository) collection(kind string) string {
	return r.root + "/" + kind + "/entries"
}

func (r *analyticsRepository) Save(ctx context.Context, kind, id string, doc any) error {
	if err := r.store.Set(ctx, r.collection(kind), id, doc); err != nil {
		return fmt.Errorf("saving %s record %s: %w", kind, id, err)
	}
	return nil
}

func (r *analyticsRepository) Update(ctx context.Context, kind, id string, fields map[string]any) error {
	err := r.store.Update(ctx, r.collection(kind), id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperror.NewNotFound(fmt.Sprintf("%s record %q not found", kind, id))
	}
	if err != nil {
		return fmt.Errorf("updating %s record %s: %w", kind, id, err)
	}
	return nil
}

func (r *analyticsRepository) List(ctx context.Context, kind string, filters []docstore.Filter, limit int) ([]docstore.Document, error) {
	docs, err := r.store.Query(ctx, r.collection(kind), docstore.Query{
		Filters: filters,
		Newest:  true,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s records: %w", kind, err)
	}
	return docs, nil
}
