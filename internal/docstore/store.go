// Package docstore is the document store used for every persisted record:
// automations, A/B tests and analytics entries. Documents are addressed by a
// slash-separated collection path and a document id, hold JSON bodies, and
// are listed with equality filters ordered newest first.
//
// Three backends implement Store: MariaDB (a single documents table with a
// JSON body column), Firestore, and an in-memory map used by tests and local
// development.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned by Get and Update when the document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// Filter is an equality condition on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection. Newest orders by the store's
// creation stamp, most recent first. Limit <= 0 means no limit.
type Query struct {
	Filters []Filter
	Newest  bool
	Limit   int
}

// Where returns a copy of q with an additional equality filter.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Document is a raw query result.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
}

// Decode unmarshals the document body into dst.
func (d Document) Decode(dst any) error {
	if err := json.Unmarshal(d.Data, dst); err != nil {
		return fmt.Errorf("decoding document %s: %w", d.ID, err)
	}
	return nil
}

// Store is the document store contract shared by all backends.
type Store interface {
	// Get loads a document into dst. Returns ErrNotFound when absent.
	Get(ctx context.Context, collection, id string, dst any) error

	// Set creates or fully replaces a document. The creation stamp of an
	// existing document is preserved.
	Set(ctx context.Context, collection, id string, doc any) error

	// Update merges top-level fields into an existing document. Returns
	// ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Query lists documents in a collection.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// DecodeAll decodes query results into a typed slice.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// fieldNameRe restricts filter fields to plain identifiers. Backends splice
// field names into query paths, so anything else is rejected.
var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateQuery checks filter field names.
func validateQuery(q Query) error {
	for _, f := range q.Filters {
		if !fieldNameRe.MatchString(f.Field) {
			return fmt.Errorf("docstore: invalid filter field %q", f.Field)
		}
	}
	return nil
}

// toBody marshals a document into a JSON object.
func toBody(doc any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("document must encode to a JSON object: %w", err)
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}
	return body, nil
}

// mergeFields encodes each field value and overwrites the matching key.
func mergeFields(body map[string]json.RawMessage, fields map[string]any) error {
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding field %s: %w", k, err)
		}
		body[k] = raw
	}
	return nil
}
