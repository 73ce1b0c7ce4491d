package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// createdField is the store-managed creation stamp used for ordering. It is
// stripped from bodies before they are handed back to callers.
const createdField = "_created_at"

// Firestore stores documents in Cloud Firestore. Collection paths map
// directly to Firestore collection paths (odd segment counts).
type Firestore struct {
	client *firestore.Client
}

// NewFirestore wraps an initialized Firestore client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

// Get implements Store.
func (s *Firestore) Get(ctx context.Context, collection, id string, dst any) error {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading %s/%s: %w", collection, id, err)
	}
	return decodeSnapshot(snap, dst)
}

// Set implements Store.
func (s *Firestore) Set(ctx context.Context, collection, id string, doc any) error {
	data, err := toGeneric(doc)
	if err != nil {
		return err
	}

	ref := s.client.Collection(collection).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			data[createdField] = firestore.ServerTimestamp
		case err != nil:
			return fmt.Errorf("loading %s/%s: %w", collection, id, err)
		default:
			if created, ok := snap.Data()[createdField]; ok {
				data[createdField] = created
			} else {
				data[createdField] = firestore.ServerTimestamp
			}
		}
		return tx.Set(ref, data)
	})
}

// Update implements Store.
func (s *Firestore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		generic, err := toGenericValue(v)
		if err != nil {
			return fmt.Errorf("encoding field %s: %w", k, err)
		}
		updates = append(updates, firestore.Update{Path: k, Value: generic})
	}

	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements Store.
func (s *Firestore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query implements Store. Filters combined with Newest need a composite
// index on (field, _created_at) in Firestore.
func (s *Firestore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	fq := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		generic, err := toGenericValue(f.Value)
		if err != nil {
			return nil, err
		}
		fq = fq.Where(f.Field, "==", generic)
	}
	if q.Newest {
		fq = fq.OrderBy(createdField, firestore.Desc)
	} else {
		fq = fq.OrderBy(createdField, firestore.Asc)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var out []Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", collection, err)
		}

		data := snap.Data()
		created, _ := data[createdField].(time.Time)
		delete(data, createdField)

		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{ID: snap.Ref.ID, Data: raw, CreatedAt: created})
	}
	return out, nil
}

// Ping implements Store by reading a sentinel document. A missing document
// still proves the backend answered.
func (s *Firestore) Ping(ctx context.Context) error {
	_, err := s.client.Collection("_health").Doc("ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

// decodeSnapshot converts Firestore data back to the caller's type through
// JSON so json tags and custom marshalers apply on both directions.
func decodeSnapshot(snap *firestore.DocumentSnapshot, dst any) error {
	data := snap.Data()
	delete(data, createdField)
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// toGeneric encodes a document as a generic map Firestore can store.
func toGeneric(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("document must encode to a JSON object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// toGenericValue encodes a single value through JSON.
func toGenericValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
