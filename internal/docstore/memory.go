package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryDoc is one stored document with its creation order.
type memoryDoc struct {
	body    map[string]json.RawMessage
	created time.Time
	seq     int64
}

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	cols  map[string]map[string]*memoryDoc
	seq   int64
	clock func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		cols:  make(map[string]map[string]*memoryDoc),
		clock: time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, collection, id string, dst any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	raw, err := json.Marshal(doc.body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, collection, id string, doc any) error {
	body, err := toBody(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.cols[collection]
	if col == nil {
		col = make(map[string]*memoryDoc)
		m.cols[collection] = col
	}
	if existing, ok := col[id]; ok {
		existing.body = body
		return nil
	}
	m.seq++
	col[id] = &memoryDoc{body: body, created: m.clock(), seq: m.seq}
	return nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	// Merge into a copy so a failed encode leaves the document untouched.
	next := make(map[string]json.RawMessage, len(doc.body)+len(fields))
	for k, v := range doc.body {
		next[k] = v
	}
	if err := mergeFields(next, fields); err != nil {
		return err
	}
	doc.body = next
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cols[collection], id)
	return nil
}

// Query implements Store.
func (m *Memory) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	wanted := make([][]byte, len(q.Filters))
	for i, f := range q.Filters {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding filter %s: %w", f.Field, err)
		}
		wanted[i] = raw
	}

	m.mu.RLock()
	type hit struct {
		id  string
		doc *memoryDoc
	}
	var hits []hit
	for id, doc := range m.cols[collection] {
		if matches(doc.body, q.Filters, wanted) {
			hits = append(hits, hit{id: id, doc: doc})
		}
	}

	// Creation order is the default; Newest reverses it.
	sort.Slice(hits, func(i, j int) bool {
		if q.Newest {
			return hits[i].doc.seq > hits[j].doc.seq
		}
		return hits[i].doc.seq < hits[j].doc.seq
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		raw, err := json.Marshal(h.doc.body)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		out = append(out, Document{ID: h.id, Data: raw, CreatedAt: h.doc.created})
	}
	m.mu.RUnlock()

	return out, nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// matches reports whether every filter equals the stored field value.
func matches(body map[string]json.RawMessage, filters []Filter, wanted [][]byte) bool {
	for i, f := range filters {
		got, ok := body[f.Field]
		if !ok {
			return false
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, got); err != nil {
			return false
		}
		if !bytes.Equal(buf.Bytes(), wanted[i]) {
			return false
		}
	}
	return true
}
