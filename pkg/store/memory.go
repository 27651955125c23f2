package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process DocumentStore used in standalone/dev mode and
// in tests. One mutex guards all collections; every exported operation
// is a single critical section, so batches apply atomically.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]json.RawMessage),
	}
}

func (m *Memory) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []map[string]any
	for _, raw := range m.collections[collection] {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		if matches(doc, q.Filters) {
			matched = append(matched, doc)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareValues(matched[i][q.OrderBy], matched[j][q.OrderBy])
			if q.Descending {
				return !less
			}
			return less
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]json.RawMessage, 0, len(matched))
	for _, doc := range matched {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func (m *Memory) Add(ctx context.Context, collection string, doc json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.addLocked(collection, id, doc)
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return ErrNotFound
	}
	m.addLocked(collection, id, doc)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) Batch(ctx context.Context, ops []BatchOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate first so the batch applies atomically.
	for _, op := range ops {
		switch op.Kind {
		case "add", "increment":
		case "update", "delete":
			if _, ok := m.collections[op.Collection][op.ID]; !ok {
				return fmt.Errorf("batch %s %s/%s: %w", op.Kind, op.Collection, op.ID, ErrNotFound)
			}
		default:
			return fmt.Errorf("batch: unknown op kind %q", op.Kind)
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case "add":
			id := op.ID
			if id == "" {
				id = uuid.NewString()
			}
			m.addLocked(op.Collection, id, op.Doc)
		case "update":
			m.addLocked(op.Collection, op.ID, op.Doc)
		case "delete":
			delete(m.collections[op.Collection], op.ID)
		case "increment":
			m.incrementLocked(op.Collection, op.ID, op.Doc)
		}
	}
	return nil
}

// incrementLocked adds delta's numeric fields onto the stored document,
// creating it when absent. Non-numeric delta fields overwrite. Must be
// called with the mutex held.
func (m *Memory) incrementLocked(collection, id string, delta json.RawMessage) {
	fields := map[string]any{}
	if raw, ok := m.collections[collection][id]; ok {
		_ = json.Unmarshal(raw, &fields)
	}

	var d map[string]any
	if err := json.Unmarshal(delta, &d); err != nil {
		return
	}
	for k, v := range d {
		inc, ok := toFloat(v)
		if !ok {
			fields[k] = v
			continue
		}
		cur, _ := toFloat(fields[k])
		fields[k] = cur + inc
	}

	raw, _ := json.Marshal(fields)
	m.addLocked(collection, id, raw)
}

// addLocked stores doc with its id injected, so queries and reads see a
// consistent "id" field. Must be called with the mutex held.
func (m *Memory) addLocked(collection, id string, doc json.RawMessage) {
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		fields = map[string]any{}
	}
	fields["id"] = id
	raw, _ := json.Marshal(fields)

	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]json.RawMessage)
	}
	m.collections[collection][id] = raw
}

func matches(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		val, ok := doc[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case "", "==":
			if !equalValues(val, f.Value) {
				return false
			}
		case ">=":
			if compareValues(val, f.Value) {
				return false
			}
		case "<=":
			if compareValues(f.Value, val) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareValues reports a < b, comparing numerically when both sides
// are numbers and lexically otherwise.
func compareValues(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
