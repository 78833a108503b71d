package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

type memDoc struct {
	seq    int64
	fields map[string]any
}

// MemoryStore keeps documents as decoded JSON in process memory. It honours the
// same unique indexes and version checks as the database backends and is used
// by tests and by STORE_DRIVER=memory.
type MemoryStore[T any, PT EntityPtr[T]] struct {
	schema Schema
	mu     sync.RWMutex
	docs   map[utils.SixID]*memDoc
	seq    int64
}

// NewMemoryStore returns an empty in-memory collection.
func NewMemoryStore[T any, PT EntityPtr[T]](schema Schema) *MemoryStore[T, PT] {
	return &MemoryStore[T, PT]{schema: schema, docs: make(map[utils.SixID]*memDoc)}
}

func (s *MemoryStore[T, PT]) Create(ctx context.Context, doc *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := PT(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.GetID().IsZero() {
		p.GenIDIfEmpty()
		for tries := 0; s.docs[p.GetID()] != nil; tries++ {
			if tries >= 3 {
				return fmt.Errorf("failed to allocate %s id", s.schema.Name)
			}
			p.SetID(utils.NewSixID())
		}
	} else if s.docs[p.GetID()] != nil {
		return s.schema.duplicate("primary key")
	}

	prevVersion := p.GetVersion()
	p.SetVersion(1)
	fields, err := encodeFields(doc)
	if err != nil {
		p.SetVersion(prevVersion)
		return err
	}
	if err := s.checkUnique(fields, p.GetID()); err != nil {
		p.SetVersion(prevVersion)
		return err
	}

	s.seq++
	s.docs[p.GetID()] = &memDoc{seq: s.seq, fields: fields}
	return nil
}

func (s *MemoryStore[T, PT]) Get(ctx context.Context, id utils.SixID) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, s.schema.notFound(id)
	}
	return decodeFields[T](d.fields)
}

func (s *MemoryStore[T, PT]) FindOne(ctx context.Context, filters ...Filter) (*T, error) {
	list, err := s.List(ctx, Query{Filters: filters, Order: []Order{{Field: "id"}}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, s.schema.noMatch()
	}
	return list[0], nil
}

func (s *MemoryStore[T, PT]) List(ctx context.Context, q Query) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(q.Filters)
	if err != nil {
		return nil, err
	}
	for _, o := range q.Order {
		if err := checkField(o.Field); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range q.Order {
			c := compareForSort(matched[i].fields[o.Field], matched[j].fields[o.Field], s.schema.typeOf(o.Field))
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return matched[i].fields["id"].(string) < matched[j].fields["id"].(string)
	})

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

	out := make([]*T, 0, len(matched))
	for _, d := range matched {
		item, err := decodeFields[T](d.fields)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *MemoryStore[T, PT]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(filters)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *MemoryStore[T, PT]) Update(ctx context.Context, id utils.SixID, expectedVersion int64, patch Patch) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, s.schema.notFound(id)
	}
	current, _ := toFloat(d.fields["version"])
	if expectedVersion > 0 && int64(current) != expectedVersion {
		return nil, s.schema.stale(id)
	}

	patchFields, err := encodeFields(patch)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(d.fields)+len(patchFields))
	for k, v := range d.fields {
		merged[k] = v
	}
	for k, v := range patchFields {
		merged[k] = v
	}
	merged["version"] = current + 1

	// Round-trip through T so the stored shape matches a freshly created document.
	updated, err := decodeFields[T](merged)
	if err != nil {
		return nil, err
	}
	fields, err := encodeFields(updated)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(fields, id); err != nil {
		return nil, err
	}

	d.fields = fields
	return updated, nil
}

func (s *MemoryStore[T, PT]) Delete(ctx context.Context, id utils.SixID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return s.schema.notFound(id)
	}
	delete(s.docs, id)
	return nil
}

// match returns the documents satisfying every filter in insertion order.
func (s *MemoryStore[T, PT]) match(filters []Filter) ([]*memDoc, error) {
	prepared := make([]Filter, len(filters))
	for i, f := range filters {
		if err := checkField(f.Field); err != nil {
			return nil, err
		}
		pf, err := s.prepare(f)
		if err != nil {
			return nil, err
		}
		prepared[i] = pf
	}

	out := make([]*memDoc, 0)
	for _, d := range s.docs {
		if matchesAll(d.fields, prepared, s.schema) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out, nil
}

func (s *MemoryStore[T, PT]) prepare(f Filter) (Filter, error) {
	typ := s.schema.typeOf(f.Field)
	if f.Op == OpIn {
		values, _ := f.Value.([]any)
		typed := make([]any, 0, len(values))
		for _, v := range values {
			tv, err := typedValue(v, typ)
			if err != nil {
				return f, err
			}
			typed = append(typed, tv)
		}
		f.Value = typed
		return f, nil
	}
	tv, err := typedValue(f.Value, typ)
	if err != nil {
		return f, err
	}
	f.Value = tv
	return f, nil
}

func matchesAll(fields map[string]any, filters []Filter, schema Schema) bool {
	for _, f := range filters {
		if !matchFilter(fields[f.Field], f, schema.typeOf(f.Field)) {
			return false
		}
	}
	return true
}

func matchFilter(v any, f Filter, typ FieldType) bool {
	switch f.Op {
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	case OpEq:
		return equalValues(v, f.Value, typ)
	case OpNe:
		return v != nil && f.Value != nil && !equalValues(v, f.Value, typ)
	case OpIn:
		values, _ := f.Value.([]any)
		for _, x := range values {
			if equalValues(v, x, typ) {
				return true
			}
		}
		return false
	}
	if v == nil || f.Value == nil {
		return false
	}
	c, ok := compareValues(v, f.Value, typ)
	if !ok {
		return false
	}
	switch f.Op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// checkUnique rejects fields that collide with another document on a unique index.
func (s *MemoryStore[T, PT]) checkUnique(fields map[string]any, self utils.SixID) error {
	for _, idx := range s.schema.Indexes {
		if !idx.Unique {
			continue
		}
		key, ok := indexKey(fields, idx, s.schema)
		if !ok {
			continue
		}
		for id, d := range s.docs {
			if id == self {
				continue
			}
			if other, ok := indexKey(d.fields, idx, s.schema); ok && other == key {
				return s.schema.duplicate(idx.Name)
			}
		}
	}
	return nil
}

// indexKey renders the indexed values of a document. ok is false when the
// document is outside a partial index or has a null indexed field.
func indexKey(fields map[string]any, idx Index, schema Schema) (string, bool) {
	for _, w := range idx.Where {
		tv, err := typedValue(w.Value, schema.typeOf(w.Field))
		if err != nil || !equalValues(fields[w.Field], tv, schema.typeOf(w.Field)) {
			return "", false
		}
	}
	parts := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v := fields[f]
		if v == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "\x00"), true
}

func compareForSort(a, b any, typ FieldType) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compareValues(a, b, typ)
	return c
}

func encodeFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return fields, nil
}

func decodeFields[T any](fields map[string]any) (*T, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &out, nil
}
