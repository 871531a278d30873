package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a development-only in-memory implementation. Every
// operation holds the store mutex, which gives the same per-document
// atomicity the Postgres backend gets from single-statement updates.
type MemoryStore struct {
	mu    sync.RWMutex
	colls map[string]map[string]*memDoc
	seq   uint64
	now   func() time.Time
}

type memDoc struct {
	body map[string]any
	seq  uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		colls: make(map[string]map[string]*memDoc),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Insert(_ context.Context, coll, id string, doc any) error {
	body, err := toMap(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.colls[coll]
	if docs == nil {
		docs = make(map[string]*memDoc)
		s.colls[coll] = docs
	}
	if _, ok := docs[id]; ok {
		return ErrDuplicate
	}
	now := normalizeTime(s.now())
	if _, ok := body["createdAt"]; !ok || body["createdAt"] == zeroTimeJSON {
		body["createdAt"] = now
	}
	body["updatedAt"] = now
	body["id"] = id
	s.seq++
	docs[id] = &memDoc{body: body, seq: s.seq}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, coll, id string, dest any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	return fromValue(d.body, dest)
}

func (s *MemoryStore) Set(_ context.Context, coll, id string, fields map[string]any) error {
	norm, err := toMap(fields)
	if err != nil {
		return err
	}
	return s.mutate(coll, id, func(body map[string]any) error {
		for k, v := range norm {
			body[k] = v
		}
		return nil
	})
}

func (s *MemoryStore) Delete(_ context.Context, coll, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.colls[coll][id]; !ok {
		return false, nil
	}
	delete(s.colls[coll], id)
	return true, nil
}

func (s *MemoryStore) Find(_ context.Context, coll string, q Query, dest any) error {
	s.mu.RLock()
	matched, err := s.match(coll, q)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	matched = matched[start:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	bodies := make([]map[string]any, len(matched))
	for i, d := range matched {
		bodies[i] = d.body
	}
	return fromValue(bodies, dest)
}

func (s *MemoryStore) Count(_ context.Context, coll string, q Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.match(coll, q)
	return len(matched), err
}

func (s *MemoryStore) Increment(_ context.Context, coll, id, field string, delta int64) error {
	return s.mutate(coll, id, func(body map[string]any) error {
		var cur float64
		switch v := body[field].(type) {
		case nil:
		case float64:
			cur = v
		default:
			return fmt.Errorf("docstore: field %q is not numeric", field)
		}
		body[field] = cur + float64(delta)
		return nil
	})
}

func (s *MemoryStore) Push(_ context.Context, coll, id, field string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}
	return s.mutate(coll, id, func(body map[string]any) error {
		arr, _ := body[field].([]any)
		body[field] = append(arr, v)
		return nil
	})
}

func (s *MemoryStore) Pull(_ context.Context, coll, id, field string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}
	return s.mutate(coll, id, func(body map[string]any) error {
		arr, _ := body[field].([]any)
		kept := make([]any, 0, len(arr))
		for _, e := range arr {
			if !reflect.DeepEqual(e, v) {
				kept = append(kept, e)
			}
		}
		body[field] = kept
		return nil
	})
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) mutate(coll, id string, fn func(body map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	// mutate a copy so a failing fn leaves the document untouched
	body := make(map[string]any, len(d.body))
	for k, v := range d.body {
		body[k] = v
	}
	if err := fn(body); err != nil {
		return err
	}
	body["updatedAt"] = normalizeTime(s.now())
	d.body = body
	return nil
}

// match must be called with the read lock held.
func (s *MemoryStore) match(coll string, q Query) ([]*memDoc, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		nf, err := normalizeFilter(f)
		if err != nil {
			return nil, err
		}
		filters[i] = nf
	}
	anyOf := make([]Filter, len(q.Any))
	for i, f := range q.Any {
		nf, err := normalizeFilter(f)
		if err != nil {
			return nil, err
		}
		anyOf[i] = nf
	}

	var out []*memDoc
	for _, d := range s.colls[coll] {
		if matchesAll(d.body, filters) && matchesAny(d.body, anyOf) {
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.Sort.Field != "" {
			av, bv := numeric(a.body[q.Sort.Field]), numeric(b.body[q.Sort.Field])
			if av != bv {
				if q.Sort.Desc {
					return av > bv
				}
				return av < bv
			}
			// ties fall back to newest first, as the SQL backend does
			return a.seq > b.seq
		}
		if q.Sort.Desc {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	return out, nil
}

func matchesAll(body map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(body, f) {
			return false
		}
	}
	return true
}

func matchesAny(body map[string]any, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if matches(body, f) {
			return true
		}
	}
	return false
}

func matches(body map[string]any, f Filter) bool {
	got := body[f.Field]
	switch f.Op {
	case Eq:
		return reflect.DeepEqual(got, f.Value)
	case Has:
		arr, _ := got.([]any)
		for _, e := range arr {
			if reflect.DeepEqual(e, f.Value) {
				return true
			}
		}
		return false
	case Like:
		needle := strings.ToLower(fmt.Sprint(f.Value))
		switch v := got.(type) {
		case string:
			return strings.Contains(strings.ToLower(v), needle)
		case []any:
			for _, e := range v {
				if s, ok := e.(string); ok && strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
		}
		return false
	}
	return false
}

func normalizeFilter(f Filter) (Filter, error) {
	if f.Op == Like {
		return f, nil
	}
	v, err := normalize(f.Value)
	if err != nil {
		return f, err
	}
	f.Value = v
	return f, nil
}

func numeric(v any) float64 {
	f, _ := v.(float64)
	return f
}

const zeroTimeJSON = "0001-01-01T00:00:00Z"

// normalize round-trips v through JSON so values compare the way they are stored.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeTime(t time.Time) any {
	v, _ := normalize(t)
	return v
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("docstore: document must encode as a JSON object: %w", err)
	}
	return out, nil
}

func fromValue(v any, dest any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}
