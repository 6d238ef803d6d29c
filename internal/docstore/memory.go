package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memDoc struct {
	data    json.RawMessage
	version int64
	updated time.Time
}

// MemoryStore keeps documents in process. A single mutex serialises commits,
// which makes every batch atomic and isolated.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[Ref]*memDoc
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[Ref]*memDoc),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, ref Ref) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return doc.snapshot(ref), nil
}

// List returns every document of a collection ordered by id.
func (s *MemoryStore) List(collection string) []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Snapshot
	for ref, doc := range s.docs {
		if ref.Collection == collection {
			out = append(out, doc.snapshot(ref))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out
}

func (s *MemoryStore) Commit(ctx context.Context, batch *Batch) error {
	if err := batch.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// staged holds the post-batch state of every touched ref.
	staged := make(map[Ref]*memDoc)
	current := func(ref Ref) *memDoc {
		if doc, ok := staged[ref]; ok {
			return doc
		}
		return s.docs[ref]
	}

	for _, op := range batch.Ops() {
		prev := current(op.Ref)
		next, err := applyOp(op, prev)
		if err != nil {
			return &OpError{Op: op, Err: err}
		}
		next.updated = now
		next.version = 1
		if prev != nil {
			next.version = prev.version + 1
		}
		staged[op.Ref] = next
	}

	for ref, doc := range staged {
		s.docs[ref] = doc
	}
	return nil
}

func applyOp(op Op, prev *memDoc) (*memDoc, error) {
	switch op.Kind {
	case OpCreate:
		if prev != nil {
			return nil, ErrAlreadyExists
		}
		return &memDoc{data: op.Data}, nil
	case OpSet:
		return &memDoc{data: op.Data}, nil
	case OpIncrement:
		if prev == nil {
			return nil, ErrNotFound
		}
		return incrementField(prev, op)
	case OpArrayUnion:
		return unionField(prev, op)
	default:
		return nil, fmt.Errorf("unsupported operation %d", op.Kind)
	}
}

func incrementField(prev *memDoc, op Op) (*memDoc, error) {
	fields, err := decodeFields(prev.data)
	if err != nil {
		return nil, err
	}
	current, err := numericField(fields[op.Field])
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", op.Field, err)
	}
	next := current.Add(op.Delta)
	if op.Floor.Valid && next.LessThan(op.Floor.Decimal) {
		return nil, ErrPreconditionFailed
	}
	fields[op.Field] = json.Number(next.String())
	return encodeFields(fields)
}

func unionField(prev *memDoc, op Op) (*memDoc, error) {
	fields := map[string]any{}
	if prev != nil {
		var err error
		if fields, err = decodeFields(prev.data); err != nil {
			return nil, err
		}
	}

	var existing []any
	switch v := fields[op.Field].(type) {
	case nil:
	case []any:
		existing = v
	default:
		return nil, fmt.Errorf("field %q is not an array", op.Field)
	}

	present := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		if str, ok := v.(string); ok {
			present[str] = struct{}{}
		}
	}
	merged := append([]any{}, existing...)
	for _, v := range op.Values {
		if _, ok := present[v]; !ok {
			merged = append(merged, v)
		}
	}
	fields[op.Field] = merged
	return encodeFields(fields)
}

func numericField(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("not a number: %v", v)
	}
}

func decodeFields(data json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return fields, nil
}

func encodeFields(fields map[string]any) (*memDoc, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return &memDoc{data: raw}, nil
}

func (d *memDoc) snapshot(ref Ref) *Snapshot {
	return &Snapshot{
		Ref:        ref,
		Data:       append(json.RawMessage(nil), d.data...),
		Version:    d.version,
		UpdateTime: d.updated,
	}
}
