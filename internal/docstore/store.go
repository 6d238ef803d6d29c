// Package docstore is a schemaless collection-of-documents store with point
// reads and atomic multi-document batch commits.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrAlreadyExists      = errors.New("document already exists")
	ErrPreconditionFailed = errors.New("document precondition failed")
)

// Store is implemented by every backend. Commit applies all operations of a
// batch or none of them.
type Store interface {
	Get(ctx context.Context, ref Ref) (*Snapshot, error)
	Commit(ctx context.Context, batch *Batch) error
}

type Ref struct {
	Collection string
	ID         string
}

func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

type Snapshot struct {
	Ref        Ref
	Data       json.RawMessage
	Version    int64
	UpdateTime time.Time
}

func (s *Snapshot) DataTo(v any) error {
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.Ref, err)
	}
	return nil
}

type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpSet
	OpIncrement
	OpArrayUnion
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpSet:
		return "set"
	case OpIncrement:
		return "increment"
	case OpArrayUnion:
		return "arrayUnion"
	default:
		return "unknown"
	}
}

// Op is a single staged write.
type Op struct {
	Kind  OpKind
	Ref   Ref
	Data  json.RawMessage
	Field string
	Delta decimal.Decimal
	// Floor, when valid, is the lowest value the incremented field may reach.
	Floor  decimal.NullDecimal
	Values []string
}

// OpError identifies the batch operation that made a commit fail.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op.Kind, e.Op.Ref, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Batch collects writes for one atomic commit. Encoding failures are kept and
// reported by Err so calls can be chained.
type Batch struct {
	ops []Op
	err error
}

func NewBatch() *Batch {
	return &Batch{}
}

// Create fails the commit if the document already exists.
func (b *Batch) Create(ref Ref, data any) *Batch {
	return b.addData(OpCreate, ref, data)
}

// Set creates the document or replaces its whole body.
func (b *Batch) Set(ref Ref, data any) *Batch {
	return b.addData(OpSet, ref, data)
}

// Increment adds delta to a numeric field of an existing document.
func (b *Batch) Increment(ref Ref, field string, delta decimal.Decimal) *Batch {
	b.ops = append(b.ops, Op{Kind: OpIncrement, Ref: ref, Field: field, Delta: delta})
	return b
}

// IncrementWithFloor is Increment guarded by a lower bound evaluated against
// the stored value at commit time; crossing it fails the commit with
// ErrPreconditionFailed.
func (b *Batch) IncrementWithFloor(ref Ref, field string, delta, floor decimal.Decimal) *Batch {
	b.ops = append(b.ops, Op{
		Kind:  OpIncrement,
		Ref:   ref,
		Field: field,
		Delta: delta,
		Floor: decimal.NullDecimal{Decimal: floor, Valid: true},
	})
	return b
}

// ArrayUnion appends the values missing from an array field, creating the
// document when it does not exist yet.
func (b *Batch) ArrayUnion(ref Ref, field string, values ...string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpArrayUnion, Ref: ref, Field: field, Values: dedupe(values)})
	return b
}

func (b *Batch) Ops() []Op { return b.ops }

func (b *Batch) Err() error { return b.err }

func (b *Batch) addData(kind OpKind, ref Ref, data any) *Batch {
	raw, err := json.Marshal(data)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("failed to encode %s: %w", ref, err)
		}
		return b
	}
	b.ops = append(b.ops, Op{Kind: kind, Ref: ref, Data: raw})
	return b
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
