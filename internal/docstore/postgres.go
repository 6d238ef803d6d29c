package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"
)

const documentsSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL,
		version    BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	)
`

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	maxCommitAttempts = 3
)

// PostgresStore keeps each document as a JSONB row. A batch runs inside one
// transaction and numeric increments are evaluated by the database, so
// concurrent balance updates never overwrite each other.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, documentsSchema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ref Ref) (*Snapshot, error) {
	query := `
		SELECT data, version, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	snap := &Snapshot{Ref: ref}
	var data []byte
	err := s.db.QueryRowContext(ctx, query, ref.Collection, ref.ID).Scan(&data, &snap.Version, &snap.UpdateTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	snap.Data = data
	return snap, nil
}

// Commit runs the batch in one transaction. Rows that get updated in place are
// locked first in Ref order, so batches touching the same documents, such as
// opposing transfers, queue behind each other instead of deadlocking. A
// transaction the database still aborts as a deadlock or serialization
// failure is retried from scratch.
func (s *PostgresStore) Commit(ctx context.Context, batch *Batch) error {
	if err := batch.Err(); err != nil {
		return err
	}
	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		err = s.commitOnce(ctx, batch)
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *PostgresStore) commitOnce(ctx context.Context, batch *Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ref := range lockOrder(batch.Ops()) {
		if _, err := tx.ExecContext(ctx,
			`SELECT 1 FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			ref.Collection, ref.ID,
		); err != nil {
			return fmt.Errorf("failed to lock %s: %w", ref, err)
		}
	}

	for _, op := range batch.Ops() {
		if err := execOp(ctx, tx, op); err != nil {
			return &OpError{Op: op, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// lockOrder returns the distinct refs a batch may update in place, sorted by
// collection then id. Creates only insert new rows and take no row lock.
func lockOrder(ops []Op) []Ref {
	seen := make(map[Ref]struct{}, len(ops))
	refs := make([]Ref, 0, len(ops))
	for _, op := range ops {
		if op.Kind == OpCreate {
			continue
		}
		if _, ok := seen[op.Ref]; ok {
			continue
		}
		seen[op.Ref] = struct{}{}
		refs = append(refs, op.Ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Collection != refs[j].Collection {
			return refs[i].Collection < refs[j].Collection
		}
		return refs[i].ID < refs[j].ID
	})
	return refs
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == serializationFailure || pqErr.Code == deadlockDetected
}

func execOp(ctx context.Context, tx *sql.Tx, op Op) error {
	switch op.Kind {
	case OpCreate:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3::jsonb)
		`, op.Ref.Collection, op.Ref.ID, string(op.Data))
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return err
	case OpSet:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (collection, id) DO UPDATE
			SET data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
		`, op.Ref.Collection, op.Ref.ID, string(op.Data))
		return err
	case OpIncrement:
		return execIncrement(ctx, tx, op)
	case OpArrayUnion:
		values, err := json.Marshal(op.Values)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb))
			ON CONFLICT (collection, id) DO UPDATE
			SET data = jsonb_set(documents.data, ARRAY[$3::text],
					COALESCE(documents.data->$3::text, '[]'::jsonb) || COALESCE((
						SELECT jsonb_agg(v)
						FROM jsonb_array_elements(EXCLUDED.data->$3::text) AS v
						WHERE NOT COALESCE(documents.data->$3::text, '[]'::jsonb) @> jsonb_build_array(v)
					), '[]'::jsonb)),
				version = documents.version + 1,
				updated_at = NOW()
		`, op.Ref.Collection, op.Ref.ID, op.Field, string(values))
		return err
	default:
		return fmt.Errorf("unsupported operation %d", op.Kind)
	}
}

// execIncrement adds the delta in SQL and applies the floor in the same
// statement, so the check and the write see the same row version.
func execIncrement(ctx context.Context, tx *sql.Tx, op Op) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET data = jsonb_set(data, ARRAY[$3::text], to_jsonb(COALESCE((data->>$3::text)::numeric, 0) + $4::numeric)),
			version = version + 1,
			updated_at = NOW()
		WHERE collection = $1 AND id = $2
			AND ($5::numeric IS NULL OR COALESCE((data->>$3::text)::numeric, 0) + $4::numeric >= $5::numeric)
	`, op.Ref.Collection, op.Ref.ID, op.Field, op.Delta, op.Floor)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
		op.Ref.Collection, op.Ref.ID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrPreconditionFailed
}
