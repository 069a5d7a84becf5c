package pgvector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/store"
)

// VectorStore implements store.VectorStore on Postgres with the pgvector
// extension. All collections share one table partitioned by the collection
// name; upserts only replace a record when the incoming payload carries a
// strictly higher version.
type VectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewVectorStore creates the store over an existing pool. dimensions must
// match the embedder's output width.
func NewVectorStore(pool *pgxpool.Pool, dimensions int) *VectorStore {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &VectorStore{pool: pool, dimensions: dimensions}
}

// EnsureSchema creates the pgvector extension, the record table and a btree
// index on the collection column. No ANN index is created; a search orders
// every record of the collection by distance.
func (s *VectorStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_records (
			collection TEXT NOT NULL,
			id UUID NOT NULL,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			version INT NOT NULL DEFAULT 0,
			PRIMARY KEY (collection, id)
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS vector_records_collection_idx ON vector_records (collection)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errs.Wrap(errs.KindTransient, "ensure vector schema", err)
		}
	}
	return nil
}

func (s *VectorStore) Upsert(ctx context.Context, collection string, records []store.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		payload, err := json.Marshal(record.Payload)
		if err != nil {
			return errs.Wrap(errs.KindValidation, "marshal vector payload", err)
		}
		batch.Queue(`
			INSERT INTO vector_records (collection, id, embedding, payload, version)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (collection, id) DO UPDATE
			SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload, version = EXCLUDED.version
			WHERE vector_records.version < EXCLUDED.version`,
			collection, record.ID, pgvec.NewVector(record.Vector), payload, payloadVersion(record.Payload),
		)
	}
	err := s.pool.SendBatch(ctx, batch).Close()
	return errs.Wrap(errs.KindTransient, "vector upsert", err)
}

func (s *VectorStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]store.SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, payload, 1 - (embedding <=> $2) AS score
		FROM vector_records
		WHERE collection = $1
		ORDER BY embedding <=> $2, id
		LIMIT $3`,
		collection, pgvec.NewVector(vector), k,
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "vector search", err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var hit store.SearchHit
		var payload []byte
		if err := rows.Scan(&hit.ID, &payload, &hit.Score); err != nil {
			return nil, errs.Wrap(errs.KindTransient, "scan vector hit", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &hit.Payload); err != nil {
				return nil, errs.Wrap(errs.KindTransient, "decode vector payload", err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, errs.Wrap(errs.KindTransient, "vector search", rows.Err())
}

func (s *VectorStore) Scan(ctx context.Context, collection string, limit int) ([]store.SearchHit, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, payload FROM vector_records
		WHERE collection = $1
		ORDER BY id LIMIT $2`,
		collection, limit,
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "vector scan", err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var hit store.SearchHit
		var payload []byte
		if err := rows.Scan(&hit.ID, &payload); err != nil {
			return nil, errs.Wrap(errs.KindTransient, "scan vector record", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &hit.Payload); err != nil {
				return nil, errs.Wrap(errs.KindTransient, "decode vector payload", err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, errs.Wrap(errs.KindTransient, "vector scan", rows.Err())
}

func (s *VectorStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	if len(filter) == 0 {
		_, err := s.pool.Exec(ctx, `DELETE FROM vector_records WHERE collection = $1`, collection)
		return errs.Wrap(errs.KindTransient, "vector delete", err)
	}

	condition, err := json.Marshal(filter)
	if err != nil {
		return errs.Wrap(errs.KindValidation, "marshal vector filter", err)
	}
	_, err = s.pool.Exec(ctx, `
		DELETE FROM vector_records WHERE collection = $1 AND payload @> $2`,
		collection, condition,
	)
	return errs.Wrap(errs.KindTransient, "vector delete", err)
}

func payloadVersion(payload map[string]any) int {
	switch v := payload["version"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
