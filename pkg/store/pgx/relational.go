package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/model"
)

// RelationalStore implements store.RelationalStore on Postgres. Run-state
// updates take a row-level lock on the pipeline_runs row so a given run has
// at most one live writer.
type RelationalStore struct {
	pool *pgxpool.Pool
}

// NewRelationalStore creates the store over an existing connection pool.
func NewRelationalStore(pool *pgxpool.Pool) *RelationalStore {
	return &RelationalStore{pool: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS datasets (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS data (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	content_hash TEXT NOT NULL,
	mime TEXT NOT NULL DEFAULT '',
	raw_location TEXT NOT NULL DEFAULT '',
	token_count INT NOT NULL DEFAULT 0,
	pipeline_status TEXT NOT NULL DEFAULT 'pending',
	UNIQUE (tenant_id, content_hash)
);

CREATE TABLE IF NOT EXISTS dataset_data (
	dataset_id UUID NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
	data_id UUID NOT NULL REFERENCES data(id) ON DELETE CASCADE,
	PRIMARY KEY (dataset_id, data_id)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	dataset_id UUID NOT NULL,
	user_id UUID NOT NULL,
	status TEXT NOT NULL,
	stages_json JSONB NOT NULL DEFAULT '[]',
	warnings_json JSONB NOT NULL DEFAULT '[]',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS pipeline_runs_dataset_idx ON pipeline_runs (dataset_id, started_at DESC);

CREATE TABLE IF NOT EXISTS entity_aliases (
	tenant_id UUID NOT NULL,
	alias_id UUID NOT NULL,
	canonical_id UUID NOT NULL,
	PRIMARY KEY (tenant_id, alias_id)
);
`

// EnsureSchema creates the relational tables if they do not exist.
func (s *RelationalStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return errs.Wrap(errs.KindTransient, "ensure schema", err)
}

func (s *RelationalStore) CreateDataset(ctx context.Context, dataset *model.Dataset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO datasets (id, tenant_id, owner_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		dataset.ID, dataset.TenantID, dataset.OwnerID, dataset.Name, dataset.CreatedAt,
	)
	return errs.Wrap(errs.KindTransient, "create dataset", err)
}

func (s *RelationalStore) GetDataset(ctx context.Context, tenantID, datasetID uuid.UUID) (*model.Dataset, error) {
	var dataset model.Dataset
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, owner_id, name, created_at
		FROM datasets WHERE tenant_id = $1 AND id = $2`,
		tenantID, datasetID,
	).Scan(&dataset.ID, &dataset.TenantID, &dataset.OwnerID, &dataset.Name, &dataset.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.Newf(errs.KindNotFound, "dataset %s not found", datasetID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "get dataset", err)
	}
	return &dataset, nil
}

func (s *RelationalStore) DeleteDataset(ctx context.Context, tenantID, datasetID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM datasets WHERE tenant_id = $1 AND id = $2`, tenantID, datasetID)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "delete dataset", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.KindNotFound, "dataset %s not found", datasetID)
	}
	return nil
}

func (s *RelationalStore) PersistData(ctx context.Context, data *model.Data, datasetID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "persist data", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO data (id, tenant_id, content_hash, mime, raw_location, token_count, pipeline_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, content_hash) DO UPDATE SET mime = EXCLUDED.mime`,
		data.ID, data.TenantID, data.ContentHash, data.Mime, data.SourcePath, data.TokenCount, data.PipelineStatus,
	)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "persist data", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dataset_data (dataset_id, data_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		datasetID, data.ID,
	)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "persist dataset link", err)
	}

	return errs.Wrap(errs.KindTransient, "persist data", tx.Commit(ctx))
}

func (s *RelationalStore) ListData(ctx context.Context, datasetID uuid.UUID) ([]model.Data, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.tenant_id, d.content_hash, d.mime, d.raw_location, d.token_count, d.pipeline_status
		FROM data d
		JOIN dataset_data dd ON dd.data_id = d.id
		WHERE dd.dataset_id = $1
		ORDER BY d.id`,
		datasetID,
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "list data", err)
	}
	defer rows.Close()

	var out []model.Data
	for rows.Next() {
		var data model.Data
		if err := rows.Scan(&data.ID, &data.TenantID, &data.ContentHash, &data.Mime, &data.SourcePath, &data.TokenCount, &data.PipelineStatus); err != nil {
			return nil, errs.Wrap(errs.KindTransient, "scan data", err)
		}
		data.DatasetIDs = []uuid.UUID{datasetID}
		out = append(out, data)
	}
	return out, errs.Wrap(errs.KindTransient, "list data", rows.Err())
}

func (s *RelationalStore) UpdateDataStatus(ctx context.Context, dataID uuid.UUID, status model.PipelineStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE data SET pipeline_status = $2 WHERE id = $1`, dataID, status)
	return errs.Wrap(errs.KindTransient, "update data status", err)
}

func (s *RelationalStore) DedupData(ctx context.Context, tenantID uuid.UUID, contentHash string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM data WHERE tenant_id = $1 AND content_hash = $2`,
		tenantID, contentHash,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, errs.Wrap(errs.KindTransient, "dedup data", err)
	}
	return id, true, nil
}

func (s *RelationalStore) SaveEntityAliases(ctx context.Context, tenantID uuid.UUID, aliasOf map[uuid.UUID]uuid.UUID) error {
	if len(aliasOf) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for aliasID, canonicalID := range aliasOf {
		batch.Queue(`
			INSERT INTO entity_aliases (tenant_id, alias_id, canonical_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, alias_id) DO UPDATE SET canonical_id = EXCLUDED.canonical_id`,
			tenantID, aliasID, canonicalID,
		)
	}
	err := s.pool.SendBatch(ctx, batch).Close()
	return errs.Wrap(errs.KindTransient, "save entity aliases", err)
}

func (s *RelationalStore) ResolveEntityAlias(ctx context.Context, tenantID, entityID uuid.UUID) (uuid.UUID, bool, error) {
	var canonical uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT canonical_id FROM entity_aliases WHERE tenant_id = $1 AND alias_id = $2`,
		tenantID, entityID,
	).Scan(&canonical)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, errs.Wrap(errs.KindTransient, "resolve entity alias", err)
	}
	return canonical, true, nil
}

func (s *RelationalStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	stages, warnings, err := marshalRunState(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, dataset_id, user_id, status, stages_json, warnings_json, started_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.DatasetID, run.UserID, run.Status, stages, warnings, run.StartedAt, run.Error,
	)
	return errs.Wrap(errs.KindTransient, "create run", err)
}

func (s *RelationalStore) UpdateRun(ctx context.Context, run *model.PipelineRun) error {
	stages, warnings, err := marshalRunState(run)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "update run", err)
	}
	defer tx.Rollback(ctx)

	// row lock: one live writer per run
	if _, err := tx.Exec(ctx, `SELECT 1 FROM pipeline_runs WHERE id = $1 FOR UPDATE`, run.ID); err != nil {
		return errs.Wrap(errs.KindTransient, "lock run row", err)
	}

	var endedAt any
	if !run.EndedAt.IsZero() {
		endedAt = run.EndedAt
	}
	_, err = tx.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, stages_json = $3, warnings_json = $4, ended_at = $5, error = $6
		WHERE id = $1`,
		run.ID, run.Status, stages, warnings, endedAt, run.Error,
	)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "update run", err)
	}
	return errs.Wrap(errs.KindTransient, "update run", tx.Commit(ctx))
}

func (s *RelationalStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, dataset_id, user_id, status, stages_json, warnings_json, started_at, ended_at, error
		FROM pipeline_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.Newf(errs.KindNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "get run", err)
	}
	return run, nil
}

func (s *RelationalStore) ListRuns(ctx context.Context, datasetID uuid.UUID, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, user_id, status, stages_json, warnings_json, started_at, ended_at, error
		FROM pipeline_runs WHERE dataset_id = $1
		ORDER BY started_at DESC LIMIT $2`,
		datasetID, limit,
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "list runs", err)
	}
	defer rows.Close()

	var out []model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "scan run", err)
		}
		out = append(out, *run)
	}
	return out, errs.Wrap(errs.KindTransient, "list runs", rows.Err())
}

func marshalRunState(run *model.PipelineRun) ([]byte, []byte, error) {
	stages, err := json.Marshal(run.Stages)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindValidation, "marshal run stages", err)
	}
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindValidation, "marshal run warnings", err)
	}
	return stages, warnings, nil
}

func scanRun(row pgx.Row) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var stages, warnings []byte
	var endedAt *time.Time
	err := row.Scan(&run.ID, &run.DatasetID, &run.UserID, &run.Status, &stages, &warnings, &run.StartedAt, &endedAt, &run.Error)
	if err != nil {
		return nil, err
	}
	if endedAt != nil {
		run.EndedAt = *endedAt
	}
	if err := json.Unmarshal(stages, &run.Stages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(warnings, &run.Warnings); err != nil {
		return nil, err
	}
	return &run, nil
}
