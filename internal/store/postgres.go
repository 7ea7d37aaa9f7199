package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/placematch/internal/db"
	"github.com/sells-group/placematch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	address          TEXT NOT NULL DEFAULT '',
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	phone            TEXT NOT NULL DEFAULT '',
	categories       JSONB NOT NULL DEFAULT '[]',
	last_enriched_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_ratings (
	entity_id    BIGINT NOT NULL REFERENCES entities(id),
	source       TEXT NOT NULL,
	score        DOUBLE PRECISION NOT NULL,
	review_count INTEGER NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, source)
);

CREATE TABLE IF NOT EXISTS entity_refs (
	entity_id   BIGINT NOT NULL REFERENCES entities(id),
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, source)
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	location     TEXT NOT NULL,
	location_key TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	progress     JSONB,
	result       JSONB,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS provider_budgets (
	provider   TEXT PRIMARY KEY,
	calls      INTEGER NOT NULL DEFAULT 0,
	call_limit INTEGER,
	resets_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_coords ON entities(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_entity_refs_source ON entity_refs(source);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_location_key ON jobs(location_key, category);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Entities ---

func (s *PostgresStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	cats, err := json.Marshal(e.Categories)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal categories")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO entities (name, address, latitude, longitude, phone, categories, last_enriched_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		e.Name, e.Address, e.Latitude, e.Longitude, e.Phone, cats, e.LastEnrichedAt, now,
	).Scan(&e.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: insert entity")
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id int64) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, address, latitude, longitude, phone, categories, last_enriched_at, created_at, updated_at
		 FROM entities WHERE id = $1`, id)

	e, err := scanPgEntity(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadEntityAssoc(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	cats, err := json.Marshal(e.Categories)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal categories")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET name = $1, address = $2, latitude = $3, longitude = $4, phone = $5, categories = $6, last_enriched_at = $7, updated_at = $8
		 WHERE id = $9`,
		e.Name, e.Address, e.Latitude, e.Longitude, e.Phone, cats, e.LastEnrichedAt, now, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entity %d", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: entity %d not found", e.ID)
	}
	e.UpdatedAt = now
	return nil
}

func (s *PostgresStore) CountEntities(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count entities")
}

func (s *PostgresStore) FindCandidates(ctx context.Context, box BBox) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address, latitude, longitude, phone FROM entities
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		   AND latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4
		 ORDER BY id`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.EntityID, &c.Name, &c.Address, &c.Latitude, &c.Longitude, &c.Phone); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: find candidates iterate")
}

func (s *PostgresStore) EntitiesMissingSource(ctx context.Context, source string, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address, latitude, longitude, phone, categories, last_enriched_at, created_at, updated_at
		 FROM entities
		 WHERE id NOT IN (SELECT entity_id FROM entity_refs WHERE source = $1)
		 ORDER BY id LIMIT $2`,
		source, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: entities missing source %s", source)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: entities missing source iterate")
}

func (s *PostgresStore) UpsertRating(ctx context.Context, entityID int64, source string, rating model.SourceRating) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entity_ratings (entity_id, source, score, review_count, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (entity_id, source) DO UPDATE SET score = EXCLUDED.score, review_count = EXCLUDED.review_count, updated_at = now()`,
		entityID, source, rating.Score, rating.ReviewCount,
	)
	return eris.Wrapf(err, "postgres: upsert rating %d/%s", entityID, source)
}

func (s *PostgresStore) UpsertExternalRef(ctx context.Context, entityID int64, source, externalID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entity_refs (entity_id, source, external_id, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (entity_id, source) DO UPDATE SET external_id = EXCLUDED.external_id, updated_at = now()`,
		entityID, source, externalID,
	)
	return eris.Wrapf(err, "postgres: upsert external ref %d/%s", entityID, source)
}

func (s *PostgresStore) HasExternalRef(ctx context.Context, entityID int64, source string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM entity_refs WHERE entity_id = $1 AND source = $2`,
		entityID, source,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has external ref %d/%s", entityID, source)
	}
	return n > 0, nil
}

func (s *PostgresStore) loadEntityAssoc(ctx context.Context, e *model.Entity) error {
	rows, err := s.pool.Query(ctx,
		`SELECT source, score, review_count FROM entity_ratings WHERE entity_id = $1`, e.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: load ratings")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var r model.SourceRating
		if err := rows.Scan(&source, &r.Score, &r.ReviewCount); err != nil {
			return eris.Wrap(err, "postgres: scan rating")
		}
		if e.Ratings == nil {
			e.Ratings = make(map[string]model.SourceRating)
		}
		e.Ratings[source] = r
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: load ratings iterate")
	}

	refRows, err := s.pool.Query(ctx,
		`SELECT source, external_id FROM entity_refs WHERE entity_id = $1`, e.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: load refs")
	}
	defer refRows.Close()
	for refRows.Next() {
		var source, externalID string
		if err := refRows.Scan(&source, &externalID); err != nil {
			return eris.Wrap(err, "postgres: scan ref")
		}
		if e.ExternalRefs == nil {
			e.ExternalRefs = make(map[string]string)
		}
		e.ExternalRefs[source] = externalID
	}
	return eris.Wrap(refRows.Err(), "postgres: load refs iterate")
}

// --- Jobs ---

const pgJobColumns = `id, location, category, status, progress, result, error, created_at, started_at, completed_at`

func (s *PostgresStore) CreateJob(ctx context.Context, location, category string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, location, location_key, category, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, location, normalizeLocation(location), category, string(model.JobPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:        id,
		Location:  location,
		Category:  category,
		Status:    model.JobPending,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanPgJob(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgJobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) ClaimNextPending(ctx context.Context) (*model.Job, error) {
	// SKIP LOCKED keeps concurrent workers from claiming the same job.
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $1, started_at = now()
		 WHERE id = (
		   SELECT id FROM jobs WHERE status = $2
		   ORDER BY created_at, id LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+pgJobColumns,
		string(model.JobRunning), string(model.JobPending),
	)
	j, err := scanPgJob(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id string, p *model.Progress) error {
	progressJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal progress")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET progress = $1 WHERE id = $2 AND status = $3`,
		progressJSON, id, string(model.JobRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: job %s not running", id)
	}
	return nil
}

func (s *PostgresStore) MarkJobCompleted(ctx context.Context, id string, result *model.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, result = $2, completed_at = now() WHERE id = $3 AND status = $4`,
		string(model.JobCompleted), resultJSON, id, string(model.JobRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job completed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: job %s not running", id)
	}
	return nil
}

func (s *PostgresStore) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, completed_at = now() WHERE id = $3 AND status = $4`,
		string(model.JobFailed), errMsg, id, string(model.JobRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: job %s not running", id)
	}
	return nil
}

func (s *PostgresStore) FindRecentCompleted(ctx context.Context, location, category string, within time.Duration) (*model.Job, error) {
	cutoff := time.Now().UTC().Add(-within)
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgJobColumns+` FROM jobs
		 WHERE location_key = $1 AND category = $2 AND status = $3 AND completed_at >= $4
		 ORDER BY completed_at DESC LIMIT 1`,
		normalizeLocation(location), category, string(model.JobCompleted), cutoff,
	)
	j, err := scanPgJob(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// --- Budgets ---

func (s *PostgresStore) TryRecordCall(ctx context.Context, provider string, limit *int, window time.Duration) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin budget tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()

	var calls int
	var resetsAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT calls, resets_at FROM provider_budgets WHERE provider = $1 FOR UPDATE`, provider,
	).Scan(&calls, &resetsAt)

	switch {
	case eris.Is(err, pgx.ErrNoRows):
		if limit != nil && *limit <= 0 {
			return false, nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO provider_budgets (provider, calls, call_limit, resets_at) VALUES ($1, 1, $2, $3)`,
			provider, limit, now.Add(window),
		)
		if err != nil {
			return false, eris.Wrapf(err, "postgres: insert budget %s", provider)
		}
		return true, eris.Wrap(tx.Commit(ctx), "postgres: commit budget tx")
	case err != nil:
		return false, eris.Wrapf(err, "postgres: read budget %s", provider)
	}

	if !resetsAt.After(now) {
		calls = 0
		resetsAt = now.Add(window)
	}
	if limit != nil && calls >= *limit {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE provider_budgets SET calls = $1, call_limit = $2, resets_at = $3 WHERE provider = $4`,
		calls+1, limit, resetsAt, provider,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update budget %s", provider)
	}
	return true, eris.Wrap(tx.Commit(ctx), "postgres: commit budget tx")
}

func (s *PostgresStore) GetBudget(ctx context.Context, provider string) (*model.Budget, error) {
	b := model.Budget{Provider: provider}
	err := s.pool.QueryRow(ctx,
		`SELECT calls, call_limit, resets_at FROM provider_budgets WHERE provider = $1`, provider,
	).Scan(&b.Calls, &b.Limit, &b.ResetsAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get budget %s", provider)
	}
	return &b, nil
}

// --- scan helpers ---

func scanPgEntity(row pgx.Row) (*model.Entity, error) {
	var e model.Entity
	var cats []byte
	if err := row.Scan(&e.ID, &e.Name, &e.Address, &e.Latitude, &e.Longitude, &e.Phone, &cats, &e.LastEnrichedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan entity")
	}
	if err := json.Unmarshal(cats, &e.Categories); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal categories")
	}
	return &e, nil
}

func scanPgJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	var progress, result []byte
	if err := row.Scan(&j.ID, &j.Location, &j.Category, &status, &progress, &result, &j.Error, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan job")
	}
	j.Status = model.JobStatus(status)
	if len(progress) > 0 {
		var p model.Progress
		if err := json.Unmarshal(progress, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal progress")
		}
		j.Progress = &p
	}
	if len(result) > 0 {
		var r model.JobResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
		j.Result = &r
	}
	return &j, nil
}
