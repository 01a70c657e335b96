// Package db persists AnonymizationResult envelopes to PostgreSQL via pgx:
// a pgxpool.Pool-backed store with a Connect/InitSchema/Close lifecycle and
// an upsert-on-conflict persistence pattern, storing envelopes the result
// package can rehydrate through result.FromState.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS anonymization_runs (
	run_id          TEXT PRIMARY KEY,
	heights         JSONB NOT NULL,
	optimum_id      BIGINT,
	have_optimum    BOOLEAN NOT NULL DEFAULT FALSE,
	node_state      JSONB NOT NULL,
	duration_millis BIGINT NOT NULL DEFAULT 0,
	rows            INT NOT NULL DEFAULT 0,
	qi_columns      INT NOT NULL DEFAULT 0,
	domain          INT NOT NULL DEFAULT 0,
	k               INT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("Successfully connected to PostgreSQL for anonymization engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the run-persistence table if it does not already
// exist.
func (s *PostgresStore) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Anonymization engine schema initialized")
	return nil
}

// NodeState is one lattice node's persisted property/score cells, the unit
// a RunEnvelope's NodeState map is keyed by (node id, as a decimal string
// since JSON object keys must be strings).
type NodeState struct {
	Properties      uint32  `json:"properties"`
	InformationLoss *float64 `json:"informationLoss,omitempty"`
	LowerBound      *float64 `json:"lowerBound,omitempty"`
}

// RunEnvelope is the full serializable snapshot of a finished
// anonymization run: enough to rehydrate a result.AnonymizationResult via
// result.FromState without re-running the search. Rows/QIColumns/Domain/K
// record the parameters the originating dataset was synthesized from, so a
// load after process restart can rebuild an equivalently shaped dataset to
// attach the restored lattice state to.
type RunEnvelope struct {
	RunID          string               `json:"runId"`
	Heights        []int                `json:"heights"`
	OptimumID      int64                `json:"optimumId"`
	HaveOptimum    bool                 `json:"haveOptimum"`
	NodeState      map[string]NodeState `json:"nodeState"`
	DurationMillis int64                `json:"durationMillis"`
	Rows           int                  `json:"rows"`
	QIColumns      int                  `json:"qiColumns"`
	Domain         int                  `json:"domain"`
	K              int                  `json:"k"`
}

// SaveRun upserts a run's envelope, keyed by its RunID.
func (s *PostgresStore) SaveRun(ctx context.Context, env RunEnvelope) error {
	heightsJSON, err := json.Marshal(env.Heights)
	if err != nil {
		return fmt.Errorf("marshal heights: %w", err)
	}
	nodeStateJSON, err := json.Marshal(env.NodeState)
	if err != nil {
		return fmt.Errorf("marshal node state: %w", err)
	}

	const sql = `
		INSERT INTO anonymization_runs (run_id, heights, optimum_id, have_optimum, node_state, duration_millis, rows, qi_columns, domain, k)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE
		SET heights = EXCLUDED.heights,
		    optimum_id = EXCLUDED.optimum_id,
		    have_optimum = EXCLUDED.have_optimum,
		    node_state = EXCLUDED.node_state,
		    duration_millis = EXCLUDED.duration_millis,
		    rows = EXCLUDED.rows,
		    qi_columns = EXCLUDED.qi_columns,
		    domain = EXCLUDED.domain,
		    k = EXCLUDED.k,
		    updated_at = NOW();
	`
	_, err = s.pool.Exec(ctx, sql, env.RunID, heightsJSON, env.OptimumID, env.HaveOptimum, nodeStateJSON, env.DurationMillis, env.Rows, env.QIColumns, env.Domain, env.K)
	if err != nil {
		return fmt.Errorf("failed to upsert anonymization run: %v", err)
	}
	return nil
}

// LoadRun fetches a previously saved envelope by run id.
func (s *PostgresStore) LoadRun(ctx context.Context, runID string) (*RunEnvelope, error) {
	const sql = `
		SELECT run_id, heights, optimum_id, have_optimum, node_state, duration_millis, rows, qi_columns, domain, k
		FROM anonymization_runs WHERE run_id = $1;
	`
	var env RunEnvelope
	var heightsJSON, nodeStateJSON []byte
	err := s.pool.QueryRow(ctx, sql, runID).Scan(&env.RunID, &heightsJSON, &env.OptimumID, &env.HaveOptimum, &nodeStateJSON, &env.DurationMillis, &env.Rows, &env.QIColumns, &env.Domain, &env.K)
	if err != nil {
		return nil, fmt.Errorf("failed to load anonymization run %q: %w", runID, err)
	}
	if err := json.Unmarshal(heightsJSON, &env.Heights); err != nil {
		return nil, fmt.Errorf("unmarshal heights: %w", err)
	}
	if err := json.Unmarshal(nodeStateJSON, &env.NodeState); err != nil {
		return nil, fmt.Errorf("unmarshal node state: %w", err)
	}
	return &env, nil
}

// ListRuns returns the run ids persisted so far, most recently updated
// first, capped at limit.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT run_id FROM anonymization_runs ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// GetPool exposes the connection pool for collaborators that need direct
// access for their own queries.
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
