package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clearcoast/claims-cli/internal/db"
	"github.com/clearcoast/claims-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS claims (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	clinical_note       TEXT NOT NULL,
	extracted_diagnosis TEXT,
	extracted_procedure TEXT,
	icd10_candidates    JSONB,
	cpt_candidates      JSONB,
	final_icd10         TEXT,
	final_cpt           TEXT,
	confidence_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	explanation         TEXT,
	status              TEXT NOT NULL DEFAULT 'pending',
	rejection_reason    TEXT,
	rule_id             TEXT,
	payment_amount      DOUBLE PRECISION,
	settlement_id       TEXT,
	messages            JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_created_at ON claims(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateClaim(ctx context.Context, clinicalNote string) (*model.Claim, error) {
	if clinicalNote == "" {
		return nil, eris.New("postgres: clinical note is empty")
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO claims (id, clinical_note, status, messages, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, clinicalNote, string(model.ClaimStatusPending), "[]", now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert claim")
	}

	return &model.Claim{
		ID:           id,
		ClinicalNote: clinicalNote,
		Status:       model.ClaimStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *PostgresStore) SaveExtraction(ctx context.Context, id string, entities model.Entities, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE claims SET extracted_diagnosis = $1, extracted_procedure = $2, status = $3, messages = $4, updated_at = $5
		 WHERE id = $6 AND status = $7`,
		entities.Diagnosis, entities.Procedure, string(model.ClaimStatusExtracted), msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save extraction %s", id)
	}
	return s.checkCAS(ctx, tag, id)
}

func (s *PostgresStore) SaveCandidates(ctx context.Context, id string, icd10, cpt []model.CodeCandidate, messages []model.StageEvent) error {
	icdJSON, err := json.Marshal(icd10)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal icd10 candidates")
	}
	cptJSON, err := json.Marshal(cpt)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cpt candidates")
	}
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE claims SET icd10_candidates = $1, cpt_candidates = $2, status = $3, messages = $4, updated_at = $5
		 WHERE id = $6 AND status = $7`,
		string(icdJSON), string(cptJSON), string(model.ClaimStatusCoded), msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusExtracted),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save candidates %s", id)
	}
	return s.checkCAS(ctx, tag, id)
}

func (s *PostgresStore) SaveDecision(ctx context.Context, id string, decision model.Decision, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE claims SET final_icd10 = $1, final_cpt = $2, confidence_score = $3, explanation = $4, status = $5, messages = $6, updated_at = $7
		 WHERE id = $8 AND status = $9`,
		decision.FinalICD10, decision.FinalCPT, decision.Confidence, decision.Explanation,
		string(model.ClaimStatusAdjudicated), msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusCoded),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save decision %s", id)
	}
	return s.checkCAS(ctx, tag, id)
}

func (s *PostgresStore) SaveVerdict(ctx context.Context, id string, verdict model.Verdict, messages []model.StageEvent) error {
	if !verdict.Status.Terminal() {
		return eris.Errorf("postgres: verdict status %s is not terminal", verdict.Status)
	}
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal messages")
	}

	var reason *string
	if verdict.Status != model.ClaimStatusApproved {
		reason = &verdict.Reason
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE claims SET status = $1, rejection_reason = $2, rule_id = $3, messages = $4, updated_at = $5
		 WHERE id = $6 AND status = $7`,
		string(verdict.Status), reason, verdict.RuleID, msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusAdjudicated),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save verdict %s", id)
	}
	return s.checkCAS(ctx, tag, id)
}

func (s *PostgresStore) MarkError(ctx context.Context, id string, expect model.ClaimStatus, reason string, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE claims SET status = $1, rejection_reason = $2, messages = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		string(model.ClaimStatusError), reason, msgJSON, time.Now().UTC(),
		id, string(expect),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark error %s", id)
	}
	return s.checkCAS(ctx, tag, id)
}

func (s *PostgresStore) OverrideVerdict(ctx context.Context, id string, status model.ClaimStatus, reason string, messages []model.StageEvent) error {
	if status != model.ClaimStatusApproved && status != model.ClaimStatusRejected {
		return eris.Errorf("postgres: override status %s is not a review outcome", status)
	}
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE claims SET status = $1, rejection_reason = $2, messages = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		string(status), reason, msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusSuspicious),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: override verdict %s", id)
	}
	return s.checkCAS(ctx, tag, id)
}

func (s *PostgresStore) SettlePayment(ctx context.Context, id string, amount float64, settlementID string, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE claims SET payment_amount = $1, settlement_id = $2, messages = $3, updated_at = $4
		 WHERE id = $5 AND status = $6 AND settlement_id IS NULL`,
		amount, settlementID, msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusApproved),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: settle payment %s", id)
	}
	return s.checkCAS(ctx, tag, id)
}

func (s *PostgresStore) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	return scanClaim(row)
}

func (s *PostgresStore) ListClaims(ctx context.Context, filter ClaimFilter) ([]model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list claims")
	}
	defer rows.Close()

	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, eris.Wrap(rows.Err(), "postgres: list claims rows")
}

func (s *PostgresStore) checkCAS(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM claims WHERE id = $1`, id).Scan(&exists)
	if isNoRows(err) {
		return eris.Wrapf(ErrNotFound, "claim %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: check claim %s", id)
	}
	return eris.Wrapf(ErrStatusConflict, "claim %s", id)
}
