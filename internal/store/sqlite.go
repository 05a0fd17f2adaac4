package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clearcoast/claims-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS claims (
	id                  TEXT PRIMARY KEY,
	clinical_note       TEXT NOT NULL,
	extracted_diagnosis TEXT,
	extracted_procedure TEXT,
	icd10_candidates    TEXT,
	cpt_candidates      TEXT,
	final_icd10         TEXT,
	final_cpt           TEXT,
	confidence_score    REAL NOT NULL DEFAULT 0,
	explanation         TEXT,
	status              TEXT NOT NULL DEFAULT 'pending',
	rejection_reason    TEXT,
	rule_id             TEXT,
	payment_amount      REAL,
	settlement_id       TEXT,
	messages            TEXT NOT NULL DEFAULT '[]',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_created_at ON claims(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateClaim(ctx context.Context, clinicalNote string) (*model.Claim, error) {
	if clinicalNote == "" {
		return nil, eris.New("sqlite: clinical note is empty")
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (id, clinical_note, status, messages, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, clinicalNote, string(model.ClaimStatusPending), "[]", now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert claim")
	}

	return &model.Claim{
		ID:           id,
		ClinicalNote: clinicalNote,
		Status:       model.ClaimStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *SQLiteStore) SaveExtraction(ctx context.Context, id string, entities model.Entities, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal messages")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET extracted_diagnosis = ?, extracted_procedure = ?, status = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		entities.Diagnosis, entities.Procedure, string(model.ClaimStatusExtracted), msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save extraction %s", id)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *SQLiteStore) SaveCandidates(ctx context.Context, id string, icd10, cpt []model.CodeCandidate, messages []model.StageEvent) error {
	icdJSON, err := json.Marshal(icd10)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal icd10 candidates")
	}
	cptJSON, err := json.Marshal(cpt)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cpt candidates")
	}
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal messages")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET icd10_candidates = ?, cpt_candidates = ?, status = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(icdJSON), string(cptJSON), string(model.ClaimStatusCoded), msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusExtracted),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save candidates %s", id)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, id string, decision model.Decision, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal messages")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET final_icd10 = ?, final_cpt = ?, confidence_score = ?, explanation = ?, status = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		decision.FinalICD10, decision.FinalCPT, decision.Confidence, decision.Explanation,
		string(model.ClaimStatusAdjudicated), msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusCoded),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save decision %s", id)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *SQLiteStore) SaveVerdict(ctx context.Context, id string, verdict model.Verdict, messages []model.StageEvent) error {
	if !verdict.Status.Terminal() {
		return eris.Errorf("sqlite: verdict status %s is not terminal", verdict.Status)
	}
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal messages")
	}

	reason := sql.NullString{String: verdict.Reason, Valid: verdict.Status != model.ClaimStatusApproved}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET status = ?, rejection_reason = ?, rule_id = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(verdict.Status), reason, verdict.RuleID, msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusAdjudicated),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save verdict %s", id)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *SQLiteStore) MarkError(ctx context.Context, id string, expect model.ClaimStatus, reason string, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal messages")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET status = ?, rejection_reason = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.ClaimStatusError), reason, msgJSON, time.Now().UTC(),
		id, string(expect),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark error %s", id)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *SQLiteStore) OverrideVerdict(ctx context.Context, id string, status model.ClaimStatus, reason string, messages []model.StageEvent) error {
	if status != model.ClaimStatusApproved && status != model.ClaimStatusRejected {
		return eris.Errorf("sqlite: override status %s is not a review outcome", status)
	}
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal messages")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET status = ?, rejection_reason = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), reason, msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusSuspicious),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: override verdict %s", id)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *SQLiteStore) SettlePayment(ctx context.Context, id string, amount float64, settlementID string, messages []model.StageEvent) error {
	msgJSON, err := marshalMessages(messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal messages")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET payment_amount = ?, settlement_id = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND settlement_id IS NULL`,
		amount, settlementID, msgJSON, time.Now().UTC(),
		id, string(model.ClaimStatusApproved),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: settle payment %s", id)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *SQLiteStore) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	return scanClaim(row)
}

func (s *SQLiteStore) ListClaims(ctx context.Context, filter ClaimFilter) ([]model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list claims")
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
	return claims, eris.Wrap(rows.Err(), "sqlite: list claims rows")
}

// checkCAS verifies a compare-and-set update landed. Zero rows affected
// means either the claim is gone or it moved to a different status since
// the caller last saw it.
func (s *SQLiteStore) checkCAS(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM claims WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "claim %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: check claim %s", id)
	}
	return eris.Wrapf(ErrStatusConflict, "claim %s", id)
}
