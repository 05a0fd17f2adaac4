package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/clearcoast/claims-cli/internal/model"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// claimColumns is the canonical column order shared by every claim read.
const claimColumns = `id, clinical_note, extracted_diagnosis, extracted_procedure,
	icd10_candidates, cpt_candidates, final_icd10, final_cpt,
	confidence_score, explanation, status, rejection_reason, rule_id,
	payment_amount, settlement_id, messages, created_at, updated_at`

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*model.Claim, error) {
	var (
		c             model.Claim
		diagnosis     sql.NullString
		procedure     sql.NullString
		icdJSON       sql.NullString
		cptJSON       sql.NullString
		finalICD      sql.NullString
		finalCPT      sql.NullString
		explanation   sql.NullString
		status        string
		rejectionRsn  sql.NullString
		ruleID        sql.NullString
		paymentAmount sql.NullFloat64
		settlementID  sql.NullString
		msgJSON       string
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&c.ID, &c.ClinicalNote, &diagnosis, &procedure,
		&icdJSON, &cptJSON, &finalICD, &finalCPT,
		&c.ConfidenceScore, &explanation, &status, &rejectionRsn, &ruleID,
		&paymentAmount, &settlementID, &msgJSON, &createdAt, &updatedAt,
	)
	if isNoRows(err) {
		return nil, eris.Wrapf(ErrNotFound, "claim")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan claim")
	}

	c.ExtractedDiagnosis = diagnosis.String
	c.ExtractedProcedure = procedure.String
	c.FinalICD10 = finalICD.String
	c.FinalCPT = finalCPT.String
	c.Explanation = explanation.String
	c.Status = model.ClaimStatus(status)
	c.RejectionReason = rejectionRsn.String
	c.RuleID = ruleID.String
	c.SettlementID = settlementID.String
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt

	if paymentAmount.Valid {
		amount := paymentAmount.Float64
		c.PaymentAmount = &amount
	}

	if icdJSON.Valid && icdJSON.String != "" {
		if err := json.Unmarshal([]byte(icdJSON.String), &c.ICD10Candidates); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal icd10 candidates")
		}
	}
	if cptJSON.Valid && cptJSON.String != "" {
		if err := json.Unmarshal([]byte(cptJSON.String), &c.CPTCandidates); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal cpt candidates")
		}
	}
	if msgJSON != "" {
		if err := json.Unmarshal([]byte(msgJSON), &c.Messages); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal messages")
		}
	}

	return &c, nil
}

func marshalMessages(messages []model.StageEvent) (string, error) {
	if messages == nil {
		messages = []model.StageEvent{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
