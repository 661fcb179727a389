package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/crowdguard/crowdguard/internal/idgen"
)

// StoredAssessment is one audit trail row.
type StoredAssessment struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"projectId"`
	Overall      int             `json:"overall"`
	RiskLevel    string          `json:"riskLevel"`
	Probability  float64         `json:"probability"`
	ModelVersion string          `json:"modelVersion"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store persists assessment results for history queries. Implementations
// must be safe for concurrent use.
type Store interface {
	Record(ctx context.Context, result *Result) error
	ListByProject(ctx context.Context, projectID string, limit int) ([]StoredAssessment, error)
}

// MemoryStore keeps assessments in memory. Used in tests and when no
// database is configured but history is still wanted.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []StoredAssessment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, result *Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, StoredAssessment{
		ID:           idgen.WithPrefix("risk"),
		ProjectID:    result.ProjectID,
		Overall:      result.RiskScore.Overall,
		RiskLevel:    string(result.RiskLevel),
		Probability:  result.SuccessPrediction.Probability,
		ModelVersion: result.SuccessPrediction.ModelVersion,
		Payload:      payload,
		CreatedAt:    time.Now(),
	})
	return nil
}

func (s *MemoryStore) ListByProject(_ context.Context, projectID string, limit int) ([]StoredAssessment, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StoredAssessment
	// Newest first.
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if s.rows[i].ProjectID == projectID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

// PostgresStore persists assessments to the risk_assessments table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, result *Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, project_id, overall, risk_level, probability, model_version, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		idgen.WithPrefix("risk"),
		result.ProjectID,
		result.RiskScore.Overall,
		string(result.RiskLevel),
		result.SuccessPrediction.Probability,
		result.SuccessPrediction.ModelVersion,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByProject(ctx context.Context, projectID string, limit int) ([]StoredAssessment, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, overall, risk_level, probability, model_version, payload, created_at
		FROM risk_assessments
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredAssessment
	for rows.Next() {
		var a StoredAssessment
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Overall, &a.RiskLevel, &a.Probability, &a.ModelVersion, &a.Payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
