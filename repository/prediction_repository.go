package repository

import (
	"context"

	"legalseg-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PredictionRepository handles database operations for raw prediction records
type PredictionRepository struct {
	db *pgxpool.Pool
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *pgxpool.Pool) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Create creates a new prediction record
func (r *PredictionRepository) Create(ctx context.Context, p *models.Prediction) error {
	query := `
		INSERT INTO predictions (user_id, case_id, source_text, sentences)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return r.db.QueryRow(
		ctx, query,
		p.UserID,
		p.CaseID,
		p.SourceText,
		p.Sentences,
	).Scan(&p.ID, &p.CreatedAt)
}

// ListByCaseID retrieves prediction records for a case
func (r *PredictionRepository) ListByCaseID(ctx context.Context, caseID uuid.UUID) ([]*models.Prediction, error) {
	query := `
		SELECT id, user_id, case_id, source_text, sentences, created_at
		FROM predictions
		WHERE case_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []*models.Prediction
	for rows.Next() {
		p := &models.Prediction{}
		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.CaseID,
			&p.SourceText,
			&p.Sentences,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	return preds, rows.Err()
}
