package repository

import (
	"context"
	"errors"
	"fmt"

	"legalseg-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CaseRepository handles database operations for analyzed cases
type CaseRepository struct {
	db *pgxpool.Pool
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

// Append inserts a new case into the user's case list.
// The sentence_count column must match the stored sentence list.
func (r *CaseRepository) Append(ctx context.Context, c *models.Case) error {
	if c.SentenceCount != len(c.Sentences) {
		return fmt.Errorf("sentence_count %d does not match %d stored sentences", c.SentenceCount, len(c.Sentences))
	}

	query := `
		INSERT INTO cases (
			id, user_id, title, stored_filename, status, sentence_count,
			summary, avg_confidence, sentences
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	return r.db.QueryRow(
		ctx, query,
		c.ID,
		c.UserID,
		c.Title,
		c.StoredFilename,
		c.Status,
		c.SentenceCount,
		c.Summary,
		c.AvgConfidence,
		c.Sentences,
	).Scan(&c.CreatedAt)
}

// GetByID retrieves a case by ID
func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	c := &models.Case{}
	query := `
		SELECT id, user_id, title, stored_filename, status, sentence_count,
		       summary, avg_confidence, sentences, created_at
		FROM cases
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.StoredFilename,
		&c.Status,
		&c.SentenceCount,
		&c.Summary,
		&c.AvgConfidence,
		&c.Sentences,
		&c.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return c, nil
}

// ListByUserID retrieves all cases for a user, newest first
func (r *CaseRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Case, error) {
	query := `
		SELECT id, user_id, title, stored_filename, status, sentence_count,
		       summary, avg_confidence, sentences, created_at
		FROM cases
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c := &models.Case{}
		err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.Title,
			&c.StoredFilename,
			&c.Status,
			&c.SentenceCount,
			&c.Summary,
			&c.AvgConfidence,
			&c.Sentences,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}

	return cases, rows.Err()
}
