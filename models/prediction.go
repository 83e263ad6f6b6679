package models

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is the raw classification record written alongside a case.
// It keeps the model output tied to the source text so a case can be
// re-rendered without calling the inference service again.
type Prediction struct {
	ID         uuid.UUID    `json:"id"`
	UserID     uuid.UUID    `json:"user_id"`
	CaseID     uuid.UUID    `json:"case_id"`
	SourceText string       `json:"source_text"`
	Sentences  SentenceList `json:"sentences"`
	CreatedAt  time.Time    `json:"created_at"`
}
