package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RoleTag is a rhetorical role assigned to one sentence of a legal document.
type RoleTag string

const (
	RoleFacts              RoleTag = "facts"
	RoleIssues             RoleTag = "issues"
	RoleArgumentPetitioner RoleTag = "argument_petitioner"
	RoleArgumentRespondent RoleTag = "argument_respondent"
	RoleReasoning          RoleTag = "reasoning"
	RoleDecision           RoleTag = "decision"
	RoleNone               RoleTag = "none"
)

// CaseStatus represents the lifecycle status of an analyzed case
type CaseStatus string

const (
	CaseStatusAnalyzed CaseStatus = "analyzed"
	CaseStatusFailed   CaseStatus = "failed"
)

// LabeledSentence is one classified sentence of a document.
// Confidence is always on the 0.0-1.0 scale; percentage inputs are
// converted before a sentence is constructed.
type LabeledSentence struct {
	Text          string  `json:"text"`
	RoleID        RoleTag `json:"roleId"`
	Confidence    float64 `json:"confidence"`
	OriginalIndex int     `json:"originalIndex"`
}

// SentenceList represents an ordered list of labeled sentences
type SentenceList []LabeledSentence

// Value implements driver.Valuer for JSONB
func (s SentenceList) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *SentenceList) Scan(value interface{}) error {
	if value == nil {
		*s = make(SentenceList, 0)
		return nil
	}

	// Handle different types that pgx might return for JSONB
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = make(SentenceList, 0)
		return nil
	}

	if len(bytes) == 0 {
		*s = make(SentenceList, 0)
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// AnalysisResult is the outcome of one successful document analysis.
type AnalysisResult struct {
	Summary       string       `json:"summary"`
	Sentences     SentenceList `json:"sentences"`
	AvgConfidence float64      `json:"avgConfidence"`
}

// Case represents an analyzed document owned by a user
type Case struct {
	ID             uuid.UUID    `json:"id"`
	UserID         uuid.UUID    `json:"user_id"`
	Title          string       `json:"title"`
	StoredFilename *string      `json:"stored_filename,omitempty"`
	Status         CaseStatus   `json:"status"`
	SentenceCount  int          `json:"sentence_count"`
	Summary        string       `json:"summary"`
	AvgConfidence  float64      `json:"avg_confidence"`
	Sentences      SentenceList `json:"sentences"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Results builds the analysis view of a case
func (c *Case) Results() AnalysisResult {
	return AnalysisResult{
		Summary:       c.Summary,
		Sentences:     c.Sentences,
		AvgConfidence: c.AvgConfidence,
	}
}
