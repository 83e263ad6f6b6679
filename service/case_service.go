package service

import (
	"context"
	"errors"
	"log"
	"time"

	"legalseg-backend/models"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrMissingInput = errors.New("either a file or document text is required")
)

const persistTimeout = 30 * time.Second

// UserStore resolves acting users
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// CaseStore appends analyzed cases to a user's case list
type CaseStore interface {
	Append(ctx context.Context, c *models.Case) error
}

// PredictionStore writes raw prediction records
type PredictionStore interface {
	Create(ctx context.Context, p *models.Prediction) error
}

// TextExtractor recovers plain text from a staged upload
type TextExtractor interface {
	Extract(ctx context.Context, storagePath, declaredExtension string) (string, error)
}

// InferenceRunner is the remote classification client
type InferenceRunner interface {
	Submit(ctx context.Context, text string) (*JobHandle, error)
	AwaitResult(ctx context.Context, handle *JobHandle) (RawPayload, error)
}

// deadLetter records one failed background persistence attempt
type deadLetter struct {
	op     string
	caseID uuid.UUID
	err    error
}

// CaseService orchestrates one document analysis: resolve the user,
// obtain text, run inference, normalize, build the result, and persist
// out-of-band after the caller already has the response.
type CaseService struct {
	userRepo       UserStore
	caseRepo       CaseStore
	predictionRepo PredictionStore
	extractor      TextExtractor
	inference      InferenceRunner
	normalizer     *Normalizer
	summarizer     Summarizer

	deadLetters chan deadLetter
	persisted   chan uuid.UUID
}

// CaseServiceOption is a functional option for CaseService
type CaseServiceOption func(*CaseService)

// WithUserStore sets the user store
func WithUserStore(store UserStore) CaseServiceOption {
	return func(s *CaseService) {
		s.userRepo = store
	}
}

// WithCaseStore sets the case store
func WithCaseStore(store CaseStore) CaseServiceOption {
	return func(s *CaseService) {
		s.caseRepo = store
	}
}

// WithPredictionStore sets the prediction store
func WithPredictionStore(store PredictionStore) CaseServiceOption {
	return func(s *CaseService) {
		s.predictionRepo = store
	}
}

// WithExtractor sets the text extractor
func WithExtractor(extractor TextExtractor) CaseServiceOption {
	return func(s *CaseService) {
		s.extractor = extractor
	}
}

// WithInference sets the inference client
func WithInference(inference InferenceRunner) CaseServiceOption {
	return func(s *CaseService) {
		s.inference = inference
	}
}

// WithSummarizer sets the summarizer
func WithSummarizer(summarizer Summarizer) CaseServiceOption {
	return func(s *CaseService) {
		s.summarizer = summarizer
	}
}

// NewCaseService creates a new case service and starts its dead-letter
// consumer
func NewCaseService(opts ...CaseServiceOption) *CaseService {
	s := &CaseService{
		normalizer:  NewNormalizer(),
		deadLetters: make(chan deadLetter, 64),
		persisted:   make(chan uuid.UUID, 64),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.consumeDeadLetters()

	return s
}

// AnalyzeRequest describes one upload to analyze. Exactly one of
// StoragePath (a staged file) or Text is expected.
type AnalyzeRequest struct {
	UserID      uuid.UUID
	Title       string
	Filename    string
	Extension   string
	StoragePath string
	Text        string
}

// AnalyzeResult is the response payload for one analyzed upload
type AnalyzeResult struct {
	Case    *models.Case
	Results models.AnalysisResult

	persist func()
}

// Persist runs the deferred background write. The caller invokes it
// only after the response is on the wire, so a storage write can
// never precede the response it belongs to.
func (r *AnalyzeResult) Persist() {
	if r.persist != nil {
		r.persist()
	}
}

// Analyze runs the full pipeline and returns before persistence. Any
// failure inside this method aborts the request; nothing partial is
// ever returned.
func (s *CaseService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if s.userRepo == nil {
		return nil, errors.New("user store not set")
	}
	if s.inference == nil {
		return nil, errors.New("inference client not set")
	}

	if _, err := s.userRepo.GetByID(ctx, req.UserID); err != nil {
		return nil, ErrUserNotFound
	}

	text := req.Text
	if req.StoragePath != "" {
		if s.extractor == nil {
			return nil, errors.New("extractor not set")
		}
		extracted, err := s.extractor.Extract(ctx, req.StoragePath, req.Extension)
		if err != nil {
			return nil, err
		}
		text = extracted
	}
	if text == "" {
		return nil, ErrMissingInput
	}

	handle, err := s.inference.Submit(ctx, text)
	if err != nil {
		return nil, err
	}

	payload, err := s.inference.AwaitResult(ctx, handle)
	if err != nil {
		return nil, err
	}

	sentences := s.normalizer.Normalize(payload)

	record := &models.Case{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Title:         req.Title,
		Status:        models.CaseStatusAnalyzed,
		SentenceCount: len(sentences),
		Summary:       s.buildSummary(ctx, sentences),
		AvgConfidence: averageConfidence(sentences),
		Sentences:     sentences,
	}
	if req.Filename != "" {
		record.StoredFilename = &req.Filename
	}

	result := &AnalyzeResult{
		Case:    record,
		Results: record.Results(),
	}

	// Nothing is written here. The persist closure is handed back so
	// the HTTP layer can dispatch it after the response is sent; a
	// copy detaches the write from anything the handler does with the
	// returned record.
	persistCopy := *record
	result.persist = func() { s.persist(&persistCopy, text) }

	return result, nil
}

// buildSummary prefers the configured summarizer and falls back to the
// deterministic role-distribution summary
func (s *CaseService) buildSummary(ctx context.Context, sentences models.SentenceList) string {
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, sentences)
		if err == nil {
			return summary
		}
		log.Printf("Warning: summary generation failed, using fallback: %v", err)
	}
	return HeuristicSummary(sentences)
}

// persist writes the case and its prediction record on a fresh
// context. One natural attempt, no retry: a failure lands in the
// dead-letter channel and never reaches the caller.
func (s *CaseService) persist(record *models.Case, sourceText string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if s.caseRepo != nil {
		if err := s.caseRepo.Append(ctx, record); err != nil {
			s.reportDeadLetter("append case", record.ID, err)
			return
		}
	}

	if s.predictionRepo != nil {
		prediction := &models.Prediction{
			UserID:     record.UserID,
			CaseID:     record.ID,
			SourceText: sourceText,
			Sentences:  record.Sentences,
		}
		if err := s.predictionRepo.Create(ctx, prediction); err != nil {
			s.reportDeadLetter("create prediction", record.ID, err)
			return
		}
	}

	select {
	case s.persisted <- record.ID:
	default:
	}
}

// Persisted exposes completion signals from the background writer.
// Nothing in the request path reads it; tests and operational hooks do.
func (s *CaseService) Persisted() <-chan uuid.UUID {
	return s.persisted
}

func (s *CaseService) reportDeadLetter(op string, caseID uuid.UUID, err error) {
	select {
	case s.deadLetters <- deadLetter{op: op, caseID: caseID, err: err}:
	default:
		log.Printf("[dead-letter] %s for case %s: %v (channel full)", op, caseID, err)
	}
}

func (s *CaseService) consumeDeadLetters() {
	for dl := range s.deadLetters {
		log.Printf("[dead-letter] %s for case %s: %v", dl.op, dl.caseID, dl.err)
	}
}

func averageConfidence(sentences models.SentenceList) float64 {
	if len(sentences) == 0 {
		return 0
	}
	total := 0.0
	for _, sentence := range sentences {
		total += sentence.Confidence
	}
	return total / float64(len(sentences))
}
