package service

import (
	"context"
	"fmt"
	"strings"

	"legalseg-backend/models"

	"github.com/google/generative-ai-go/genai"
)

const summaryModel = "gemini-2.0-flash"

// Summarizer produces the short case summary attached to an analysis
// result
type Summarizer interface {
	Summarize(ctx context.Context, sentences models.SentenceList) (string, error)
}

// GeminiSummarizer generates case summaries with Gemini
type GeminiSummarizer struct {
	client *genai.Client
}

// NewGeminiSummarizer creates a new Gemini-backed summarizer
func NewGeminiSummarizer(client *genai.Client) *GeminiSummarizer {
	return &GeminiSummarizer{client: client}
}

// Summarize asks the model for a two-sentence summary of the
// classified document
func (s *GeminiSummarizer) Summarize(ctx context.Context, sentences models.SentenceList) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("gemini client not configured")
	}

	var sb strings.Builder
	sb.WriteString("Summarize this segmented legal judgment in at most two sentences. ")
	sb.WriteString("Focus on the decision and the key facts.\n\n")
	for _, sentence := range sentences {
		fmt.Fprintf(&sb, "[%s] %s\n", sentence.RoleID, sentence.Text)
	}

	model := s.client.GenerativeModel(summaryModel)
	resp, err := model.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty summary response")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}

	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return "", fmt.Errorf("empty summary response")
	}
	return summary, nil
}

// HeuristicSummary builds a deterministic summary from the role
// distribution. Used when no Gemini key is configured or the model
// call fails; a summary failure must never fail an analysis.
func HeuristicSummary(sentences models.SentenceList) string {
	if len(sentences) == 0 {
		return "No classifiable sentences were found in the document."
	}

	counts := map[models.RoleTag]int{}
	var decision string
	for _, sentence := range sentences {
		counts[sentence.RoleID]++
		if decision == "" && sentence.RoleID == models.RoleDecision {
			decision = sentence.Text
		}
	}

	parts := []string{}
	for _, role := range []models.RoleTag{
		models.RoleFacts,
		models.RoleIssues,
		models.RoleArgumentPetitioner,
		models.RoleArgumentRespondent,
		models.RoleReasoning,
		models.RoleDecision,
	} {
		if counts[role] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[role], role))
		}
	}

	summary := fmt.Sprintf("Segmented %d sentences (%s).", len(sentences), strings.Join(parts, ", "))
	if decision != "" {
		summary += " Decision: " + decision
	}
	return summary
}
