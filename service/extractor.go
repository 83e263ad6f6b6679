package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"legalseg-backend/storage"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrExtractionFailed  = errors.New("failed to extract text from file")
	ErrEmptyContent      = errors.New("could not extract readable text")
)

// minExtractedLength is the quality gate for extracted text. Anything
// shorter is treated as an unreadable document, not a valid input.
const minExtractedLength = 10

// ExtractorService recovers plain text from uploaded legal documents
type ExtractorService struct {
	storage storage.Storage
}

// NewExtractorService creates a new extractor service
func NewExtractorService(store storage.Storage) *ExtractorService {
	return &ExtractorService{storage: store}
}

// Extract reads a staged upload and returns its trimmed plain text.
// The staged file is deleted after the attempt, success or failure;
// a deletion failure is logged and never propagated.
func (s *ExtractorService) Extract(ctx context.Context, storagePath, declaredExtension string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(declaredExtension, "."))

	switch ext {
	case "pdf", "doc", "docx", "txt":
	default:
		// Fail before touching storage at all.
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}

	data, err := s.readAndDiscard(ctx, storagePath)
	if err != nil {
		return "", err
	}

	var text string
	switch ext {
	case "pdf":
		text, err = extractPDF(data)
	case "doc", "docx":
		text, err = extractDocx(data)
	case "txt":
		text = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minExtractedLength {
		return "", ErrEmptyContent
	}

	return text, nil
}

// readAndDiscard downloads the staged file and removes it from storage
func (s *ExtractorService) readAndDiscard(ctx context.Context, storagePath string) ([]byte, error) {
	defer func() {
		if err := s.storage.Delete(ctx, storagePath); err != nil {
			log.Printf("Warning: failed to delete staged upload %s: %v", storagePath, err)
		}
	}()

	reader, err := s.storage.Download(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	return data, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func extractDocx(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var lines []string
	for _, item := range doc.Document.Body.Items {
		switch block := item.(type) {
		case *docx.Paragraph:
			if text := strings.TrimSpace(block.String()); text != "" {
				lines = append(lines, text)
			}
		case *docx.Table:
			if text := strings.TrimSpace(block.String()); text != "" {
				lines = append(lines, text)
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}
