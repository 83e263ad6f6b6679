package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"legalseg-backend/service"
	"legalseg-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CaseHandler handles HTTP requests for document analysis
type CaseHandler struct {
	caseService *service.CaseService
	storage     storage.Storage
	maxFileSize int64
}

// NewCaseHandler creates a new case handler
func NewCaseHandler(caseService *service.CaseService, store storage.Storage) *CaseHandler {
	return &CaseHandler{
		caseService: caseService,
		storage:     store,
		maxFileSize: 10 * 1024 * 1024, // 10MB
	}
}

// UploadCase handles POST /api/cases/upload.
// The request carries either a single file attachment or a text field,
// plus a user identifier from the form or the X-User-ID header. The
// response is sent before anything is persisted.
func (h *CaseHandler) UploadCase(c *gin.Context) {
	userID, err := h.resolveUserID(c)
	if err != nil {
		if errors.Is(err, errNoUserID) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "Authentication required: provide user_id or X-User-ID",
			})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "Invalid user identifier",
				"error":   err.Error(),
			})
		}
		return
	}

	req := service.AnalyzeRequest{UserID: userID}

	fileHeader, fileErr := c.FormFile("file")
	if fileErr == nil {
		if fileHeader.Size > h.maxFileSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize),
			})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Failed to read uploaded file",
				"error":   err.Error(),
			})
			return
		}
		defer file.Close()

		storagePath, err := h.storage.Upload(c.Request.Context(), uuid.New(), fileHeader.Filename, file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Failed to stage uploaded file",
				"error":   err.Error(),
			})
			return
		}

		req.Filename = fileHeader.Filename
		req.Extension = strings.TrimPrefix(filepath.Ext(fileHeader.Filename), ".")
		req.StoragePath = storagePath
		req.Title = fileHeader.Filename
	} else {
		text := h.resolveText(c)
		if strings.TrimSpace(text) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "Either a file or document text is required",
			})
			return
		}
		req.Text = text
		req.Title = titleFromText(text)
	}

	result, err := h.caseService.Analyze(c.Request.Context(), req)
	if err != nil {
		// A failure before extraction leaves the staged file behind;
		// extraction itself already deletes it, and Delete tolerates
		// an already-gone path.
		if req.StoragePath != "" {
			if delErr := h.storage.Delete(c.Request.Context(), req.StoragePath); delErr != nil {
				log.Printf("Warning: failed to delete staged upload %s: %v", req.StoragePath, delErr)
			}
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document": result.Case,
		"results":  result.Results,
	})

	// Persistence starts only once the response is written.
	go result.Persist()
}

var errNoUserID = errors.New("no user identifier supplied")

// resolveUserID reads the acting user from the form field or header
func (h *CaseHandler) resolveUserID(c *gin.Context) (uuid.UUID, error) {
	idStr := c.PostForm("user_id")
	if idStr == "" {
		idStr = c.GetHeader("X-User-ID")
	}
	if idStr == "" {
		return uuid.Nil, errNoUserID
	}
	return uuid.Parse(idStr)
}

// resolveText reads the text field, coercing non-string JSON values to
// their serialized form rather than rejecting them
func (h *CaseHandler) resolveText(c *gin.Context) string {
	if text := c.PostForm("text"); text != "" {
		return text
	}

	if !strings.Contains(c.ContentType(), "application/json") {
		return ""
	}

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		return ""
	}
	raw, ok := body["text"]
	if !ok || raw == nil {
		return ""
	}
	if text, ok := raw.(string); ok {
		return text
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(encoded)
}

// respondError maps pipeline failures onto the documented status codes
func (h *CaseHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnsupportedFormat),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrExtractionFailed),
		errors.Is(err, service.ErrMissingInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Could not process the uploaded document",
			"error":   err.Error(),
		})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"message": "User not found",
		})
	case errors.Is(err, service.ErrRemoteService), errors.Is(err, service.ErrNoJobID):
		// The raw remote error text is echoed deliberately: it is the
		// only diagnostic the status channel gives.
		c.JSON(http.StatusBadGateway, gin.H{
			"message": "Inference service error",
			"error":   err.Error(),
		})
	case errors.Is(err, service.ErrPollTimeout):
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Inference timed out before returning a result",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Internal server error",
			"error":   err.Error(),
		})
	}
}

func titleFromText(text string) string {
	title := strings.TrimSpace(text)
	if runes := []rune(title); len(runes) > 60 {
		title = string(runes[:60])
	}
	return title
}
