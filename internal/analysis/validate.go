package analysis

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
)

const (
	// MaxDocumentBytes caps an uploaded lease document.
	MaxDocumentBytes = 10 << 20
	// MaxImageBytes caps an uploaded image.
	MaxImageBytes = 5 << 20
)

var allowedImageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".heic": true, ".heif": true,
}

// ValidateTask rejects input that must never reach the API.
func ValidateTask(task model.AnalysisTask) error {
	switch task.Kind {
	case model.InputText:
		if strings.TrimSpace(task.Text) == "" {
			return apperror.ValidationFailed("text", "Please enter lease text to analyze")
		}
		return nil
	case model.InputFile:
		return ValidateDocument(task.FileName, task.ContentType, task.Data)
	default:
		return apperror.ValidationFailed("inputKind", fmt.Sprintf("unknown input kind %q", task.Kind))
	}
}

// ValidateDocument accepts non-empty PDF or plain-text files. PDFs must
// parse and have at least one page.
func ValidateDocument(fileName, contentType string, data []byte) error {
	if len(data) == 0 {
		return apperror.ValidationFailed("leaseFile", "Please select a file to upload")
	}
	if len(data) > MaxDocumentBytes {
		return apperror.ValidationFailed("leaseFile", fmt.Sprintf("%s is larger than %d MB", fileName, MaxDocumentBytes>>20))
	}

	switch baseContentType(contentType) {
	case "application/pdf":
		if err := checkPDF(data); err != nil {
			return apperror.ValidationFailed("leaseFile", fmt.Sprintf("%s is not a readable PDF", fileName))
		}
		return nil
	case "text/plain":
		return nil
	default:
		return apperror.ValidationFailed("leaseFile", "Please select a PDF or text file")
	}
}

// ValidateImage accepts common photo formats up to MaxImageBytes.
func ValidateImage(fileName string, data []byte) error {
	if fileName == "" || len(data) == 0 {
		return apperror.ValidationFailed("imageFile", "No file provided")
	}
	if !allowedImageExtensions[strings.ToLower(filepath.Ext(fileName))] {
		return apperror.ValidationFailed("imageFile", "Unsupported file extension")
	}
	if len(data) > MaxImageBytes {
		return apperror.ValidationFailed("imageFile", "File too large")
	}
	return nil
}

// checkPDF opens the document in memory. The parser panics on some
// malformed inputs, so a panic counts as unreadable.
func checkPDF(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	if reader.NumPage() == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}

// baseContentType strips parameters such as charset.
func baseContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}
