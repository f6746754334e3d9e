// Package validate turns raw user input into requests that are safe to send.
// Every input method for a flow must go through the functions here so the
// outcome cannot depend on how the input arrived.
package validate

import (
	"strings"

	"github.com/liliang-cn/leadgen/internal/domain"
)

// URL trims raw and rejects it when nothing is left. Syntax is left to the backend.
func URL(raw string) (domain.URLRequest, *domain.ErrorInfo) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.URLRequest{}, &domain.ErrorInfo{
			Kind:    domain.ErrorKindValidation,
			Message: domain.MsgEmptyURL,
		}
	}
	return domain.URLRequest{URL: trimmed}, nil
}

// Document accepts a file only when its declared media type is exactly application/pdf
func Document(file *domain.DocumentFile) (domain.DocumentRequest, *domain.ErrorInfo) {
	if file == nil || file.MediaType != domain.PDFMediaType {
		return domain.DocumentRequest{}, &domain.ErrorInfo{
			Kind:    domain.ErrorKindValidation,
			Message: domain.MsgNotPDF,
		}
	}
	return domain.DocumentRequest{
		Filename:  file.Filename,
		MediaType: file.MediaType,
		Content:   file.Content,
	}, nil
}
