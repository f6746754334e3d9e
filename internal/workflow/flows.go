package workflow

import (
	"context"

	"github.com/liliang-cn/leadgen/internal/domain"
	"github.com/liliang-cn/leadgen/internal/validate"
)

// Analyzer is the backend as seen by the two flows
type Analyzer interface {
	AnalyzeURL(ctx context.Context, req domain.URLRequest, sessionID string) (*domain.AnalysisResult, error)
	AnalyzeDocument(ctx context.Context, req domain.DocumentRequest, sessionID string) (*domain.AnalysisResult, error)
}

// URLController drives the URL flow
type URLController = Controller[string, domain.URLRequest]

// DocumentController drives the document flow
type DocumentController = Controller[*domain.DocumentFile, domain.DocumentRequest]

// NewURLController creates the controller of the URL flow (JSON POST)
func NewURLController(analyzer Analyzer, opts ...Option) *URLController {
	return NewController[string, domain.URLRequest](
		domain.FlowURL,
		validate.URL,
		analyzer.AnalyzeURL,
		opts...,
	)
}

// NewDocumentController creates the controller of the document flow
// (multipart POST). Drag and drop and explicit selection both submit
// through it, so both share validate.Document.
func NewDocumentController(analyzer Analyzer, opts ...Option) *DocumentController {
	return NewController[*domain.DocumentFile, domain.DocumentRequest](
		domain.FlowDocument,
		validate.Document,
		analyzer.AnalyzeDocument,
		opts...,
	)
}
