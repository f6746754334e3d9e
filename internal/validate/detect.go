package validate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/liliang-cn/leadgen/internal/domain"
)

const genericMediaType = "application/octet-stream"

// DeclaredType returns the media type an input method declares for content.
// Callers that carry no declaration (or only the generic binary type) get
// the sniffed type instead.
func DeclaredType(declared string, content []byte) string {
	if declared != "" && declared != genericMediaType {
		return declared
	}
	return mimetype.Detect(content).String()
}

// OpenFile reads a local file into a DocumentFile with a sniffed media type
func OpenFile(path string) (*domain.DocumentFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return &domain.DocumentFile{
		Filename:  filepath.Base(path),
		MediaType: DeclaredType("", content),
		Content:   content,
	}, nil
}
