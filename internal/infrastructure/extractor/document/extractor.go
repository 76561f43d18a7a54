package document

import (
	"context"
	"fmt"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

// Extractor turns uploaded PDF and DOCX bytes into plain text.
// It has no side effects and enforces no size limit.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	format := domain.DocumentFormat(fileName)
	switch format {
	case domain.FormatPDF:
		return extractPDF(data)
	case domain.FormatDOCX:
		return extractDOCX(data)
	default:
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("extension %q of %s", format, fileName))
	}
}
