package document

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

// extractPDF joins the text runs of every page in page order, one line per page.
// Runs sharing a baseline form one segment; segments are joined with a space.
func extractPDF(data []byte) (text string, err error) {
	// The decoder panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrCorruptDocument, "parse pdf", fmt.Errorf("decoder panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrCorruptDocument, "parse pdf", err)
	}

	pageCount := reader.NumPage()
	pages := make([]string, 0, pageCount)
	for pageNr := 1; pageNr <= pageCount; pageNr++ {
		page := reader.Page(pageNr)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText(page.Content().Text))
	}

	return strings.TrimSpace(strings.Join(pages, "\n")), nil
}

func pageText(runs []pdf.Text) string {
	var segments []string
	var current strings.Builder
	lastY := 0.0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if segment := strings.TrimSpace(decodeEscapes(current.String())); segment != "" {
			segments = append(segments, segment)
		}
		current.Reset()
	}

	for i, run := range runs {
		if i > 0 && run.Y != lastY {
			flush()
		}
		current.WriteString(run.S)
		lastY = run.Y
	}
	flush()

	return strings.Join(segments, " ")
}

// decodeEscapes undoes percent/URL-style escaping. Segments that are not valid
// escapes (a literal "50%") are kept as they are.
func decodeEscapes(segment string) string {
	if !strings.Contains(segment, "%") {
		return segment
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return decoded
}
