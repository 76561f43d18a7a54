package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

const docxBodyPart = "word/document.xml"

// extractDOCX reads word/document.xml from the archive and flattens the body
// text, one line per paragraph. Styling is discarded.
func extractDOCX(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrCorruptDocument, "open docx archive", err)
	}

	var body *zip.File
	for _, f := range archive.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return "", domain.WrapError(domain.ErrCorruptDocument, "open docx archive", fmt.Errorf("%s not found", docxBodyPart))
	}

	rc, err := body.Open()
	if err != nil {
		return "", domain.WrapError(domain.ErrCorruptDocument, "open docx body", err)
	}
	defer rc.Close()

	text, err := flattenDocumentXML(rc)
	if err != nil {
		return "", domain.WrapError(domain.ErrCorruptDocument, "parse docx body", err)
	}
	return text, nil
}

// flattenDocumentXML emits one line per paragraph. Paragraphs nested inside
// another (text boxes via w:txbxContent) become their own lines and leave the
// enclosing paragraph intact. mc:Fallback subtrees duplicate mc:Choice and are
// skipped.
func flattenDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var open []*strings.Builder
	inText := false
	skipDepth := 0

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		if skipDepth > 0 {
			switch tok.(type) {
			case xml.StartElement:
				skipDepth++
			case xml.EndElement:
				skipDepth--
			}
			continue
		}

		var current *strings.Builder
		if len(open) > 0 {
			current = open[len(open)-1]
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Fallback":
				skipDepth = 1
			case "p":
				open = append(open, &strings.Builder{})
				inText = false
			case "t":
				inText = current != nil
			case "tab":
				if current != nil {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if current != nil {
					current.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText && current != nil {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if current != nil {
					paragraphs = append(paragraphs, current.String())
					open = open[:len(open)-1]
				}
			}
		}
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n")), nil
}
