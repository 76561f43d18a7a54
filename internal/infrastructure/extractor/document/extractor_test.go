package document

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

func TestExtractPDFJoinsLinesAndPages(t *testing.T) {
	data := buildPDF(t, [][]string{
		{"Pagare No. 1234", "Deudor Juan Perez"},
		{"Monto 5.000.000"},
	})

	text, err := NewExtractor().Extract(context.Background(), "case/pagare.PDF", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := "Pagare No. 1234 Deudor Juan Perez\nMonto 5.000.000"
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
}

func TestExtractPDFDecodesPercentEscapes(t *testing.T) {
	data := buildPDF(t, [][]string{{"Total%20adeudado", "50% del capital"}})

	text, err := NewExtractor().Extract(context.Background(), "escaped.pdf", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Total adeudado 50% del capital" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractPDFWithoutPagesIsEmpty(t *testing.T) {
	data := buildPDF(t, nil)

	text, err := NewExtractor().Extract(context.Background(), "blank.pdf", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), "broken.pdf", []byte("definitely not a pdf"))
	if !domain.IsKind(err, domain.ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestExtractDOCXParagraphs(t *testing.T) {
	data := buildDOCX(t, map[string]string{
		"[Content_Types].xml": `<Types/>`,
		"word/document.xml": documentXML(
			`<w:p><w:r><w:t>Sentencia</w:t></w:r><w:r><w:t xml:space="preserve"> ejecutoriada</w:t></w:r></w:p>` +
				`<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:rPr><w:b/></w:rPr><w:t>Acreedor</w:t></w:r><w:r><w:tab/><w:t>Banco</w:t></w:r></w:p>`,
		),
	})

	text, err := NewExtractor().Extract(context.Background(), "fallo.docx", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Sentencia ejecutoriada\nAcreedor\tBanco" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractDOCXTextBoxKeepsEnclosingParagraph(t *testing.T) {
	data := buildDOCX(t, map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"` +
			` xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006"` +
			` xmlns:v="urn:schemas-microsoft-com:vml"><w:body>` +
			`<w:p><w:r><w:t>Deudor: Juan Perez</w:t></w:r>` +
			`<w:r><mc:AlternateContent>` +
			`<mc:Choice Requires="wps"><w:drawing><w:txbxContent><w:p><w:r><w:t>Sello</w:t></w:r></w:p></w:txbxContent></w:drawing></mc:Choice>` +
			`<mc:Fallback><w:pict><v:textbox><w:txbxContent><w:p><w:r><w:t>Sello</w:t></w:r></w:p></w:txbxContent></v:textbox></w:pict></mc:Fallback>` +
			`</mc:AlternateContent></w:r>` +
			`<w:r><w:t xml:space="preserve"> Valor: 1500000</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>Fin</w:t></w:r></w:p>` +
			`</w:body></w:document>`,
	})

	text, err := NewExtractor().Extract(context.Background(), "titulo.docx", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Sello\nDeudor: Juan Perez Valor: 1500000\nFin" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractDOCXEmptyBody(t *testing.T) {
	data := buildDOCX(t, map[string]string{"word/document.xml": documentXML("")})

	text, err := NewExtractor().Extract(context.Background(), "empty.docx", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
}

func TestExtractDOCXMissingBody(t *testing.T) {
	data := buildDOCX(t, map[string]string{"word/styles.xml": "<styles/>"})

	_, err := NewExtractor().Extract(context.Background(), "nobody.docx", data)
	if !domain.IsKind(err, domain.ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestExtractDOCXNotAZip(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), "fake.docx", []byte("PK but not really"))
	if !domain.IsKind(err, domain.ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	for _, name := range []string{"notes.txt", "scan.png", "noextension"} {
		_, err := NewExtractor().Extract(context.Background(), name, []byte("x"))
		if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
			t.Fatalf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: error should name the file: %v", name, err)
		}
	}
}

func TestExtractHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewExtractor().Extract(ctx, "a.pdf", nil); err == nil {
		t.Fatalf("expected context error")
	}
}
