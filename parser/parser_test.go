package parser

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTextParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("hello graph world"), 0644); err != nil {
		t.Fatal(err)
	}

	p := &TextParser{}
	got, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello graph world" {
		t.Errorf("content = %q", got)
	}
}

func TestTextParserMissingFile(t *testing.T) {
	p := &TextParser{}
	if _, err := p.Parse(context.Background(), "/nonexistent/file.txt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	for _, format := range []string{"txt", "md", "pdf", "docx", "pptx", "xlsx"} {
		if _, err := r.Get(format); err != nil {
			t.Errorf("Get(%q) = %v", format, err)
		}
	}

	if _, err := r.Get("exe"); err == nil {
		t.Error("expected error for unknown format")
	}
}

// writeArchive creates a zip file from entry name -> content.
func writeArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, content := range entries {
		e, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDOCXParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.docx")
	writeArchive(t, path, map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quarterly Report</w:t></w:r></w:p>
    <w:p><w:r><w:t>Revenue grew</w:t><w:t> 12 percent.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>region</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>total</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`,
	})

	p := &DOCXParser{}
	got, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Quarterly Report",
		"Revenue grew 12 percent.",
		"| region | total |",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestDOCXParserNoDocumentXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	writeArchive(t, path, map[string]string{"other.txt": "nothing"})

	p := &DOCXParser{}
	if _, err := p.Parse(context.Background(), path); err == nil {
		t.Error("expected error for archive without word/document.xml")
	}
}

func pptxSlideXML(text string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>` + text + `</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
}

func TestPPTXParserSlideOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	// slide10 catches lexicographic ordering bugs (1, 10, 2).
	writeArchive(t, path, map[string]string{
		"ppt/slides/slide2.xml":  pptxSlideXML("Timeline"),
		"ppt/slides/slide10.xml": pptxSlideXML("Questions"),
		"ppt/slides/slide1.xml":  pptxSlideXML("Launch plan"),
	})

	p := &PPTXParser{}
	got, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	first := strings.Index(got, "Launch plan")
	second := strings.Index(got, "Timeline")
	third := strings.Index(got, "Questions")
	if first < 0 || second < 0 || third < 0 {
		t.Fatalf("output missing slide text:\n%s", got)
	}
	if !(first < second && second < third) {
		t.Errorf("slides out of order:\n%s", got)
	}
	if !strings.Contains(got, "Slide 1\n") {
		t.Errorf("output missing slide heading:\n%s", got)
	}
}

func TestPPTXParserEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pptx")
	writeArchive(t, path, map[string]string{"ppt/presentation.xml": "<p/>"})

	p := &PPTXParser{}
	if _, err := p.Parse(context.Background(), path); err == nil {
		t.Error("expected error for deck without slide text")
	}
}

type stubParser struct{}

func (stubParser) Parse(context.Context, string) (string, error) { return "stub", nil }
func (stubParser) SupportedFormats() []string                    { return []string{"stub"} }

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubParser{})

	p, err := r.Get("stub")
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Parse(context.Background(), "")
	if err != nil || got != "stub" {
		t.Errorf("parse = %q, %v", got, err)
	}
}
