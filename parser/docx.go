package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXParser extracts text from Word documents: paragraph text in order,
// followed by tables rendered as pipe-delimited rows.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(_ context.Context, path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	data, err := readZipEntry(&r.Reader, "word/document.xml")
	if err != nil {
		return "", err
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parsing DOCX XML: %w", err)
	}

	var b strings.Builder
	for _, para := range doc.Body.Paras {
		if t := para.text(); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	}
	for _, tbl := range doc.Body.Tables {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		for _, row := range tbl.Rows {
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				var parts []string
				for _, p := range cell.Paras {
					if t := p.text(); t != "" {
						parts = append(parts, t)
					}
				}
				cells[i] = strings.Join(parts, " ")
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("no text found in DOCX")
	}
	return out, nil
}

// readZipEntry returns the contents of one named file inside an archive.
func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// Simplified OOXML structures. Element names match by local name, so the
// w: namespace prefix is irrelevant.
type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    struct {
		Paras  []docxPara  `xml:"p"`
		Tables []docxTable `xml:"tbl"`
	} `xml:"body"`
}

type docxPara struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func (p docxPara) text() string {
	var b strings.Builder
	for _, run := range p.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

type docxTable struct {
	Rows []struct {
		Cells []struct {
			Paras []docxPara `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}
