package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PPTXParser extracts text from PowerPoint slides in slide order, each
// slide under a "Slide N" heading.
type PPTXParser struct{}

func (p *PPTXParser) SupportedFormats() []string { return []string{"pptx"} }

func (p *PPTXParser) Parse(_ context.Context, path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening PPTX: %w", err)
	}
	defer r.Close()

	// Slides live at ppt/slides/slide<N>.xml; the zip does not
	// guarantee any ordering.
	slides := make(map[int]string)
	for _, f := range r.File {
		num := slideNumber(f.Name)
		if num <= 0 {
			continue
		}
		data, err := readZipEntry(&r.Reader, f.Name)
		if err != nil {
			continue
		}
		if text := slideText(data); text != "" {
			slides[num] = text
		}
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("no text found in PPTX")
	}

	nums := make([]int, 0, len(slides))
	for n := range slides {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var b strings.Builder
	for _, n := range nums {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Slide %d\n%s", n, slides[n])
	}
	return b.String(), nil
}

// slideNumber extracts N from "ppt/slides/slide<N>.xml", or 0 for any
// other archive entry.
func slideNumber(name string) int {
	rest, ok := strings.CutPrefix(name, "ppt/slides/slide")
	if !ok {
		return 0
	}
	rest, ok = strings.CutSuffix(rest, ".xml")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

// Simplified slide XML: text runs live under cSld/spTree/sp/txBody.
type pptxSlide struct {
	CSld struct {
		SpTree struct {
			Shapes []struct {
				TxBody *struct {
					Paras []struct {
						Runs []struct {
							Text string `xml:"t"`
						} `xml:"r"`
					} `xml:"p"`
				} `xml:"txBody"`
			} `xml:"sp"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

func slideText(data []byte) string {
	var slide pptxSlide
	if err := xml.Unmarshal(data, &slide); err != nil {
		return ""
	}

	var lines []string
	for _, sp := range slide.CSld.SpTree.Shapes {
		if sp.TxBody == nil {
			continue
		}
		for _, para := range sp.TxBody.Paras {
			var b strings.Builder
			for _, run := range para.Runs {
				b.WriteString(run.Text)
			}
			if t := strings.TrimSpace(b.String()); t != "" {
				lines = append(lines, t)
			}
		}
	}
	return strings.Join(lines, "\n")
}
