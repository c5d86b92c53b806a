// Package ingest parses uploaded knowledge files and splits them into
// indexable chunks.
package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
)

// Field is one key/value pair of a structured record, in source order.
type Field struct {
	Key   string
	Value string
}

// Record is one structured entry (a CSV row or a JSON item).
type Record struct {
	Fields []Field
}

// ParsedSource is the result of parsing one uploaded file.
// Structured sources carry Records; unstructured ones carry Text.
type ParsedSource struct {
	Filename   string
	Format     string
	Structured bool
	Records    []Record
	Text       string
	// EntryCount counts records for structured sources and paragraphs
	// (or non-empty lines for txt) for unstructured ones.
	EntryCount int
	CharCount  int
}

// Empty reports whether parsing produced no usable content.
func (s *ParsedSource) Empty() bool {
	if s.Structured {
		return len(s.Records) == 0
	}
	return strings.TrimSpace(s.Text) == ""
}

// Parser dispatches on file extension. Unknown extensions are an error;
// the caller records them as parse failures for the sufficiency check.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses one file by extension: .csv, .json, .pdf, .docx, .txt.
func (p *Parser) Parse(filename string, data []byte) (*ParsedSource, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return p.parseCSV(filename, data)
	case ".json":
		return p.parseJSON(filename, data)
	case ".pdf":
		return p.parsePDF(filename, data)
	case ".docx":
		return p.parseDOCX(filename, data)
	case ".txt":
		return p.parseTXT(filename, data)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

func (p *Parser) parseCSV(filename string, data []byte) (*ParsedSource, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv %s: reading header: %w", filename, err)
	}

	var records []Record
	chars := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv %s: row %d: %w", filename, len(records)+2, err)
		}
		rec := Record{}
		for i, val := range row {
			val = strings.TrimSpace(val)
			if val == "" || strings.EqualFold(val, "null") {
				continue
			}
			key := fmt.Sprintf("column_%d", i+1)
			if i < len(header) {
				key = strings.TrimSpace(header[i])
			}
			rec.Fields = append(rec.Fields, Field{Key: key, Value: val})
			chars += len(key) + len(val)
		}
		if len(rec.Fields) > 0 {
			records = append(records, rec)
		}
	}

	return &ParsedSource{
		Filename:   filename,
		Format:     "csv",
		Structured: true,
		Records:    records,
		EntryCount: len(records),
		CharCount:  chars,
	}, nil
}

// parseJSON accepts a top-level array, an object wrapping a list under
// data/items/records/entries, or a single object (wrapped as one record).
func (p *Parser) parseJSON(filename string, data []byte) (*ParsedSource, error) {
	items, err := decodeJSONItems(data)
	if err != nil {
		return nil, fmt.Errorf("json %s: %w", filename, err)
	}

	records := make([]Record, 0, len(items))
	chars := 0
	for _, item := range items {
		rec := recordFromValue(item)
		if len(rec.Fields) == 0 {
			continue
		}
		for _, f := range rec.Fields {
			chars += len(f.Key) + len(f.Value)
		}
		records = append(records, rec)
	}

	return &ParsedSource{
		Filename:   filename,
		Format:     "json",
		Structured: true,
		Records:    records,
		EntryCount: len(records),
		CharCount:  chars,
	}, nil
}

func (p *Parser) parsePDF(filename string, data []byte) (*ParsedSource, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf %s: %w", filename, err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("pdf %s: page %d: %w", filename, i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	text := strings.TrimSpace(sb.String())
	return &ParsedSource{
		Filename:   filename,
		Format:     "pdf",
		Text:       text,
		EntryCount: len(SplitParagraphs(text)),
		CharCount:  len(text),
	}, nil
}

// parseDOCX reads word/document.xml from the zip container and emits
// one paragraph per w:p element. Table cell text comes along for free
// because cells contain paragraphs.
func (p *Parser) parseDOCX(filename string, data []byte) (*ParsedSource, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx %s: %w", filename, err)
	}

	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("docx %s: %w", filename, err)
			}
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("docx %s: missing word/document.xml", filename)
	}
	defer func() { _ = doc.Close() }()

	var paragraphs []string
	var current strings.Builder
	decoder := xml.NewDecoder(doc)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("docx %s: %w", filename, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	text := strings.Join(paragraphs, "\n\n")
	return &ParsedSource{
		Filename:   filename,
		Format:     "docx",
		Text:       text,
		EntryCount: len(paragraphs),
		CharCount:  len(text),
	}, nil
}

func (p *Parser) parseTXT(filename string, data []byte) (*ParsedSource, error) {
	text := strings.TrimSpace(string(data))
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return &ParsedSource{
		Filename:   filename,
		Format:     "txt",
		Text:       text,
		EntryCount: count,
		CharCount:  len(text),
	}, nil
}

// SplitParagraphs splits text on blank lines, trimming each paragraph
// and dropping empty ones.
func SplitParagraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		if p := strings.TrimSpace(para); p != "" {
			out = append(out, p)
		}
	}
	return out
}
