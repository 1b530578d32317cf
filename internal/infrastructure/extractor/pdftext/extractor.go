// Package pdftext is the bundled extraction engine: PDF text extraction plus
// UTF-8 plaintext passthrough, with no external service dependency.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("read source document: %w", err)
	}

	if isPDF(raw) {
		return e.extractPDF(raw)
	}
	return extractPlaintext(raw, doc.OriginalFilename)
}

func (e *Extractor) extractPDF(raw []byte) (result domain.ExtractedText, err error) {
	// The pdf parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			result = domain.ExtractedText{}
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("parse pdf: %w", err)
	}

	body, err := r.GetPlainText()
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return domain.ExtractedText{}, fmt.Errorf("collect pdf text: %w", err)
	}

	return domain.ExtractedText{
		Text:      strings.TrimSpace(buf.String()),
		PageCount: r.NumPage(),
		Engine:    "pdftext",
	}, nil
}

func extractPlaintext(raw []byte, filename string) (domain.ExtractedText, error) {
	if !utf8.Valid(raw) {
		return domain.ExtractedText{}, fmt.Errorf("unsupported binary format: %s", filename)
	}
	return domain.ExtractedText{
		Text:      strings.TrimSpace(string(raw)),
		PageCount: 1,
		Engine:    "pdftext",
	}, nil
}

func isPDF(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}
