// Package textract turns fetched documents into plain text: PDFs through the
// pdftotext CLI and HTML pages into per-element text blocks.
package textract

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PDFExtractor extracts text from PDF bytes.
type PDFExtractor interface {
	PDFText(ctx context.Context, data []byte) (string, error)
}

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// PDFText writes data to a temp file and returns the pdftotext output.
// Without -layout so one table row stays on one line.
func (p *PdfToText) PDFText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", eris.New("textract: empty pdf")
	}

	f, err := os.CreateTemp("", "harvest-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "textract: create temp file")
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", eris.Wrap(err, "textract: write temp file")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "textract: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-enc", "UTF-8", f.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "textract: pdftotext failed: %s", stderr.String())
	}
	return stdout.String(), nil
}
