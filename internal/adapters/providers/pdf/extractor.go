package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/zatekoja/medisync/internal/domain/providers"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// ReaderExtractor reads the PDF text layer in process.
type ReaderExtractor struct{}

var _ providers.PDFTextExtractor = ReaderExtractor{}

// ExtractText returns the concatenated plain text of every page.
func (ReaderExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return Clean(string(b)), nil
}

// PdfToTextExtractor shells out to poppler's pdftotext.
type PdfToTextExtractor struct {
	Binary  string
	Timeout time.Duration
}

var _ providers.PDFTextExtractor = PdfToTextExtractor{}

// ExtractText writes data to a temp file and runs pdftotext in layout mode.
func (e PdfToTextExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	binary := e.Binary
	if binary == "" {
		binary = "pdftotext"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return "", fmt.Errorf("pdftotext not available: %w", err)
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	dir, err := os.MkdirTemp("", "brochure-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "in.pdf")
	outPath := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp pdf: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(callCtx, binary, "-layout", "-enc", "UTF-8", "-q", pdfPath, outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return "", fmt.Errorf("pdftotext: %w; stderr=%s", err, s)
		}
		return "", fmt.Errorf("pdftotext: %w", err)
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("read pdftotext output: %w", err)
	}
	return Clean(string(b)), nil
}

// Clean normalizes line endings, trims each line and collapses runs of blank lines.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
