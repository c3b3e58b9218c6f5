package pdf

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	in := "  PRUValue Med  \r\n\r\n\r\n\r\nAnnual Limit: RM 1,000,000\f Room & Board \n"
	assert.Equal(t, "PRUValue Med\n\nAnnual Limit: RM 1,000,000\nRoom & Board", Clean(in))
}

func TestReaderExtractor_RejectsGarbage(t *testing.T) {
	_, err := ReaderExtractor{}.ExtractText(context.Background(), []byte("<html>not a pdf</html>"))
	assert.Error(t, err)
}

func TestReaderExtractor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReaderExtractor{}.ExtractText(ctx, []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPdfToTextExtractor_MissingBinary(t *testing.T) {
	_, err := PdfToTextExtractor{Binary: "pdftotext-does-not-exist"}.ExtractText(context.Background(), []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestPdfToTextExtractor_GarbageInput(t *testing.T) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		t.Skip("pdftotext not installed")
	}
	_, err := PdfToTextExtractor{}.ExtractText(context.Background(), []byte("not a pdf"))
	assert.Error(t, err)
}
