package cninfo

import (
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var disableConfigOnce sync.Once

// PDFVerifier checks that a downloaded file parses as a PDF with at least one page
type PDFVerifier struct{}

// NewPDFVerifier creates a verifier. pdfcpu's user config directory is disabled.
func NewPDFVerifier() *PDFVerifier {
	disableConfigOnce.Do(api.DisableConfigDir)
	return &PDFVerifier{}
}

// Verify reads the PDF structure at path
func (v *PDFVerifier) Verify(path string) error {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return fmt.Errorf("corrupt pdf: %w", err)
	}
	if ctx.PageCount < 1 {
		return fmt.Errorf("corrupt pdf: no pages")
	}
	return nil
}
