// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package segment

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/claimgraph/internal/container"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// ImagePdftotext is the container image providing poppler's pdftotext.
const ImagePdftotext = "minidocks/poppler:latest"

// PDFReader reads pages in process with github.com/ledongthuc/pdf.
type PDFReader struct{}

// Pages returns the plain text of every page. The reader panics on some
// malformed inputs; a panic is reported as ErrCorruptDocument.
func (PDFReader) Pages(ctx context.Context, data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: pdf reader: %v", ErrCorruptDocument, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			return nil, fmt.Errorf("%w: page %d is missing", ErrCorruptDocument, i)
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrCorruptDocument, i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// Pdftotext pipes the document through pdftotext in a container. Pages
// are separated by form feeds in its output.
type Pdftotext struct {
	runtime container.Runtime
	image   string
}

// NewPdftotext verifies that the pdftotext image exists locally.
func NewPdftotext(ctx context.Context, rt container.Runtime) (*Pdftotext, error) {
	if err := rt.ImageExists(ctx, ImagePdftotext); err != nil {
		return nil, fmt.Errorf("image %s not available in %s: %w", ImagePdftotext, rt.Name(), err)
	}
	return &Pdftotext{runtime: rt, image: ImagePdftotext}, nil
}

// Pages runs pdftotext and splits its output into pages.
func (p *Pdftotext) Pages(ctx context.Context, data []byte) ([]string, error) {
	var out bytes.Buffer
	cmd := []string{"pdftotext", "-enc", "UTF-8", "-q", "-", "-"}
	if err := p.runtime.Run(ctx, p.image, cmd, bytes.NewReader(data), &out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return splitFormFeeds(out.String()), nil
}

// splitFormFeeds splits pdftotext output on the form feed that ends every
// page. Whatever follows the last form feed is not a page.
func splitFormFeeds(out string) []string {
	if out == "" {
		return nil
	}
	pages := strings.Split(out, "\f")
	if strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// NewSource returns the page source selected by cfg. The pdftotext backend
// needs a docker or podman runtime with the image pulled.
func NewSource(ctx context.Context, cfg types.SegmenterConfig) (PageSource, error) {
	switch cfg.Backend {
	case types.BackendPDFReader, "":
		return PDFReader{}, nil
	case types.BackendPdftotext:
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, err
		}
		return NewPdftotext(ctx, rt)
	default:
		return nil, fmt.Errorf("unknown segmenter backend %q", cfg.Backend)
	}
}
