// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package segment turns the bytes of a PDF into an ordered sequence of
// page-tagged paragraph segments. Page text is recovered by a pluggable
// PageSource; segmentation is all-or-nothing per document.
package segment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/claimgraph/pkg/types"
)

var (
	// ErrUnsupportedFormat means the bytes are not a PDF this system can
	// read: the header is missing or the file is encrypted.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptDocument means the file claims to be a PDF but its page
	// structure or text could not be recovered.
	ErrCorruptDocument = errors.New("corrupt document")
)

// headerWindow is how far into the file the %PDF- marker may appear.
// Some producers prepend a few bytes of junk before it.
const headerWindow = 1024

var (
	pdfMagic     = []byte("%PDF-")
	encryptToken = []byte("/Encrypt")
)

// PageSource recovers the text of every page of a PDF, in page order.
// An implementation must fail the whole call if any page fails.
type PageSource interface {
	Pages(ctx context.Context, data []byte) ([]string, error)
}

// Segmenter validates documents and splits their pages into segments.
type Segmenter struct {
	source   PageSource
	minChars int
}

// New returns a Segmenter reading pages from source. Paragraphs shorter
// than minChars runes are dropped.
func New(source PageSource, minChars int) *Segmenter {
	return &Segmenter{source: source, minChars: minChars}
}

// Validate checks the PDF header and rejects encrypted files.
func Validate(data []byte) error {
	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	if !bytes.Contains(head, pdfMagic) {
		return fmt.Errorf("%w: missing %%PDF- header", ErrUnsupportedFormat)
	}
	if bytes.Contains(data, encryptToken) {
		return fmt.Errorf("%w: document is encrypted", ErrUnsupportedFormat)
	}
	return nil
}

// Segment validates data, recovers its pages and returns the segment
// sequence of document docID. It fails with ErrUnsupportedFormat or
// ErrCorruptDocument; a document whose pages carry no text at all is
// corrupt.
func (s *Segmenter) Segment(ctx context.Context, docID string, data []byte) (*Sequence, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	pages, err := s.source.Pages(ctx, data)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrCorruptDocument) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrCorruptDocument)
	}

	seq := &Sequence{docID: docID, pages: pages, minChars: s.minChars}
	if seq.Empty() {
		return nil, fmt.Errorf("%w: no text on any of %d pages", ErrCorruptDocument, len(pages))
	}
	return seq, nil
}

// Sequence is the ordered segments of one document. It holds the page text
// and splits it on demand, so iterating it again yields identical
// segments.
type Sequence struct {
	docID    string
	pages    []string
	minChars int
}

// NewSequence builds a sequence over already recovered page text.
func NewSequence(docID string, pages []string, minChars int) *Sequence {
	return &Sequence{docID: docID, pages: pages, minChars: minChars}
}

// Pages returns the number of pages.
func (q *Sequence) Pages() int { return len(q.pages) }

// All yields segments ordered by page, then ordinal.
func (q *Sequence) All() iter.Seq[types.Segment] {
	return func(yield func(types.Segment) bool) {
		for i, text := range q.pages {
			page := i + 1
			ordinal := 0
			for _, para := range paragraphs(text) {
				if utf8.RuneCountInString(para) < q.minChars {
					continue
				}
				seg := types.Segment{
					ID:         SegmentID(q.docID, page, ordinal),
					DocumentID: q.docID,
					Page:       page,
					Ordinal:    ordinal,
					Text:       para,
				}
				if !yield(seg) {
					return
				}
				ordinal++
			}
		}
	}
}

// Collect returns all segments as a slice.
func (q *Sequence) Collect() []types.Segment {
	return slices.Collect(q.All())
}

// Empty reports whether the sequence yields no segment.
func (q *Sequence) Empty() bool {
	for range q.All() {
		return false
	}
	return true
}

// SegmentID is the first 16 hex characters of SHA-256(docID, page, ordinal).
func SegmentID(docID string, page, ordinal int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d\x00%d", docID, page, ordinal))
	return fmt.Sprintf("%x", sum[:8])
}

var (
	blankLineRe  = regexp.MustCompile(`\n[ \t\f\v]*\n`)
	hyphenWrapRe = regexp.MustCompile(`(\p{L})-\n[ \t]*(\p{Ll})`)
)

// paragraphs splits page text on blank lines. Within a paragraph, words
// hyphenated across a line break are rejoined and runs of whitespace
// collapse to one space.
func paragraphs(page string) []string {
	page = strings.ReplaceAll(page, "\r\n", "\n")
	page = strings.ReplaceAll(page, "\r", "\n")

	var out []string
	for _, block := range blankLineRe.Split(page, -1) {
		block = hyphenWrapRe.ReplaceAllString(block, "$1$2")
		text := strings.Join(strings.Fields(block), " ")
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}
