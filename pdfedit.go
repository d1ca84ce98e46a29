// Package pdfedit loads a PDF, exposes its text as editable runs, and writes
// the edited document back out with the original page content preserved.
package pdfedit

import (
	"context"
	"fmt"
	"os"

	"github.com/pyhub-apps/pdfedit-golang/pkg/editor"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// Re-export types from the pdf and editor packages for the public API
type (
	Engine          = editor.Engine
	Option          = editor.Option
	TextRun         = pdf.TextRun
	TextRunPatch    = pdf.TextRunPatch
	PageGeometry    = pdf.PageGeometry
	ShapeElement    = pdf.ShapeElement
	ImageElement    = pdf.ImageElement
	QRPlaceholder   = pdf.QRPlaceholder
	Color           = pdf.Color
	LoadError       = pdf.LoadError
	TimeoutError    = pdf.TimeoutError
	RenderError     = pdf.RenderError
	ExportError     = pdf.ExportError
	ValidationError = pdf.ValidationError
)

// Re-export option functions
var (
	WithScale          = editor.WithScale
	WithScalePolicy    = editor.WithScalePolicy
	WithMaxSize        = editor.WithMaxSize
	WithTimeout        = editor.WithTimeout
	WithHistoryLimit   = editor.WithHistoryLimit
	WithGranularity    = editor.WithGranularity
	WithBackground     = editor.WithBackground
	WithClassifier     = editor.WithClassifier
	WithRasterBackends = editor.WithRasterBackends
	WithLogger         = editor.WithLogger
)

// Granularities
const (
	Block = extract.Block
	Word  = extract.Word
)

// Re-export sentinel errors
var (
	ErrBusy       = pdf.ErrBusy
	ErrNoDocument = pdf.ErrNoDocument
	ErrSuperseded = pdf.ErrSuperseded
)

// MimeType is the only accepted document type.
const MimeType = "application/pdf"

// New returns an empty editing session.
func New(opts ...Option) (*Engine, error) {
	return editor.New(opts...)
}

// Open reads the PDF at path into a new session.
func Open(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	e, err := editor.New(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := e.LoadPDF(ctx, data, MimeType); err != nil {
		return nil, err
	}
	return e, nil
}
