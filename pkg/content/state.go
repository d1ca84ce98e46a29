package content

import (
	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// GraphicsState represents the PDF graphics state
type GraphicsState struct {
	CTM            coords.Matrix // Current Transformation Matrix
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
	CharSpace      float64
	WordSpace      float64
	HScale         float64 // Horizontal scaling, percent
	Leading        float64
	Font           *pdf.Font
	FontName       string
	FontSize       float64
	TextRise       float64
	RenderMode     int

	FillColor   []float64
	StrokeColor []float64

	// Resources in effect; form XObjects replace it while they run.
	Resources *pdf.Resources
}

// NewGraphicsState creates a new graphics state with defaults
func NewGraphicsState(ctm coords.Matrix, res *pdf.Resources) *GraphicsState {
	return &GraphicsState{
		CTM:            ctm,
		TextMatrix:     coords.Identity(),
		TextLineMatrix: coords.Identity(),
		HScale:         100,
		FillColor:      []float64{0},
		StrokeColor:    []float64{0},
		Resources:      res,
	}
}

// Clone creates a copy of the graphics state
func (gs *GraphicsState) Clone() *GraphicsState {
	s := *gs
	s.FillColor = append([]float64(nil), gs.FillColor...)
	s.StrokeColor = append([]float64(nil), gs.StrokeColor...)
	return &s
}

// StateStack manages graphics state stack for save/restore operations
type StateStack struct {
	states []*GraphicsState
}

// NewStateStack creates a stack holding initial.
func NewStateStack(initial *GraphicsState) *StateStack {
	return &StateStack{states: []*GraphicsState{initial}}
}

// Current returns the current graphics state
func (s *StateStack) Current() *GraphicsState {
	return s.states[len(s.states)-1]
}

// Save pushes a copy of the current state (q).
func (s *StateStack) Save() {
	s.states = append(s.states, s.Current().Clone())
}

// Restore pops the current state (Q). The bottom state is never popped.
func (s *StateStack) Restore() {
	if len(s.states) > 1 {
		s.states = s.states[:len(s.states)-1]
	}
}

// Depth returns the number of saved states.
func (s *StateStack) Depth() int {
	return len(s.states) - 1
}
