package editor

import (
	"time"

	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/history"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
	"github.com/pyhub-apps/pdfedit-golang/pkg/raster"
)

type config struct {
	scale           coords.ScalePolicy
	maxSize         int
	timeout         time.Duration
	historyLimit    int
	granularity     extract.Granularity
	background      pdf.Color
	classifier      pdf.StyleClassifier
	rasterPrimary   raster.Backend
	rasterFallback  raster.Backend
	extractBackends []extract.Backend
	clock           func() time.Time
	logger          observability.Logger
}

func defaultConfig() config {
	return config{
		scale:          coords.DefaultScalePolicy,
		maxSize:        raster.DefaultMaxSize,
		timeout:        raster.DefaultTimeout,
		historyLimit:   history.DefaultLimit,
		granularity:    extract.Block,
		background:     pdf.White,
		classifier:     extract.HeuristicClassifier{},
		rasterPrimary:  raster.NewFreetypeBackend(),
		rasterFallback: raster.BasicBackend{},
		clock:          time.Now,
		logger:         observability.NopLogger{},
	}
}

// Option configures an Engine.
type Option func(*config)

// WithScalePolicy sets how the editor scale of each page is chosen.
func WithScalePolicy(p coords.ScalePolicy) Option {
	return func(c *config) {
		c.scale = p
	}
}

// WithScale fixes the editor scale of every page.
func WithScale(scale float64) Option {
	return func(c *config) {
		c.scale = coords.ScalePolicy{Fixed: scale}
	}
}

// WithMaxSize sets the largest accepted document in bytes.
func WithMaxSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTimeout bounds each parse and render attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHistoryLimit caps the number of undo snapshots.
func WithHistoryLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// WithGranularity selects block- or word-level runs.
func WithGranularity(g extract.Granularity) Option {
	return func(c *config) {
		c.granularity = g
	}
}

// WithBackground sets the color used to cover replaced text on export.
func WithBackground(col pdf.Color) Option {
	return func(c *config) {
		c.background = col
	}
}

// WithClassifier replaces the font style classifier used everywhere.
func WithClassifier(sc pdf.StyleClassifier) Option {
	return func(c *config) {
		if sc != nil {
			c.classifier = sc
		}
	}
}

// WithRasterBackends sets the primary and fallback glyph backends.
func WithRasterBackends(primary, fallback raster.Backend) Option {
	return func(c *config) {
		c.rasterPrimary = primary
		c.rasterFallback = fallback
	}
}

// WithExtractBackends replaces the text extraction fallback chain.
func WithExtractBackends(backends ...extract.Backend) Option {
	return func(c *config) {
		c.extractBackends = backends
	}
}

// WithClock replaces time.Now for element ids and snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *config) {
		c.logger = observability.OrNop(l)
	}
}
