// Package render provides Renderer implementations for terminals and files.
package render

import (
	"fmt"
	"io"
	"sync"

	"trail-go/internal/trail"
)

// TextRenderer writes a line-oriented description of everything drawn.
type TextRenderer struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

var _ trail.Renderer = (*TextRenderer)(nil)

func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

// Err returns the first write error, if any.
func (r *TextRenderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *TextRenderer) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *TextRenderer) ShowLive(pos trail.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printf("live     %s\n", FormatPosition(pos))
}

func (r *TextRenderer) Draw(overlays []trail.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(overlays) == 0 {
		r.printf("draw     (nothing selected)\n")
		return
	}
	for _, o := range overlays {
		points := 0
		var dist float64
		for _, p := range o.Paths {
			points += len(p)
			dist += p.Length()
		}
		r.printf("draw     %-8s %s  %d segment(s), %d point(s), %.0f m\n", o.Style, o.Name, len(o.Paths), points, dist)
		r.printf("         start %s  stop %s\n", FormatPosition(o.Start), FormatPosition(o.Stop))
	}
}

func (r *TextRenderer) Recenter(center trail.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printf("center   %s\n", FormatPosition(center))
}

// FormatPosition formats pos as "lat,lng" with six decimals.
func FormatPosition(pos trail.Position) string {
	return fmt.Sprintf("%.6f,%.6f", pos.Latitude, pos.Longitude)
}
