package testutil

import (
	"sync"

	"trail-go/internal/trail"
)

// RecordingRenderer records every call made to it.
type RecordingRenderer struct {
	mu      sync.Mutex
	live    []trail.Position
	draws   [][]trail.Overlay
	centers []trail.Position
}

var _ trail.Renderer = (*RecordingRenderer)(nil)

func NewRecordingRenderer() *RecordingRenderer {
	return &RecordingRenderer{}
}

func (r *RecordingRenderer) ShowLive(pos trail.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = append(r.live, pos)
}

func (r *RecordingRenderer) Draw(overlays []trail.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws = append(r.draws, append([]trail.Overlay(nil), overlays...))
}

func (r *RecordingRenderer) Recenter(center trail.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.centers = append(r.centers, center)
}

// Live returns the live positions shown so far.
func (r *RecordingRenderer) Live() []trail.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trail.Position(nil), r.live...)
}

// Draws returns how many times Draw was called.
func (r *RecordingRenderer) Draws() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.draws)
}

// LastDraw returns the overlays of the latest Draw call.
func (r *RecordingRenderer) LastDraw() []trail.Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.draws) == 0 {
		return nil
	}
	return r.draws[len(r.draws)-1]
}

// LastCenter returns the latest Recenter target and whether there was one.
func (r *RecordingRenderer) LastCenter() (trail.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.centers) == 0 {
		return trail.Position{}, false
	}
	return r.centers[len(r.centers)-1], true
}
