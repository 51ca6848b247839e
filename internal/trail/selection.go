package trail

import (
	"fmt"
	"sync"
)

// DefaultPalette is the style cycle used for combined views.
var DefaultPalette = []Style{"blue", "red", "green", "purple", "orange", "yellow"}

// SelectionMode is the selection behaviour of a Selection.
type SelectionMode int

const (
	// SingleSelection shows one trail; selecting replaces the prior choice.
	SingleSelection SelectionMode = iota
	// MultiSelection overlays a set of trails toggled in and out.
	MultiSelection
)

func (m SelectionMode) String() string {
	if m == MultiSelection {
		return "multi"
	}
	return "single"
}

// Selection tracks which trails are active for display and drives the
// renderer. Overlays and the recenter target are recomputed from the
// catalog snapshot on every change.
type Selection struct {
	catalog  *Catalog
	renderer Renderer
	palette  []Style
	logger   Logger

	mu       sync.Mutex
	mode     SelectionMode
	order    []string
	fallback Position
}

// NewSelection creates an empty single-mode selection over catalog.
// An empty palette selects DefaultPalette.
func NewSelection(catalog *Catalog, renderer Renderer, palette []Style, logger Logger) *Selection {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Selection{
		catalog:  catalog,
		renderer: renderer,
		palette:  append([]Style(nil), palette...),
		logger:   logger,
	}
}

// SetFallback sets the recenter target used while nothing is selected,
// typically the last known live position.
func (s *Selection) SetFallback(pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = pos
}

// Mode returns the current selection mode.
func (s *Selection) Mode() SelectionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Selected returns the selected trail IDs in selection order.
func (s *Selection) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Select switches to single mode, replaces the selection with id and
// recenters on the trail's start.
func (s *Selection) Select(id string) error {
	if _, ok := s.catalog.Get(id); !ok {
		return fmt.Errorf("selecting %s: %w", id, ErrTrailGone)
	}
	s.mu.Lock()
	s.mode = SingleSelection
	s.order = []string{id}
	s.mu.Unlock()
	s.Render()
	return nil
}

// Toggle adds id to the combined set, or removes it if already present.
// Entering multi mode from single mode starts a fresh set.
func (s *Selection) Toggle(id string) error {
	s.mu.Lock()
	if s.mode != MultiSelection {
		s.mode = MultiSelection
		s.order = nil
	}
	for i, sel := range s.order {
		if sel == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			s.mu.Unlock()
			s.Render()
			return nil
		}
	}
	s.mu.Unlock()

	if _, ok := s.catalog.Get(id); !ok {
		return fmt.Errorf("combining %s: %w", id, ErrTrailGone)
	}
	s.mu.Lock()
	s.order = append(s.order, id)
	s.mu.Unlock()
	s.Render()
	return nil
}

// Clear empties the selection and returns to single mode.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.mode = SingleSelection
	s.order = nil
	s.mu.Unlock()
	s.Render()
}

// StyleAt returns the palette entry for the given selection index.
func (s *Selection) StyleAt(index int) Style {
	return s.palette[index%len(s.palette)]
}

// Overlays builds the overlay for every selected trail still in the
// catalog, styled by selection index.
func (s *Selection) Overlays() []Overlay {
	ids := s.Selected()
	out := make([]Overlay, 0, len(ids))
	for i, id := range ids {
		rec, ok := s.catalog.Get(id)
		if !ok {
			continue
		}
		start, _ := rec.Start()
		stop, _ := rec.Stop()
		out = append(out, Overlay{
			TrailID: rec.ID,
			Name:    rec.Name,
			Paths:   rec.Paths,
			Style:   s.StyleAt(i),
			Start:   start,
			Stop:    stop,
		})
	}
	return out
}

// Center returns the start of the first selected trail, or the fallback
// when the selection is empty.
func (s *Selection) Center() Position {
	for _, id := range s.Selected() {
		if rec, ok := s.catalog.Get(id); ok {
			if start, ok := rec.Start(); ok {
				return start
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Render pushes the current overlays and recenter target to the renderer.
func (s *Selection) Render() {
	overlays := s.Overlays()
	s.renderer.Draw(overlays)
	s.renderer.Recenter(s.Center())
}

// Follow subscribes the selection to catalog changes: trails that left the
// catalog are dropped from the selection and the view is redrawn.
func (s *Selection) Follow() (unsubscribe func()) {
	return s.catalog.Subscribe(s.onListChanged)
}

func (s *Selection) onListChanged(ev ListChanged) {
	present := make(map[string]struct{}, len(ev.Records))
	for _, r := range ev.Records {
		present[r.ID] = struct{}{}
	}

	s.mu.Lock()
	kept := s.order[:0:0]
	for _, id := range s.order {
		if _, ok := present[id]; ok {
			kept = append(kept, id)
		} else {
			s.logger.Debug("selected trail left the catalog", "id", id)
		}
	}
	changed := len(kept) != len(s.order)
	s.order = kept
	empty := len(s.order) == 0
	s.mu.Unlock()

	if changed || !empty {
		s.Render()
	}
}
