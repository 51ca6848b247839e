package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"trail-go/internal/trail"
)

// FeatureCollection is a GeoJSON (RFC 7946) feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry holds either a Point ([lng, lat]) or a LineString ([[lng, lat], ...]).
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// GeoJSONRenderer keeps the latest drawn state and encodes it as a
// FeatureCollection: one LineString per path, a start and a stop Point per
// overlay, plus the live position when one is known.
type GeoJSONRenderer struct {
	mu       sync.Mutex
	overlays []trail.Overlay
	center   trail.Position
	live     *trail.Position
}

var _ trail.Renderer = (*GeoJSONRenderer)(nil)

func NewGeoJSONRenderer() *GeoJSONRenderer {
	return &GeoJSONRenderer{}
}

func (r *GeoJSONRenderer) ShowLive(pos trail.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = &pos
}

func (r *GeoJSONRenderer) Draw(overlays []trail.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlays = append([]trail.Overlay(nil), overlays...)
}

func (r *GeoJSONRenderer) Recenter(center trail.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center = center
}

// Center returns the latest recenter target.
func (r *GeoJSONRenderer) Center() trail.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.center
}

// Collection builds the feature collection for the current state.
func (r *GeoJSONRenderer) Collection() FeatureCollection {
	r.mu.Lock()
	defer r.mu.Unlock()

	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, o := range r.overlays {
		for i, p := range o.Paths {
			fc.Features = append(fc.Features, Feature{
				Type:     "Feature",
				Geometry: Geometry{Type: "LineString", Coordinates: lineCoords(p)},
				Properties: map[string]any{
					"trail_id": o.TrailID,
					"name":     o.Name,
					"segment":  i,
					"stroke":   string(o.Style),
				},
			})
		}
		fc.Features = append(fc.Features,
			pointFeature(o.Start, map[string]any{"trail_id": o.TrailID, "marker": "start", "marker-color": string(o.Style)}),
			pointFeature(o.Stop, map[string]any{"trail_id": o.TrailID, "marker": "stop", "marker-color": string(o.Style)}),
		)
	}
	if r.live != nil {
		fc.Features = append(fc.Features, pointFeature(*r.live, map[string]any{"marker": "live"}))
	}
	return fc
}

// WriteTo encodes the feature collection to w.
func (r *GeoJSONRenderer) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(r.Collection(), "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding geojson: %w", err)
	}
	data = append(data, '\n')
	n, err := w.Write(data)
	return int64(n), err
}

func pointFeature(pos trail.Position, props map[string]any) Feature {
	return Feature{
		Type:       "Feature",
		Geometry:   Geometry{Type: "Point", Coordinates: [2]float64{pos.Longitude, pos.Latitude}},
		Properties: props,
	}
}

func lineCoords(p trail.Path) [][2]float64 {
	out := make([][2]float64, len(p))
	for i, pos := range p {
		out[i] = [2]float64{pos.Longitude, pos.Latitude}
	}
	return out
}
