package render

import "trail-go/internal/trail"

// Multi fans every call out to several renderers in order.
type Multi []trail.Renderer

var _ trail.Renderer = Multi(nil)

func (m Multi) ShowLive(pos trail.Position) {
	for _, r := range m {
		r.ShowLive(pos)
	}
}

func (m Multi) Draw(overlays []trail.Overlay) {
	for _, r := range m {
		r.Draw(overlays)
	}
}

func (m Multi) Recenter(center trail.Position) {
	for _, r := range m {
		r.Recenter(center)
	}
}
