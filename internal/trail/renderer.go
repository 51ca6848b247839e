package trail

// Style is the drawing style assigned to a path, typically a colour name.
type Style string

// Overlay is one trail drawn on the renderer: every path of the record in a
// single style, with start and stop markers.
type Overlay struct {
	TrailID string
	Name    string
	Paths   []Path
	Style   Style
	Start   Position
	Stop    Position
}

// Renderer is the drawing surface. Implementations draw endpoint markers and
// a connecting line per path.
type Renderer interface {
	// ShowLive marks the current live position while recording.
	ShowLive(pos Position)

	// Draw replaces the drawn overlays with the given set.
	Draw(overlays []Overlay)

	// Recenter moves the view to the given coordinate.
	Recenter(center Position)
}

// NopRenderer draws nothing.
type NopRenderer struct{}

func (NopRenderer) ShowLive(Position) {}
func (NopRenderer) Draw([]Overlay)    {}
func (NopRenderer) Recenter(Position) {}
