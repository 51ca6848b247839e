package trail

import (
	"strconv"
	"strings"
	"time"

	"trail-go/internal/geo"
)

// Position is a single latitude/longitude fix in decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// DistanceTo returns the haversine distance in metres from p to q.
func (p Position) DistanceTo(q Position) float64 {
	return geo.HaversineM(p.Latitude, p.Longitude, q.Latitude, q.Longitude)
}

// Path is an ordered sequence of positions captured during one recording
// session. Index order is capture order.
type Path []Position

// Clone returns a copy of the path that shares no backing array with p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Length returns the total haversine length of the path in metres.
func (p Path) Length() float64 {
	var total float64
	for i := 1; i < len(p); i++ {
		total += p[i-1].DistanceTo(p[i])
	}
	return total
}

// Record is a named, persisted trail made of one or more paths.
// Start and Stop are always derived from Paths and never stored.
type Record struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Scope     string    `json:"scope" yaml:"scope"`
	Paths     []Path    `json:"paths" yaml:"paths"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Version is the store revision, incremented on every update.
	Version int64 `json:"version" yaml:"version"`
}

// Start returns the first position of the first path.
// ok is false when the record has no positions.
func (r *Record) Start() (pos Position, ok bool) {
	if len(r.Paths) == 0 || len(r.Paths[0]) == 0 {
		return Position{}, false
	}
	return r.Paths[0][0], true
}

// Stop returns the last position of the last path.
func (r *Record) Stop() (pos Position, ok bool) {
	if len(r.Paths) == 0 {
		return Position{}, false
	}
	last := r.Paths[len(r.Paths)-1]
	if len(last) == 0 {
		return Position{}, false
	}
	return last[len(last)-1], true
}

// Distance returns the summed length of all paths in metres.
func (r *Record) Distance() float64 {
	var total float64
	for _, p := range r.Paths {
		total += p.Length()
	}
	return total
}

// PointCount returns the number of positions across all paths.
func (r *Record) PointCount() int {
	n := 0
	for _, p := range r.Paths {
		n += len(p)
	}
	return n
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Paths = make([]Path, len(r.Paths))
	for i, p := range r.Paths {
		out.Paths[i] = p.Clone()
	}
	return &out
}

// Validate checks the record invariants: a non-blank name and at least one
// path, none of them empty.
func (r *Record) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	return ValidatePaths(r.Paths)
}

// ValidateName rejects empty and whitespace-only names.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return nil
}

// ValidatePaths requires at least one path and no empty paths.
func ValidatePaths(paths []Path) error {
	if len(paths) == 0 {
		return &ValidationError{Field: "paths", Reason: "must contain at least one path"}
	}
	for i, p := range paths {
		if len(p) == 0 {
			return &ValidationError{Field: "paths", Reason: "path " + strconv.Itoa(i) + " is empty"}
		}
	}
	return nil
}

// SameName reports whether two trail names collide under the unique-name
// policy. Comparison ignores surrounding whitespace and case.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Patch describes a partial update to a record. Nil fields are left alone.
type Patch struct {
	Name  *string
	Paths []Path

	// IfVersion, when non-zero, makes the update conditional on the stored
	// record still being at that version.
	IfVersion int64
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Paths == nil
}

// Validate checks the fields the patch sets.
func (p Patch) Validate() error {
	if p.Empty() {
		return &ValidationError{Field: "patch", Reason: "nothing to update"}
	}
	if p.Name != nil {
		if err := ValidateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Paths != nil {
		if err := ValidatePaths(p.Paths); err != nil {
			return err
		}
	}
	return nil
}

// ApplyPatch returns a copy of current with the patch applied and the
// version bumped. It returns ErrRevisionConflict if patch.IfVersion is set
// and does not match current.Version. Stores share this so that every
// backend resolves conditional updates identically.
func ApplyPatch(current *Record, patch Patch) (*Record, error) {
	if patch.IfVersion != 0 && patch.IfVersion != current.Version {
		return nil, revisionConflict(current.ID, patch.IfVersion, current.Version)
	}
	next := current.Clone()
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Paths != nil {
		next.Paths = make([]Path, len(patch.Paths))
		for i, p := range patch.Paths {
			next.Paths[i] = p.Clone()
		}
	}
	next.Version = current.Version + 1
	return next, nil
}
