package trail

import (
	"errors"
	"testing"
)

var (
	westminster = Position{Latitude: 51.5007, Longitude: -0.1246}
	bridge      = Position{Latitude: 51.5008, Longitude: -0.1247}
)

func TestPosition_DistanceTo(t *testing.T) {
	d := westminster.DistanceTo(bridge)
	if d < 12.5 || d > 14 {
		t.Errorf("DistanceTo() = %.2f m, want about 13 m", d)
	}
	if westminster.DistanceTo(westminster) != 0 {
		t.Error("DistanceTo(self) != 0")
	}
}

func TestDistanceFilter_Accept(t *testing.T) {
	f := DistanceFilter{Threshold: 10}

	tests := []struct {
		name string
		path Path
		next Position
		want bool
	}{
		{name: "empty path keeps first sample", path: nil, next: westminster, want: true},
		{name: "13 m step kept", path: Path{westminster}, next: bridge, want: true},
		{name: "duplicate fix dropped", path: Path{westminster}, next: westminster, want: false},
		{name: "sub-threshold jitter dropped", path: Path{westminster}, next: Position{Latitude: 51.50072, Longitude: -0.1246}, want: false},
		{name: "compares with last retained sample", path: Path{bridge, westminster}, next: bridge, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Accept(tt.path, tt.next); got != tt.want {
				t.Errorf("Accept() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistanceFilter_ApplyNeverKeepsCloseNeighbours(t *testing.T) {
	f := DistanceFilter{Threshold: 10}
	var samples []Position
	for i := 0; i < 50; i++ {
		// alternating 2 m and 20 m steps northwards
		step := 0.000018
		if i%2 == 1 {
			step = 0.00018
		}
		prev := westminster
		if len(samples) > 0 {
			prev = samples[len(samples)-1]
		}
		samples = append(samples, Position{Latitude: prev.Latitude + step, Longitude: prev.Longitude})
	}

	path := f.Apply(samples)
	if len(path) == 0 {
		t.Fatal("Apply() retained nothing")
	}
	for i := 1; i < len(path); i++ {
		if d := path[i-1].DistanceTo(path[i]); d < f.Threshold {
			t.Errorf("retained points %d and %d are %.2f m apart", i-1, i, d)
		}
	}
}

func TestRecord_StartStop(t *testing.T) {
	rec := &Record{Paths: []Path{{westminster, bridge}, {bridge, westminster}}}
	if start, ok := rec.Start(); !ok || start != westminster {
		t.Errorf("Start() = %v, %v", start, ok)
	}
	if stop, ok := rec.Stop(); !ok || stop != westminster {
		t.Errorf("Stop() = %v, %v", stop, ok)
	}
	if rec.PointCount() != 4 {
		t.Errorf("PointCount() = %d, want 4", rec.PointCount())
	}

	empty := &Record{}
	if _, ok := empty.Start(); ok {
		t.Error("Start() ok on empty record")
	}
	if _, ok := empty.Stop(); ok {
		t.Error("Stop() ok on empty record")
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{name: "valid", rec: Record{Name: "Walk", Paths: []Path{{westminster}}}},
		{name: "blank name", rec: Record{Name: "  ", Paths: []Path{{westminster}}}, wantErr: true},
		{name: "no paths", rec: Record{Name: "Walk"}, wantErr: true},
		{name: "empty path", rec: Record{Name: "Walk", Paths: []Path{{westminster}, {}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("error %v does not match ErrValidation", err)
			}
		})
	}
}

func TestSameName(t *testing.T) {
	if !SameName("Thames Walk", " thames walk ") {
		t.Error("SameName should ignore case and surrounding space")
	}
	if SameName("Thames Walk", "Thames Walk 2") {
		t.Error("SameName matched different names")
	}
}

func TestApplyPatch(t *testing.T) {
	current := &Record{ID: "t1", Name: "Old", Paths: []Path{{westminster}}, Version: 3}

	name := "  New  "
	next, err := ApplyPatch(current, Patch{Name: &name})
	if err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if next.Name != "New" || next.Version != 4 {
		t.Errorf("ApplyPatch() = %+v", next)
	}
	if current.Name != "Old" || current.Version != 3 {
		t.Error("ApplyPatch() modified its input")
	}

	_, err = ApplyPatch(current, Patch{Name: &name, IfVersion: 2})
	if !errors.Is(err, ErrRevisionConflict) || !errors.Is(err, ErrConflict) {
		t.Errorf("stale ApplyPatch() error = %v, want ErrRevisionConflict", err)
	}
}

func TestMergePaths(t *testing.T) {
	p1 := Path{westminster, bridge}
	existing := &Record{Paths: []Path{p1}}
	next := Path{bridge, westminster}

	got := MergePaths(existing, next)
	if len(got) != 2 {
		t.Fatalf("len(MergePaths()) = %d, want 2", len(got))
	}
	if got[0][0] != westminster || got[0][1] != bridge || got[1][0] != bridge {
		t.Errorf("MergePaths() = %v", got)
	}

	got[0][0] = Position{}
	if existing.Paths[0][0] != westminster {
		t.Error("MergePaths() shares storage with the existing record")
	}
}
