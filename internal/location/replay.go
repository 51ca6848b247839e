// Package location provides LocationProvider implementations that do not
// need a device: replay of a recorded sample file and a fixed position.
package location

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"trail-go/internal/trail"
)

// sampleLine is one line of a JSON lines replay file. A line carries
// either a position or an error kind.
type sampleLine struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Error     string   `json:"error,omitempty"`
}

// ReplayProvider replays a fixed sequence of fixes. Each Watch resumes
// where the previous subscription stopped, so a stream interrupted by a
// timeout picks up after the failing sample. The stream closes once every
// sample has been delivered.
type ReplayProvider struct {
	samples  []trail.Fix
	interval time.Duration

	mu   sync.Mutex
	next int
}

var _ trail.LocationProvider = (*ReplayProvider)(nil)

// NewReplayProvider creates a provider delivering samples one interval apart.
func NewReplayProvider(samples []trail.Fix, interval time.Duration) *ReplayProvider {
	return &ReplayProvider{samples: samples, interval: interval}
}

// LoadReplayFile reads a replay file. Files ending in .csv are parsed as
// CSV; anything else as JSON lines.
func LoadReplayFile(path string, interval time.Duration) (*ReplayProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	defer f.Close()

	var samples []trail.Fix
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		samples, err = ParseCSV(f)
	} else {
		samples, err = ParseJSONLines(f)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return NewReplayProvider(samples, interval), nil
}

// ParseJSONLines parses one sample per line:
//
//	{"latitude": 51.5007, "longitude": -0.1246}
//	{"error": "timeout"}
//
// Blank lines are skipped.
func ParseJSONLines(r io.Reader) ([]trail.Fix, error) {
	var out []trail.Fix
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var s sampleLine
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fix, err := s.fix()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, fix)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s sampleLine) fix() (trail.Fix, error) {
	if s.Error != "" {
		aerr, err := ErrorForKind(s.Error)
		if err != nil {
			return trail.Fix{}, err
		}
		return trail.Fix{Err: aerr}, nil
	}
	if s.Latitude == nil || s.Longitude == nil {
		return trail.Fix{}, errors.New("sample needs latitude and longitude")
	}
	return newFix(*s.Latitude, *s.Longitude)
}

// ParseCSV parses "latitude,longitude" records. A record whose first field
// is "error" injects an acquisition error of the kind in the second field.
// A header row and lines starting with # are skipped.
func ParseCSV(r io.Reader) ([]trail.Fix, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var out []trail.Fix
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		first := strings.ToLower(strings.TrimSpace(rec[0]))
		switch first {
		case "latitude", "lat":
			if row == 1 {
				continue
			}
		case "error":
			aerr, err := ErrorForKind(rec[1])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", row, err)
			}
			out = append(out, trail.Fix{Err: aerr})
			continue
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: latitude: %w", row, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: longitude: %w", row, err)
		}
		fix, err := newFix(lat, lng)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		out = append(out, fix)
	}
}

// ErrorForKind maps "timeout", "denied" or "unavailable" to the
// corresponding acquisition error.
func ErrorForKind(kind string) (*trail.AcquisitionError, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "timeout":
		return &trail.AcquisitionError{Kind: trail.AcquisitionTimeout, Err: errors.New("replayed timeout")}, nil
	case "denied", "permission-denied", "permission_denied":
		return &trail.AcquisitionError{Kind: trail.AcquisitionPermissionDenied, Err: errors.New("replayed permission denial")}, nil
	case "unavailable":
		return &trail.AcquisitionError{Kind: trail.AcquisitionUnavailable, Err: errors.New("replayed unavailable position")}, nil
	default:
		return nil, fmt.Errorf("unknown error kind %q", kind)
	}
}

func newFix(lat, lng float64) (trail.Fix, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return trail.Fix{}, fmt.Errorf("position %v,%v out of range", lat, lng)
	}
	return trail.Fix{Position: trail.Position{Latitude: lat, Longitude: lng}}, nil
}

// Len returns the number of samples.
func (p *ReplayProvider) Len() int { return len(p.samples) }

// Remaining returns the number of samples not yet delivered.
func (p *ReplayProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples) - p.next
}

// Current returns the next sample without consuming it.
func (p *ReplayProvider) Current(ctx context.Context, _ trail.WatchOptions) (trail.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.samples) {
		return trail.Position{}, &trail.AcquisitionError{Kind: trail.AcquisitionUnavailable, Err: errors.New("replay exhausted")}
	}
	s := p.samples[p.next]
	if s.Err != nil {
		return trail.Position{}, s.Err
	}
	return s.Position, nil
}

// Watch streams the remaining samples.
func (p *ReplayProvider) Watch(ctx context.Context, _ trail.WatchOptions) (<-chan trail.Fix, error) {
	ch := make(chan trail.Fix)
	go func() {
		defer close(ch)
		var tick <-chan time.Time
		if p.interval > 0 {
			t := time.NewTicker(p.interval)
			defer t.Stop()
			tick = t.C
		}
		for {
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			}

			p.mu.Lock()
			if p.next >= len(p.samples) {
				p.mu.Unlock()
				return
			}
			s := p.samples[p.next]
			p.next++
			p.mu.Unlock()

			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.next--
				p.mu.Unlock()
				return
			case ch <- s:
			}

			if s.Err != nil {
				// The subscriber resubscribes or gives up; either way this
				// stream is finished.
				<-ctx.Done()
				return
			}
		}
	}()
	return ch, nil
}
