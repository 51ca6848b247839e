package trail

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMinDistance is the default retention threshold in metres.
const DefaultMinDistance = 10.0

// RecorderState is the state of a Recorder.
type RecorderState int

const (
	StateIdle RecorderState = iota
	StateRecording
	StateStopped
)

func (s RecorderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("RecorderState(%d)", int(s))
	}
}

// DistanceFilter decides which samples a path retains: a sample is kept if
// the path is empty or it lies at least Threshold metres from the last
// retained sample.
type DistanceFilter struct {
	Threshold float64
}

// Accept reports whether next should be appended to path.
func (f DistanceFilter) Accept(path Path, next Position) bool {
	if len(path) == 0 {
		return true
	}
	return path[len(path)-1].DistanceTo(next) >= f.Threshold
}

// Apply runs the filter over samples in order and returns the retained path.
func (f DistanceFilter) Apply(samples []Position) Path {
	var out Path
	for _, s := range samples {
		if f.Accept(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	MinDistance float64
	Watch       WatchOptions
}

// Recorder turns a location stream into a finalized Path.
//
//	Idle --Start--> Recording --Stop--> Stopped --Start--> Recording
//
// Samples are processed one at a time in arrival order. The recorder
// exclusively owns the LocationSource subscription while recording.
type Recorder struct {
	source *LocationSource
	filter DistanceFilter
	watch  WatchOptions
	logger Logger

	mu       sync.Mutex
	state    RecorderState
	starting bool
	buf      Path
	onLive   func(Position)
	failures chan error
}

// NewRecorder creates an idle Recorder reading from source.
func NewRecorder(source *LocationSource, cfg RecorderConfig, logger Logger) *Recorder {
	if cfg.MinDistance <= 0 {
		cfg.MinDistance = DefaultMinDistance
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Recorder{
		source:   source,
		filter:   DistanceFilter{Threshold: cfg.MinDistance},
		watch:    cfg.Watch,
		logger:   logger,
		failures: make(chan error, 1),
	}
}

// OnLive registers a callback receiving every raw fix while recording,
// whether or not it is retained.
func (r *Recorder) OnLive(fn func(Position)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLive = fn
}

// State returns the current state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Path returns a copy of the positions retained so far.
func (r *Recorder) Path() Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Clone()
}

// Failures delivers fatal stream errors that occur after Start returned.
// The recorder stays in Recording; the caller decides whether to Stop and
// keep what was captured or Abort.
func (r *Recorder) Failures() <-chan error {
	return r.failures
}

// Start begins a new recording session, resetting the buffer. It seeds the
// buffer with the current fix when one is immediately available. A
// permission-denied error blocks the transition and is returned.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateRecording || r.starting {
		r.mu.Unlock()
		return fmt.Errorf("%w: already recording", ErrInvalidTransition)
	}
	r.starting = true
	prev := r.state
	r.mu.Unlock()

	var seed Path
	pos, err := r.source.Current(ctx, r.watch)
	switch {
	case err == nil:
		seed = Path{pos}
	case IsPermissionDenied(err):
		r.mu.Lock()
		r.starting = false
		r.mu.Unlock()
		return fmt.Errorf("starting recording: %w", err)
	default:
		r.logger.Debug("no immediate fix", "error", err)
	}

	r.mu.Lock()
	r.buf = seed
	r.state = StateRecording
	r.drainFailuresLocked()
	r.mu.Unlock()

	err = r.source.Start(ctx, r.watch, r.handle, r.fail)

	r.mu.Lock()
	r.starting = false
	if err != nil {
		r.buf = nil
		r.state = prev
	}
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("starting recording: %w", err)
	}

	r.logger.Info("recording started", "seeded", len(seed) > 0, "min_distance_m", r.filter.Threshold)
	return nil
}

// Stop ends the session: it unsubscribes, then finalizes the buffer as a
// Path. If no sample was retained it returns ErrNothingToSave and the
// session is discarded.
func (r *Recorder) Stop() (Path, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: stop while %s", ErrInvalidTransition, state)
	}
	r.mu.Unlock()

	r.source.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return nil, fmt.Errorf("%w: stop while %s", ErrInvalidTransition, r.state)
	}
	r.state = StateStopped
	path := r.buf
	r.buf = nil

	if len(path) == 0 {
		r.logger.Info("recording stopped with no samples")
		return nil, ErrNothingToSave
	}
	r.logger.Info("recording stopped", "points", len(path))
	return path, nil
}

// Abort unsubscribes and discards the buffer, returning to Idle.
func (r *Recorder) Abort() {
	r.source.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		r.logger.Info("recording aborted", "points", len(r.buf))
	}
	r.buf = nil
	r.state = StateIdle
}

// handle applies the retention policy to one sample.
func (r *Recorder) handle(pos Position) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return
	}
	live := r.onLive
	if r.filter.Accept(r.buf, pos) {
		r.buf = append(r.buf, pos)
		r.logger.Debug("sample retained", "lat", pos.Latitude, "lng", pos.Longitude, "points", len(r.buf))
	} else {
		r.logger.Debug("sample discarded", "lat", pos.Latitude, "lng", pos.Longitude)
	}
	r.mu.Unlock()

	if live != nil {
		live(pos)
	}
}

func (r *Recorder) fail(err error) {
	r.logger.Error("recording stream failed", "error", err)
	select {
	case r.failures <- err:
	default:
	}
}

func (r *Recorder) drainFailuresLocked() {
	select {
	case <-r.failures:
	default:
	}
}
