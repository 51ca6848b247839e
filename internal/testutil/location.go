package testutil

import (
	"context"
	"errors"
	"sync"

	"trail-go/internal/trail"
)

// Subscription scripts one Watch call on a FakeProvider.
type Subscription struct {
	// Err is returned by Watch instead of a stream.
	Err error
	// Fixes are delivered in order.
	Fixes []trail.Fix
	// End closes the stream after Fixes. Otherwise it stays open until
	// the subscriber unsubscribes.
	End bool
}

// FakeProvider is a scripted trail.LocationProvider. Each Watch call
// consumes the next Subscription; once the script is exhausted, Watch
// returns an open stream that delivers nothing.
type FakeProvider struct {
	mu         sync.Mutex
	current    *trail.Position
	currentErr error
	script     []Subscription
	watches    int
	open       int
	sent       int
	lastOpts   trail.WatchOptions
}

var _ trail.LocationProvider = (*FakeProvider)(nil)

// NewFakeProvider creates a provider with no current fix.
func NewFakeProvider(script ...Subscription) *FakeProvider {
	return &FakeProvider{script: script}
}

// SetCurrent makes Current return pos.
func (p *FakeProvider) SetCurrent(pos trail.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current, p.currentErr = &pos, nil
}

// SetCurrentErr makes Current return err.
func (p *FakeProvider) SetCurrentErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current, p.currentErr = nil, err
}

func (p *FakeProvider) Current(ctx context.Context, _ trail.WatchOptions) (trail.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentErr != nil {
		return trail.Position{}, p.currentErr
	}
	if p.current == nil {
		return trail.Position{}, Unavailable()
	}
	return *p.current, nil
}

func (p *FakeProvider) Watch(ctx context.Context, opts trail.WatchOptions) (<-chan trail.Fix, error) {
	p.mu.Lock()
	p.watches++
	p.lastOpts = opts
	var sub Subscription
	if len(p.script) > 0 {
		sub, p.script = p.script[0], p.script[1:]
	}
	if sub.Err != nil {
		p.mu.Unlock()
		return nil, sub.Err
	}
	p.open++
	p.mu.Unlock()

	ch := make(chan trail.Fix)
	go func() {
		defer func() {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
			close(ch)
		}()
		for _, fix := range sub.Fixes {
			select {
			case ch <- fix:
				p.mu.Lock()
				p.sent++
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
		if sub.End {
			return
		}
		<-ctx.Done()
	}()
	return ch, nil
}

// Watches returns how many times Watch was called.
func (p *FakeProvider) Watches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watches
}

// Open returns the number of streams not yet closed.
func (p *FakeProvider) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Sent returns how many fixes have been handed to a subscriber.
func (p *FakeProvider) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// LastOptions returns the options of the most recent Watch call.
func (p *FakeProvider) LastOptions() trail.WatchOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOpts
}

// Fixes wraps positions as successful fixes.
func Fixes(positions ...trail.Position) []trail.Fix {
	out := make([]trail.Fix, len(positions))
	for i, pos := range positions {
		out[i] = trail.Fix{Position: pos}
	}
	return out
}

// Timeout returns a timeout-class acquisition error.
func Timeout() error {
	return &trail.AcquisitionError{Kind: trail.AcquisitionTimeout, Err: errors.New("no fix within timeout")}
}

// Denied returns a permission-denied acquisition error.
func Denied() error {
	return &trail.AcquisitionError{Kind: trail.AcquisitionPermissionDenied, Err: errors.New("location permission denied")}
}

// Unavailable returns a position-unavailable acquisition error.
func Unavailable() error {
	return &trail.AcquisitionError{Kind: trail.AcquisitionUnavailable, Err: errors.New("position unavailable")}
}
