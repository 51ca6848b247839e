package trail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultRetryDelay is how long LocationSource waits before resubscribing
// after a timeout-class error.
const DefaultRetryDelay = 5 * time.Second

// ErrStreamEnded is reported when a provider closes its stream while the
// source is still active.
var ErrStreamEnded = &AcquisitionError{Kind: AcquisitionUnavailable, Err: errors.New("location stream ended")}

// WatchOptions are the subscription options passed to a LocationProvider.
type WatchOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCacheAge  time.Duration
}

// Fix is one item of a location stream: either a position or an error.
type Fix struct {
	Position Position
	Err      error
}

// LocationProvider is the device position stream.
type LocationProvider interface {
	// Current returns an immediately available fix, if any.
	Current(ctx context.Context, opts WatchOptions) (Position, error)

	// Watch subscribes to the stream. The returned channel is closed when
	// ctx is cancelled (unsubscribe) or the stream ends. A permission
	// problem may be reported either here or as a Fix error.
	Watch(ctx context.Context, opts WatchOptions) (<-chan Fix, error)
}

// LocationSource owns the subscribe/retry/unsubscribe lifecycle around a
// LocationProvider. At most one subscription is live at a time and each
// fix is delivered to the single active handler, in arrival order.
type LocationSource struct {
	provider   LocationProvider
	retryDelay time.Duration
	logger     Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLocationSource creates a LocationSource. A non-positive retryDelay
// selects DefaultRetryDelay.
func NewLocationSource(provider LocationProvider, retryDelay time.Duration, logger Logger) *LocationSource {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &LocationSource{
		provider:   provider,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Current asks the provider for an immediately available fix.
func (s *LocationSource) Current(ctx context.Context, opts WatchOptions) (Position, error) {
	return s.provider.Current(ctx, opts)
}

// Start begins delivering fixes to onFix. Any previously active
// subscription is stopped first. A fatal subscription failure is returned
// directly; a fatal error later in the stream is passed to onErr after the
// stream has been torn down. Timeout-class errors, including one from the
// first subscribe, are retried internally after the retry delay for as long
// as the source is active.
func (s *LocationSource) Start(ctx context.Context, opts WatchOptions, onFix func(Position), onErr func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	subCtx, subCancel := context.WithCancel(runCtx)
	ch, watchErr := s.provider.Watch(subCtx, opts)
	if watchErr != nil {
		subCancel()
		if !IsTimeout(watchErr) {
			cancel()
			return fmt.Errorf("subscribing to location stream: %w", watchErr)
		}
	}

	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		var err error
		if watchErr != nil {
			ch, subCancel, err = s.resubscribe(runCtx, opts, watchErr)
		}
		if err == nil && ch != nil {
			err = s.run(runCtx, opts, ch, subCancel, onFix)
		}
		cancel()
		close(done)
		if err != nil && onErr != nil {
			onErr(err)
		}
	}()
	return nil
}

// Stop ends the stream. It is idempotent and returns only after the
// delivery goroutine has exited, so no fix is delivered after Stop returns.
func (s *LocationSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Active reports whether a subscription is live.
func (s *LocationSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *LocationSource) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// run delivers fixes until ctx is cancelled or a fatal error occurs.
func (s *LocationSource) run(ctx context.Context, opts WatchOptions, ch <-chan Fix, subCancel context.CancelFunc, onFix func(Position)) error {
	defer func() { subCancel() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fix, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStreamEnded
			}
			if fix.Err == nil {
				onFix(fix.Position)
				continue
			}
			if !IsTimeout(fix.Err) {
				s.logger.Error("location stream failed", "error", fix.Err)
				return fix.Err
			}

			subCancel()
			next, cancel, err := s.resubscribe(ctx, opts, fix.Err)
			if err != nil {
				return err
			}
			if next == nil {
				return nil
			}
			ch, subCancel = next, cancel
		}
	}
}

// resubscribe waits the retry delay and subscribes again, repeating while
// the subscription itself times out. It returns a nil channel if ctx is
// cancelled while waiting.
func (s *LocationSource) resubscribe(ctx context.Context, opts WatchOptions, cause error) (<-chan Fix, context.CancelFunc, error) {
	for {
		s.logger.Warn("location timeout, resubscribing", "delay", s.retryDelay, "error", cause)

		timer := time.NewTimer(s.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, nil
		case <-timer.C:
		}

		subCtx, cancel := context.WithCancel(ctx)
		ch, err := s.provider.Watch(subCtx, opts)
		if err == nil {
			return ch, cancel, nil
		}
		cancel()
		if !IsTimeout(err) {
			return nil, nil, err
		}
		cause = err
	}
}
