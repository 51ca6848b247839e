package trail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
)

// Confirmer asks the operator to confirm an action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) { return f(ctx, prompt) }

// AlwaysConfirm confirms every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// StopPrompt is the question put to the operator before a recording stops.
const StopPrompt = "Stop recording?"

// SaveError is returned when a finalized path could not be written. Path
// holds the captured positions so the caller can retry with SavePath.
type SaveError struct {
	Path Path
	Err  error
}

func (e *SaveError) Error() string { return fmt.Sprintf("saving recorded path: %v", e.Err) }

func (e *SaveError) Unwrap() error { return e.Err }

// SessionConfig holds the per-session policy.
type SessionConfig struct {
	Scope       string
	UniqueNames bool
	Locale      language.Tag
	Palette     []Style
	Recording   RecorderConfig
	RetryDelay  time.Duration
}

// SessionDeps are the collaborators a Session is wired to.
type SessionDeps struct {
	Store    Store
	Provider LocationProvider
	Renderer Renderer
	Clock    Clock
	IDs      IDGenerator
	Logger   Logger
}

// Session is the state of one signed-in user: the scope, the catalog, the
// active selection and the recorder. It is created at session start and
// torn down with Close.
type Session struct {
	id        string
	scope     string
	renderer  Renderer
	logger    Logger
	repo      *Repository
	catalog   *Catalog
	selection *Selection
	recorder  *Recorder
	merger    *Merger

	unfollow func()

	mu     sync.Mutex
	target *Record
}

// NewSession wires a Session for cfg.Scope.
func NewSession(cfg SessionConfig, deps SessionDeps) *Session {
	if deps.Logger == nil {
		deps.Logger = NewNopLogger()
	}
	if deps.Renderer == nil {
		deps.Renderer = NopRenderer{}
	}
	if deps.IDs == nil {
		deps.IDs = UUIDGenerator{}
	}

	repo := NewRepository(deps.Store, cfg.Scope, RepositoryOptions{
		UniqueNames: cfg.UniqueNames,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	})
	catalog := NewCatalog(repo, cfg.Locale, deps.Logger)
	selection := NewSelection(catalog, deps.Renderer, cfg.Palette, deps.Logger)
	source := NewLocationSource(deps.Provider, cfg.RetryDelay, deps.Logger)
	recorder := NewRecorder(source, cfg.Recording, deps.Logger)

	s := &Session{
		id:        deps.IDs.New(),
		scope:     cfg.Scope,
		renderer:  deps.Renderer,
		logger:    deps.Logger,
		repo:      repo,
		catalog:   catalog,
		selection: selection,
		recorder:  recorder,
		merger:    NewMerger(repo, deps.Logger),
	}
	s.unfollow = selection.Follow()
	recorder.OnLive(s.showLive)
	return s
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Scope() string           { return s.scope }
func (s *Session) Repository() *Repository { return s.repo }
func (s *Session) Catalog() *Catalog       { return s.catalog }
func (s *Session) Selection() *Selection   { return s.selection }
func (s *Session) Recorder() *Recorder     { return s.recorder }

// Open loads the catalog for the session's scope.
func (s *Session) Open(ctx context.Context) error {
	s.logger.Info("session opened", "session", s.id, "scope", s.scope)
	return s.catalog.Refresh(ctx)
}

// StartRecording starts a recording. If a trail was chosen with
// ContinueTrail, the recording will be appended to it as a new path.
func (s *Session) StartRecording(ctx context.Context) error {
	return s.recorder.Start(ctx)
}

// ContinueTrail chooses an existing trail to append the next recording to.
// The trail is read fresh from the store so its version is current.
func (s *Session) ContinueTrail(ctx context.Context, id string) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("continuing %s: %w", id, ErrTrailGone)
		}
		return err
	}
	s.mu.Lock()
	s.target = rec
	s.mu.Unlock()
	s.logger.Info("continuing trail", "id", rec.ID, "segments", len(rec.Paths))
	if _, ok := s.catalog.Get(id); ok {
		return s.selection.Select(id)
	}
	return nil
}

// Continuing returns the trail the next recording will be appended to.
func (s *Session) Continuing() (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return nil, false
	}
	return s.target, true
}

// ClearContinuation makes the next recording create a new trail.
func (s *Session) ClearContinuation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = nil
}

// FinishRecording asks confirm to approve the stop, stops the recorder and
// saves the path: appended to the continued trail if one is chosen,
// otherwise as a new trail called name. The name is validated before the
// recorder is stopped so an invalid name never discards a capture.
func (s *Session) FinishRecording(ctx context.Context, name string, confirm Confirmer) (*Record, error) {
	if s.recorder.State() != StateRecording {
		return nil, fmt.Errorf("%w: not recording", ErrInvalidTransition)
	}
	if confirm != nil {
		ok, err := confirm.Confirm(ctx, StopPrompt)
		if err != nil {
			return nil, fmt.Errorf("confirming stop: %w", err)
		}
		if !ok {
			return nil, ErrStopCancelled
		}
	}

	if _, continuing := s.Continuing(); !continuing {
		if err := s.checkNewName(name); err != nil {
			return nil, err
		}
	}

	path, err := s.recorder.Stop()
	if err != nil {
		return nil, err
	}
	return s.SavePath(ctx, name, path)
}

// AbortRecording stops the recorder and discards what was captured.
func (s *Session) AbortRecording() {
	s.recorder.Abort()
}

// SavePath writes a finalized path, either onto the continued trail or as
// a new trail. The catalog is reconciled even if ctx is cancelled.
func (s *Session) SavePath(ctx context.Context, name string, path Path) (*Record, error) {
	if len(path) == 0 {
		return nil, ErrNothingToSave
	}

	s.mu.Lock()
	target := s.target
	s.mu.Unlock()

	var (
		saved  *Record
		reason ChangeReason
		err    error
	)
	if target != nil {
		saved, err = s.merger.Append(ctx, target, path)
		reason = ChangeUpdated
	} else {
		rec := &Record{Name: name, Paths: []Path{path}}
		_, err = s.repo.Create(ctx, rec)
		saved, reason = rec, ChangeCreated
	}
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, &SaveError{Path: path, Err: err}
	}

	if target != nil {
		s.mu.Lock()
		if s.target == target {
			s.target = saved
		}
		s.mu.Unlock()
	}

	if err := s.catalog.Reconcile(ctx, reason, saved.ID); err != nil {
		s.logger.Warn("catalog refresh after save failed", "id", saved.ID, "error", err)
	}
	return saved, nil
}

// ViewTrail shows a single trail and recenters on its start.
func (s *Session) ViewTrail(id string) error {
	return s.selection.Select(id)
}

// ToggleCombined adds or removes a trail from the combined view.
func (s *Session) ToggleCombined(id string) error {
	return s.selection.Toggle(id)
}

// Close aborts any active recording and detaches from the catalog.
func (s *Session) Close() {
	if s.recorder.State() == StateRecording {
		s.recorder.Abort()
	}
	if s.unfollow != nil {
		s.unfollow()
		s.unfollow = nil
	}
	s.logger.Info("session closed", "session", s.id)
}

func (s *Session) checkNewName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !s.repo.UniqueNames() {
		return nil
	}
	for _, r := range s.catalog.Snapshot() {
		if SameName(r.Name, name) {
			return &ValidationError{Field: "name", Reason: fmt.Sprintf("%q is already used by another trail", strings.TrimSpace(name))}
		}
	}
	return nil
}

func (s *Session) showLive(pos Position) {
	s.selection.SetFallback(pos)
	s.renderer.ShowLive(pos)
}
