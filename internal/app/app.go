package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"trail-go/internal/config"
	"trail-go/internal/database"
	"trail-go/internal/docstore"
	"trail-go/internal/encryption"
	"trail-go/internal/events"
	"trail-go/internal/location"
	"trail-go/internal/render"
	"trail-go/internal/trail"
)

// Options adjusts how NewTrailApp wires the application. Zero values fall
// back to the config and the process's standard streams.
type Options struct {
	// Operation identifies the CLI command being run (e.g. "Record", "List").
	Operation  string
	Parameters string

	// Scope overrides cfg.Scope.
	Scope string

	// Out receives the text rendering of the map view.
	Out io.Writer

	// Console receives log records at ConsoleLevel and above.
	Console      io.Writer
	ConsoleLevel slog.Level

	// Store and Provider override the backends built from cfg.Store and
	// cfg.Location.
	Store    trail.Store
	Provider trail.LocationProvider
}

// TrailApp is the application layer between the CLI and the trail Session.
// It constructs all dependencies from config, exposes high-level
// operations, and releases every resource on Close.
type TrailApp struct {
	cfg       *config.Config
	store     trail.Store
	encryptor trail.Encryptor
	session   *trail.Session
	text      *render.TextRenderer
	geojson   *render.GeoJSONRenderer
	redis     *redis.Client
	publisher *events.Publisher
	detach    func()
	locale    language.Tag
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
}

// NewTrailApp creates a fully wired TrailApp from the given config and
// loads the catalog of its scope. The caller must call Close when done.
func NewTrailApp(ctx context.Context, cfg *config.Config, opts Options) (*TrailApp, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
		if opts.ConsoleLevel == 0 {
			opts.ConsoleLevel = slog.LevelWarn
		}
	}
	scope := cfg.Scope
	if opts.Scope != "" {
		scope = opts.Scope
	}

	locale, err := language.Parse(cfg.Catalog.Locale)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog locale %q: %w", cfg.Catalog.Locale, err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, cfg.SessionID, opts.Console, opts.ConsoleLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	tlog := &slogAdapter{l: logger}

	a := &TrailApp{
		cfg:     cfg,
		locale:  locale,
		op:      NewOperation(opts.Operation, opts.Parameters, time.Now()),
		logger:  logger,
		logFile: logFile,
	}

	a.store = opts.Store
	if a.store == nil {
		a.store, err = newStore(ctx, cfg.Store)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating store: %w", err)
		}
	}
	if m, ok := a.store.(interface{ CheckMigrations() error }); ok {
		if err := m.CheckMigrations(); err != nil {
			a.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	provider := opts.Provider
	if provider == nil {
		provider, err = location.NewProviderFromConfig(cfg.Location)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating location provider: %w", err)
		}
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	a.text = render.NewTextRenderer(opts.Out)
	a.geojson = render.NewGeoJSONRenderer()

	a.session = trail.NewSession(trail.SessionConfig{
		Scope:       scope,
		UniqueNames: cfg.Catalog.UniqueNames,
		Locale:      locale,
		Palette:     palette(cfg.Catalog.Palette),
		Recording: trail.RecorderConfig{
			MinDistance: cfg.Recording.MinDistanceM,
			Watch: trail.WatchOptions{
				HighAccuracy: cfg.Recording.HighAccuracy,
				Timeout:      millis(cfg.Recording.TimeoutMS),
				MaxCacheAge:  millis(cfg.Recording.MaxCacheAgeMS),
			},
		},
		RetryDelay: millis(cfg.Recording.RetryDelayMS),
	}, trail.SessionDeps{
		Store:    a.store,
		Provider: provider,
		Renderer: render.Multi{a.text, a.geojson},
		Clock:    trail.RealClock{},
		IDs:      trail.UUIDGenerator{},
		Logger:   tlog,
	})

	if a.redis = events.ConnectRedis(cfg.Events); a.redis != nil {
		a.publisher = events.NewPublisher(a.redis, cfg.Events.RedisChannelPrefix, a.session.ID(), tlog)
		a.detach = a.publisher.Attach(a.session.Catalog())
	}

	a.logger.Info("operation started", "operation", a.op.Name, "parameters", a.op.Parameters, "scope", scope, "store", cfg.Store.Type)

	if err := a.session.Open(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading trails: %w", err)
	}
	return a, nil
}

// newStore picks the SQL or document backend for cfg.Type.
func newStore(ctx context.Context, cfg config.StoreConfig) (trail.Store, error) {
	switch cfg.Type {
	case "sqlite", "postgres":
		return database.NewStoreFromConfig(ctx, cfg, nil)
	default:
		return docstore.NewStoreFromConfig(ctx, cfg, nil)
	}
}

func palette(names []string) []trail.Style {
	out := make([]trail.Style, len(names))
	for i, n := range names {
		out[i] = trail.Style(n)
	}
	return out
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Session returns the trail session.
func (a *TrailApp) Session() *trail.Session { return a.session }

// Encryptor returns the encryptor used for exports.
func (a *TrailApp) Encryptor() trail.Encryptor { return a.encryptor }

// RecordOptions selects what a recording is saved as.
type RecordOptions struct {
	// Name of the new trail. Ignored when ContinueID is set.
	Name string

	// ContinueID appends the recording to an existing trail.
	ContinueID string

	// Confirm approves each stop request. Nil stops without asking.
	Confirm trail.Confirmer
}

// Record captures a path until stop receives a value or the location stream
// fails, then saves it. A declined confirmation keeps recording and waits
// for the next stop request. If the save fails the captured path is written
// to a recovery file and the returned error names it.
func (a *TrailApp) Record(ctx context.Context, opts RecordOptions, stop <-chan struct{}) (*trail.Record, error) {
	rec, err := a.record(ctx, opts, stop)
	return rec, a.op.Track(err)
}

func (a *TrailApp) record(ctx context.Context, opts RecordOptions, stop <-chan struct{}) (*trail.Record, error) {
	s := a.session
	if opts.ContinueID != "" {
		if err := s.ContinueTrail(ctx, opts.ContinueID); err != nil {
			return nil, err
		}
	} else if err := trail.ValidateName(opts.Name); err != nil {
		return nil, err
	}

	if err := s.StartRecording(ctx); err != nil {
		return nil, err
	}

	for {
		confirm := opts.Confirm
		select {
		case <-ctx.Done():
			s.AbortRecording()
			return nil, ctx.Err()
		case err := <-s.Recorder().Failures():
			a.logger.Warn("location stream failed, saving what was captured", "error", err)
			confirm = nil
		case <-stop:
		}

		rec, err := s.FinishRecording(ctx, opts.Name, confirm)
		if errors.Is(err, trail.ErrStopCancelled) {
			continue
		}
		var saveErr *trail.SaveError
		if errors.As(err, &saveErr) {
			file, werr := a.writeRecovery(opts, saveErr.Path)
			if werr != nil {
				a.logger.Error("writing recovery file failed", "error", werr)
				return nil, err
			}
			return nil, fmt.Errorf("%w (captured path kept in %s)", err, file)
		}
		return rec, err
	}
}

// List returns the trails whose name contains query, in the given order.
func (a *TrailApp) List(query string, order trail.SortOrder) ([]*trail.Record, error) {
	recs := a.session.Catalog().Search(query)
	sorted, err := trail.SortRecords(recs, order, a.locale)
	return sorted, a.op.Track(err)
}

// Show reads one trail from the store.
func (a *TrailApp) Show(ctx context.Context, id string) (*trail.Record, error) {
	rec, err := a.session.Repository().Get(ctx, id)
	if errors.Is(err, trail.ErrNotFound) {
		err = fmt.Errorf("showing %s: %w", id, trail.ErrTrailGone)
	}
	return rec, a.op.Track(err)
}

// Rename changes the name of a trail.
func (a *TrailApp) Rename(ctx context.Context, id, name string) error {
	return a.op.Track(a.session.Catalog().Rename(ctx, id, name))
}

// Delete removes a trail.
func (a *TrailApp) Delete(ctx context.Context, id string) error {
	return a.op.Track(a.session.Catalog().Remove(ctx, id))
}

// View draws a single trail and recenters on its start.
func (a *TrailApp) View(id string) error {
	return a.op.Track(a.session.ViewTrail(id))
}

// Combine toggles each trail into the combined view, in order.
func (a *TrailApp) Combine(ids []string) error {
	a.session.Selection().Clear()
	for _, id := range ids {
		if err := a.session.ToggleCombined(id); err != nil {
			return a.op.Track(err)
		}
	}
	return nil
}

// WriteGeoJSON writes what is currently drawn as a GeoJSON FeatureCollection.
func (a *TrailApp) WriteGeoJSON(w io.Writer) error {
	_, err := a.geojson.WriteTo(w)
	return a.op.Track(err)
}

// SetupKeys generates the key pair protecting exports.
func (a *TrailApp) SetupKeys(passphrase string) error {
	return a.op.Track(a.encryptor.Setup(passphrase))
}

// FollowRemote refreshes the catalog whenever another session publishes a
// change for this scope. It blocks until ctx is cancelled and returns
// immediately when events are disabled.
func (a *TrailApp) FollowRemote(ctx context.Context) error {
	if a.publisher == nil {
		return nil
	}
	return a.publisher.Follow(ctx, a.session.Scope(), a.session.Catalog())
}

// Close ends the session and closes all resources. The operation outcome
// is written to the log.
func (a *TrailApp) Close() error {
	var firstErr error

	if a.session != nil {
		a.session.Close()
	}
	if a.detach != nil {
		a.detach()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing redis: %w", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}
	if a.text != nil {
		if err := a.text.Err(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("writing map view: %w", err)
		}
	}

	if a.logger != nil {
		a.logger.Info("operation finished",
			"operation", a.op.Name,
			"status", a.op.Status,
			"elapsed", a.op.Elapsed(time.Now()).Round(time.Millisecond).String(),
		)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
