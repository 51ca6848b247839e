package trail

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortOrder selects how a catalog view is ordered.
type SortOrder string

const (
	SortNameAsc     SortOrder = "name-asc"
	SortNameDesc    SortOrder = "name-desc"
	SortNewestFirst SortOrder = "newest-first"
	SortOldestFirst SortOrder = "oldest-first"
)

// ParseSortOrder validates s as a SortOrder.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case SortNameAsc, SortNameDesc, SortNewestFirst, SortOldestFirst:
		return o, nil
	default:
		return "", &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown order %q", s)}
	}
}

// ChangeReason says what caused a ListChanged event.
type ChangeReason string

const (
	ChangeRefreshed ChangeReason = "refreshed"
	ChangeCreated   ChangeReason = "created"
	ChangeUpdated   ChangeReason = "updated"
	ChangeRenamed   ChangeReason = "renamed"
	ChangeRemoved   ChangeReason = "removed"
)

// ListChanged is published after every snapshot replacement.
type ListChanged struct {
	Scope   string
	Reason  ChangeReason
	TrailID string
	Records []*Record
}

// SearchRecords returns the records whose name contains query, ignoring
// case. Whitespace in query is significant. An empty query returns all
// records. The input is not modified.
func SearchRecords(recs []*Record, query string) []*Record {
	q := strings.ToLower(query)
	out := make([]*Record, 0, len(recs))
	for _, r := range recs {
		if q == "" || strings.Contains(strings.ToLower(r.Name), q) {
			out = append(out, r)
		}
	}
	return out
}

// SortRecords returns a sorted copy of recs. Names are compared with the
// collation rules of locale; ties fall back to timestamp and then ID so
// that the ordering is total and name-desc is the exact reverse of
// name-asc.
func SortRecords(recs []*Record, order SortOrder, locale language.Tag) ([]*Record, error) {
	if _, err := ParseSortOrder(string(order)); err != nil {
		return nil, err
	}
	out := make([]*Record, len(recs))
	copy(out, recs)

	col := collate.New(locale, collate.IgnoreCase)
	byName := func(a, b *Record) int {
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return byTime(a, b)
	}

	var less func(a, b *Record) bool
	switch order {
	case SortNameAsc:
		less = func(a, b *Record) bool { return byName(a, b) < 0 }
	case SortNameDesc:
		less = func(a, b *Record) bool { return byName(a, b) > 0 }
	case SortOldestFirst:
		less = func(a, b *Record) bool { return byTime(a, b) < 0 }
	case SortNewestFirst:
		less = func(a, b *Record) bool { return byTime(a, b) > 0 }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func byTime(a, b *Record) int {
	switch {
	case a.Timestamp.Before(b.Timestamp):
		return -1
	case a.Timestamp.After(b.Timestamp):
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

// Catalog holds the latest snapshot of a scope's trails and publishes a
// ListChanged event whenever it is replaced.
type Catalog struct {
	repo   *Repository
	locale language.Tag
	logger Logger

	mu       sync.RWMutex
	snapshot []*Record

	subMu   sync.Mutex
	subs    map[int]func(ListChanged)
	nextSub int
}

// NewCatalog creates an empty catalog over repo. Call Refresh to load it.
func NewCatalog(repo *Repository, locale language.Tag, logger Logger) *Catalog {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Catalog{
		repo:     repo,
		locale:   locale,
		logger:   logger,
		snapshot: []*Record{},
		subs:     make(map[int]func(ListChanged)),
	}
}

// Subscribe registers fn for ListChanged events and returns a function that
// removes it. fn is called synchronously after the snapshot is replaced.
func (c *Catalog) Subscribe(fn func(ListChanged)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// Refresh replaces the snapshot with the repository's current list.
func (c *Catalog) Refresh(ctx context.Context) error {
	return c.refresh(ctx, ChangeRefreshed, "")
}

// Reconcile refreshes the snapshot after a write. It runs even if ctx has
// been cancelled, since the write may already have landed.
func (c *Catalog) Reconcile(ctx context.Context, reason ChangeReason, id string) error {
	return c.refresh(context.WithoutCancel(ctx), reason, id)
}

func (c *Catalog) refresh(ctx context.Context, reason ChangeReason, id string) error {
	recs, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("refreshing catalog: %w", err)
	}
	c.mu.Lock()
	c.snapshot = recs
	c.mu.Unlock()
	c.logger.Debug("catalog refreshed", "scope", c.repo.Scope(), "reason", string(reason), "count", len(recs))

	c.publish(ListChanged{Scope: c.repo.Scope(), Reason: reason, TrailID: id, Records: c.Snapshot()})
	return nil
}

func (c *Catalog) publish(ev ListChanged) {
	c.subMu.Lock()
	fns := make([]func(ListChanged), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Snapshot returns the records of the current snapshot in list order.
// The slice is a copy; the records must be treated as read-only.
func (c *Catalog) Snapshot() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Record, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

// Get returns the snapshot record with the given ID.
func (c *Catalog) Get(id string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.snapshot {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Search returns a filtered view of the snapshot.
func (c *Catalog) Search(query string) []*Record {
	return SearchRecords(c.Snapshot(), query)
}

// Sort returns a sorted view of the snapshot.
func (c *Catalog) Sort(order SortOrder) ([]*Record, error) {
	return SortRecords(c.Snapshot(), order, c.locale)
}

// Rename changes a trail's name. Blank names and, under the unique-name
// policy, names used by another trail in the snapshot are rejected with a
// ValidationError before the repository is called.
func (c *Catalog) Rename(ctx context.Context, id, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if c.repo.UniqueNames() {
		for _, r := range c.Snapshot() {
			if r.ID != id && SameName(r.Name, name) {
				return &ValidationError{Field: "name", Reason: fmt.Sprintf("%q is already used by another trail", strings.TrimSpace(name))}
			}
		}
	}

	if err := c.repo.Update(ctx, id, Patch{Name: &name}); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.reconcileQuietly(ctx, ChangeRemoved, id)
			return fmt.Errorf("renaming %s: %w", id, ErrTrailGone)
		}
		return err
	}
	c.logger.Info("trail renamed", "id", id, "name", strings.TrimSpace(name))
	return c.Reconcile(ctx, ChangeRenamed, id)
}

// Remove deletes a trail. A trail that is already gone from the store
// yields ErrTrailGone and the snapshot is refreshed to drop it.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.reconcileQuietly(ctx, ChangeRemoved, id)
			return fmt.Errorf("removing %s: %w", id, ErrTrailGone)
		}
		return err
	}
	return c.Reconcile(ctx, ChangeRemoved, id)
}

func (c *Catalog) reconcileQuietly(ctx context.Context, reason ChangeReason, id string) {
	if err := c.Reconcile(ctx, reason, id); err != nil {
		c.logger.Warn("catalog refresh failed", "error", err)
	}
}
