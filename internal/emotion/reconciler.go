package emotion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"go.uber.org/multierr"
)

// ErrNotFound is returned when editing an id that is not in the working set.
var ErrNotFound = errors.New("emotion preset not found")

// Store is the remote emotion library.
type Store interface {
	// List returns the raw listing, in whatever shape the store produces.
	List(ctx context.Context) (map[string]any, error)
	Create(ctx context.Context, rec Record) (string, error)
	Update(ctx context.Context, id string, rec Record) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Import(ctx context.Context, filename string, r io.Reader) error
	Export(ctx context.Context) ([]byte, error)
}

// EntryFailure is one failed remote operation during reconciliation.
type EntryFailure struct {
	ID   ID
	Name string
	Op   string // create, update, delete
	Err  error
}

// PartialFailure reports the entries whose remote call failed. Entries not
// listed succeeded and keep their new state.
type PartialFailure struct {
	Failures []EntryFailure
	err      error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("emotion library: %d operation(s) failed: %v", len(e.Failures), e.err)
}

// Unwrap exposes every underlying error to errors.Is and errors.As.
func (e *PartialFailure) Unwrap() []error { return multierr.Errors(e.err) }

func (e *PartialFailure) add(f EntryFailure) {
	e.Failures = append(e.Failures, f)
	e.err = multierr.Append(e.err, fmt.Errorf("%s %q: %w", f.Op, f.Name, f.Err))
}

func (e *PartialFailure) orNil() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e
}

// Reconciler owns the working set of presets. All methods are safe for
// concurrent use; remote calls never run while the working set is locked,
// so edits made during a save are kept.
type Reconciler struct {
	store Store

	mu      sync.Mutex
	working map[ID]Preset
	order   []ID
}

// NewReconciler returns a reconciler with an empty working set.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, working: make(map[ID]Preset)}
}

// Load replaces the working set with the normalized remote listing and
// returns it keyed by server id. Pending entries are discarded.
func (r *Reconciler) Load(ctx context.Context) (map[string]Preset, error) {
	raw, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing emotions: %w", err)
	}
	loaded := Normalize(raw)

	presets := make([]Preset, 0, len(loaded))
	for _, p := range loaded {
		presets = append(presets, p)
	}
	sortPresets(presets)

	r.mu.Lock()
	r.working = make(map[ID]Preset, len(presets))
	r.order = r.order[:0]
	for _, p := range presets {
		r.working[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	r.mu.Unlock()

	slog.Debug("emotion library loaded", "count", len(loaded))
	return loaded, nil
}

// Presets returns the working set in display order.
func (r *Reconciler) Presets() []Preset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Preset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.working[id])
	}
	return out
}

// Library returns a name index over the current working set.
func (r *Reconciler) Library() Library { return NewLibrary(r.Presets()) }

// Add inserts p under a new pending id and returns that id.
func (r *Reconciler) Add(p Preset) ID {
	p.ID = NewPendingID()
	r.mu.Lock()
	r.working[p.ID] = p
	r.order = append(r.order, p.ID)
	r.mu.Unlock()
	return p.ID
}

// Edit applies fn to the entry with the given id. The id itself cannot change.
func (r *Reconciler) Edit(id ID, fn func(p *Preset)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.working[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	fn(&p)
	p.ID = id
	r.working[id] = p
	return nil
}

// Save pushes the working set to the store. Pending entries are created
// first and re-keyed under their server id; every entry that was persisted
// before the save is then updated. Each call is attempted independently and
// failures come back together as a *PartialFailure. Failed creates stay
// pending so the next save retries them.
func (r *Reconciler) Save(ctx context.Context) error {
	snapshot := r.Presets()
	var pf PartialFailure

	created := make(map[ID]string)
	for _, p := range snapshot {
		if !p.ID.IsPending() {
			continue
		}
		sid, err := r.store.Create(ctx, p.Record())
		if err == nil && sid == "" {
			err = errors.New("store returned an empty id")
		}
		if err != nil {
			slog.Error("emotion create failed", "name", p.Name, "error", err)
			pf.add(EntryFailure{ID: p.ID, Name: p.Name, Op: "create", Err: err})
			continue
		}
		created[p.ID] = sid
	}

	orphans := r.remap(created)

	for _, p := range snapshot {
		sid, ok := p.ID.ServerID()
		if !ok {
			continue
		}
		if err := r.store.Update(ctx, sid, p.Record()); err != nil {
			slog.Warn("emotion update failed", "id", sid, "error", err)
			pf.add(EntryFailure{ID: p.ID, Name: p.Name, Op: "update", Err: err})
		}
	}

	// Entries deleted locally while their create was in flight.
	for _, sid := range orphans {
		if err := r.store.Delete(ctx, sid); err != nil {
			slog.Warn("emotion orphan delete failed", "id", sid, "error", err)
			pf.add(EntryFailure{ID: PersistedID(sid), Name: sid, Op: "delete", Err: err})
		}
	}

	slog.Info("emotion library saved", "created", len(created), "failures", len(pf.Failures))
	return pf.orNil()
}

// remap re-keys created pending entries under their server ids, keeping the
// latest local values and display position. It returns server ids whose
// pending entry no longer exists locally.
func (r *Reconciler) remap(created map[ID]string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orphans []string
	for pending, sid := range created {
		p, ok := r.working[pending]
		if !ok {
			orphans = append(orphans, sid)
			continue
		}
		delete(r.working, pending)
		p.ID = PersistedID(sid)
		r.working[p.ID] = p
		if i := slices.Index(r.order, pending); i >= 0 {
			r.order[i] = p.ID
		}
	}
	return orphans
}

// Delete removes an entry. Pending entries are removed locally without a
// remote call. Persisted entries are deleted remotely and removed locally
// whatever the remote outcome; a remote failure is returned as a
// *PartialFailure after the local removal.
func (r *Reconciler) Delete(ctx context.Context, id ID) error {
	r.mu.Lock()
	p, ok := r.working[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	var pf PartialFailure
	if sid, persisted := id.ServerID(); persisted {
		if err := r.store.Delete(ctx, sid); err != nil {
			slog.Warn("emotion remote delete failed, removing locally", "id", sid, "error", err)
			pf.add(EntryFailure{ID: id, Name: p.Name, Op: "delete", Err: err})
		}
	}

	r.mu.Lock()
	r.drop(id)
	r.mu.Unlock()
	return pf.orNil()
}

// DeleteAll clears the remote library and the working set. The working set
// is cleared even when the remote call fails.
func (r *Reconciler) DeleteAll(ctx context.Context) error {
	err := r.store.DeleteAll(ctx)
	r.mu.Lock()
	r.working = make(map[ID]Preset)
	r.order = nil
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("deleting all emotions: %w", err)
	}
	return nil
}

// Import sends a library file to the store's bulk import and then replaces
// the working set with the reloaded listing. On failure the working set is
// left untouched.
func (r *Reconciler) Import(ctx context.Context, filename string, src io.Reader) (map[string]Preset, error) {
	if err := r.store.Import(ctx, filename, src); err != nil {
		return nil, fmt.Errorf("importing emotions: %w", err)
	}
	return r.Load(ctx)
}

// Export returns the store's export file unchanged.
func (r *Reconciler) Export(ctx context.Context) ([]byte, error) {
	b, err := r.store.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting emotions: %w", err)
	}
	return b, nil
}

func (r *Reconciler) drop(id ID) {
	delete(r.working, id)
	r.order = slices.DeleteFunc(r.order, func(x ID) bool { return x == id })
}
