package state

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/varstate/variables"
)

// Metadata keys stamped on variables during state import so consumers can
// trace migration provenance.
const (
	MetadataMigratedFrom = "migrated_from"
	MetadataMigratedAt   = "migrated_at"
)

// OpStats accumulates backend-local counters for one operation. Stats do not
// survive migration; they describe a single backend instance.
type OpStats struct {
	Count  int64
	Total  time.Duration
	Failed int64
}

// LocalState is the in-process backend: a mutex-guarded single-writer store
// with no network and no serialization. Each operation runs to completion
// under the lock, which gives per-operation atomicity and linearizability
// within a session, but no cross-operation transactions.
type LocalState struct {
	mu        sync.Mutex
	sessionID string
	registry  *variables.Registry
	vars      map[string]*variables.Variable
	index     map[string]string
	order     []string
	metadata  map[string]string
	stats     map[string]*OpStats
	watches   map[string]localWatch
	closed    bool
}

type localWatch struct {
	ids map[string]struct{} // empty means all variables
	fn  func(WatchEvent)
}

// LocalOption configures a LocalState at construction.
type LocalOption func(*LocalState)

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) LocalOption {
	return func(s *LocalState) { s.sessionID = id }
}

// WithSessionMetadata seeds the session-level metadata map.
func WithSessionMetadata(metadata map[string]string) LocalOption {
	return func(s *LocalState) { s.metadata = maps.Clone(metadata) }
}

// NewLocalState creates a LocalState with a fresh session. When existing is
// non-nil its snapshot is imported before the provider is returned; a failed
// import fails construction entirely.
func NewLocalState(registry *variables.Registry, existing *Snapshot, opts ...LocalOption) (*LocalState, error) {
	if registry == nil {
		registry = variables.NewRegistry()
	}

	s := &LocalState{
		sessionID: uuid.Must(uuid.NewV7()).String(),
		registry:  registry,
		vars:      make(map[string]*variables.Variable),
		index:     make(map[string]string),
		metadata:  make(map[string]string),
		stats:     make(map[string]*OpStats),
		watches:   make(map[string]localWatch),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metadata == nil {
		s.metadata = make(map[string]string)
	}

	if existing != nil {
		if err := s.ImportState(context.Background(), existing); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *LocalState) SessionID() string {
	return s.sessionID
}

func (s *LocalState) RegisterVariable(ctx context.Context, name string, t variables.Type, initial any, opts RegisterOptions) (string, error) {
	start := time.Now()
	s.mu.Lock()

	id, err := s.registerLocked(name, t, initial, opts)
	s.recordLocked("register_variable", start, err)
	s.mu.Unlock()
	return id, err
}

func (s *LocalState) registerLocked(name string, t variables.Type, initial any, opts RegisterOptions) (string, error) {
	if s.closed {
		return "", ErrSessionExpired
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty variable name", variables.ErrValidation)
	}
	if _, taken := s.index[name]; taken {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	value, err := s.registry.Validate(t, initial)
	if err != nil {
		return "", err
	}
	if err := s.registry.ValidateConstraints(t, value, opts.Constraints); err != nil {
		return "", err
	}

	now := time.Now()
	v := &variables.Variable{
		ID:            variables.NewID(name),
		Name:          name,
		Type:          t,
		Value:         value,
		Constraints:   maps.Clone(opts.Constraints),
		Metadata:      maps.Clone(opts.Metadata),
		Version:       0,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	s.vars[v.ID] = v
	s.index[name] = v.ID
	s.order = append(s.order, v.ID)
	return v.ID, nil
}

func (s *LocalState) GetVariable(ctx context.Context, identifier string) (*variables.Variable, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.resolveLocked(identifier)
	s.recordLocked("get_variable", start, err)
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

func (s *LocalState) SetVariable(ctx context.Context, identifier string, value any, metadata map[string]string) error {
	start := time.Now()
	s.mu.Lock()

	event, err := s.setLocked(identifier, value, metadata)
	s.recordLocked("set_variable", start, err)
	watchers := s.watchersForLocked(event)
	s.mu.Unlock()

	notify(watchers, event)
	return err
}

// setLocked applies one validated update and returns the watch event to fire
// after the lock is released.
func (s *LocalState) setLocked(identifier string, value any, metadata map[string]string) (WatchEvent, error) {
	if s.closed {
		return WatchEvent{}, ErrSessionExpired
	}
	v, err := s.resolveLocked(identifier)
	if err != nil {
		return WatchEvent{}, err
	}

	validated, err := s.registry.Validate(v.Type, value)
	if err != nil {
		return WatchEvent{}, err
	}
	if err := s.registry.ValidateConstraints(v.Type, validated, v.Constraints); err != nil {
		return WatchEvent{}, err
	}

	old := v.Value
	v.Value = validated
	v.Version++
	v.LastUpdatedAt = time.Now()
	v.MergeMetadata(metadata)

	return WatchEvent{
		ID:       v.ID,
		Name:     v.Name,
		Old:      old,
		New:      validated,
		Metadata: maps.Clone(metadata),
	}, nil
}

func (s *LocalState) DeleteVariable(ctx context.Context, identifier string) error {
	start := time.Now()
	s.mu.Lock()

	var event WatchEvent
	v, err := s.resolveLocked(identifier)
	if err == nil {
		delete(s.vars, v.ID)
		delete(s.index, v.Name)
		if i := slices.Index(s.order, v.ID); i >= 0 {
			s.order = slices.Delete(s.order, i, i+1)
		}
		event = WatchEvent{ID: v.ID, Name: v.Name, Old: v.Value, Deleted: true}
	}
	s.recordLocked("delete_variable", start, err)
	watchers := s.watchersForLocked(event)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	notify(watchers, event)
	return nil
}

func (s *LocalState) ListVariables(ctx context.Context) ([]*variables.Variable, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.recordLocked("list_variables", start, ErrSessionExpired)
		return nil, ErrSessionExpired
	}

	listed := make([]*variables.Variable, 0, len(s.order))
	for _, id := range s.order {
		listed = append(listed, s.vars[id].Clone())
	}
	s.recordLocked("list_variables", start, nil)
	return listed, nil
}

func (s *LocalState) GetVariables(ctx context.Context, identifiers []string) (map[string]*variables.Variable, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.recordLocked("get_variables", start, ErrSessionExpired)
		return nil, ErrSessionExpired
	}

	found := make(map[string]*variables.Variable, len(identifiers))
	for _, identifier := range identifiers {
		v, err := s.resolveLocked(identifier)
		if err != nil {
			continue // partial result, not an error
		}
		found[identifier] = v.Clone()
	}
	s.recordLocked("get_variables", start, nil)
	return found, nil
}

func (s *LocalState) UpdateVariables(ctx context.Context, updates map[string]any, metadata map[string]string) error {
	start := time.Now()
	s.mu.Lock()

	// Deterministic application order; each update commits or fails alone.
	identifiers := make([]string, 0, len(updates))
	for identifier := range updates {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	var events []WatchEvent
	failures := make(map[string]error)
	for _, identifier := range identifiers {
		event, err := s.setLocked(identifier, updates[identifier], metadata)
		if err != nil {
			failures[identifier] = err
			continue
		}
		events = append(events, event)
	}

	var err error
	if len(failures) > 0 {
		err = &PartialFailureError{Errors: failures}
	}
	s.recordLocked("update_variables", start, err)

	type pending struct {
		watchers []func(WatchEvent)
		event    WatchEvent
	}
	pendings := make([]pending, 0, len(events))
	for _, event := range events {
		pendings = append(pendings, pending{s.watchersForLocked(event), event})
	}
	s.mu.Unlock()

	for _, p := range pendings {
		notify(p.watchers, p.event)
	}
	return err
}

func (s *LocalState) ExportState(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.recordLocked("export_state", start, ErrSessionExpired)
		return nil, ErrSessionExpired
	}

	snap := &Snapshot{
		SessionID: s.sessionID,
		Variables: make(map[string]*variables.Variable, len(s.vars)),
		Index:     maps.Clone(s.index),
		Metadata:  maps.Clone(s.metadata),
	}
	for id, v := range s.vars {
		snap.Variables[id] = v.Clone()
	}
	s.recordLocked("export_state", start, nil)
	return snap, nil
}

func (s *LocalState) ImportState(ctx context.Context, snap *Snapshot) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.importLocked(snap)
	s.recordLocked("import_state", start, err)
	return err
}

func (s *LocalState) importLocked(snap *Snapshot) error {
	if s.closed {
		return ErrSessionExpired
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	migratedAt := time.Now().UTC().Format(time.RFC3339Nano)

	// Creation order is reconstructed from timestamps so ListVariables keeps
	// its ordering across backends.
	imported := make([]*variables.Variable, 0, len(snap.Variables))
	for _, v := range snap.Variables {
		imported = append(imported, v)
	}
	sort.Slice(imported, func(i, j int) bool {
		if imported[i].CreatedAt.Equal(imported[j].CreatedAt) {
			return imported[i].Name < imported[j].Name
		}
		return imported[i].CreatedAt.Before(imported[j].CreatedAt)
	})

	failed := make(map[string]error)
	for _, v := range imported {
		// Re-validate through the normal registration path; import never
		// bypasses type or constraint checks.
		value, err := s.registry.Validate(v.Type, v.Value)
		if err != nil {
			failed[v.Name] = err
			continue
		}
		if err := s.registry.ValidateConstraints(v.Type, value, v.Constraints); err != nil {
			failed[v.Name] = err
			continue
		}
		if _, taken := s.index[v.Name]; taken {
			failed[v.Name] = fmt.Errorf("%w: %s", ErrAlreadyExists, v.Name)
			continue
		}

		copied := v.Clone()
		copied.Value = value
		copied.MergeMetadata(map[string]string{
			MetadataMigratedFrom: snap.SessionID,
			MetadataMigratedAt:   migratedAt,
		})

		s.vars[copied.ID] = copied
		s.index[copied.Name] = copied.ID
		s.order = append(s.order, copied.ID)
	}

	maps.Copy(s.metadata, snap.Metadata)

	if len(failed) > 0 {
		return &ImportError{Failed: failed}
	}
	return nil
}

func (s *LocalState) Capabilities() Capabilities {
	return Capabilities{}
}

func (s *LocalState) RequiresBridge() bool {
	return false
}

func (s *LocalState) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.vars = nil
	s.index = nil
	s.order = nil
	s.watches = nil
	return nil
}

// Stats returns a copy of the backend-local operation counters.
func (s *LocalState) Stats() map[string]OpStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]OpStats, len(s.stats))
	for op, st := range s.stats {
		out[op] = *st
	}
	return out
}

// WatchVariables implements the optional Watcher extension.
func (s *LocalState) WatchVariables(identifiers []string, fn func(WatchEvent)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionExpired
	}

	w := localWatch{fn: fn, ids: make(map[string]struct{}, len(identifiers))}
	for _, identifier := range identifiers {
		v, err := s.resolveLocked(identifier)
		if err != nil {
			return "", err
		}
		w.ids[v.ID] = struct{}{}
	}

	handle := uuid.Must(uuid.NewV7()).String()
	s.watches[handle] = w
	return handle, nil
}

// UnwatchVariables removes a watch registered by WatchVariables.
func (s *LocalState) UnwatchVariables(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.watches, handle)
	return nil
}

func (s *LocalState) resolveLocked(identifier string) (*variables.Variable, error) {
	if s.closed {
		return nil, ErrSessionExpired
	}
	if v, ok := s.vars[identifier]; ok {
		return v, nil
	}
	if id, ok := s.index[identifier]; ok {
		return s.vars[id], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, identifier)
}

func (s *LocalState) recordLocked(op string, start time.Time, err error) {
	st, ok := s.stats[op]
	if !ok {
		st = &OpStats{}
		s.stats[op] = st
	}
	st.Count++
	st.Total += time.Since(start)
	if err != nil {
		st.Failed++
	}
}

// watchersForLocked snapshots the callbacks interested in event so they can
// be invoked after the state lock is released.
func (s *LocalState) watchersForLocked(event WatchEvent) []func(WatchEvent) {
	if event.ID == "" || len(s.watches) == 0 {
		return nil
	}
	var fns []func(WatchEvent)
	for _, w := range s.watches {
		if len(w.ids) > 0 {
			if _, ok := w.ids[event.ID]; !ok {
				continue
			}
		}
		fns = append(fns, w.fn)
	}
	return fns
}

func notify(fns []func(WatchEvent), event WatchEvent) {
	for _, fn := range fns {
		fn(event)
	}
}
