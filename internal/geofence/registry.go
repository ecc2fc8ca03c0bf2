package geofence

// Registry owns geofence definitions, their presence state and the settings.
// Not safe for concurrent use; the coordinator is its only caller.
type Registry struct {
	fences   map[string]Geofence
	order    []string // insertion order, used for stable listing
	states   map[string]*Status
	settings Settings
}

// NewRegistry creates an empty registry with the given settings.
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		fences:   make(map[string]Geofence),
		states:   make(map[string]*Status),
		settings: settings,
	}
}

// Put inserts or replaces a geofence. Existing state is kept on replace.
func (r *Registry) Put(g Geofence) {
	if _, ok := r.fences[g.ID]; !ok {
		r.order = append(r.order, g.ID)
	}
	r.fences[g.ID] = g
}

// Get returns the geofence with the given id.
func (r *Registry) Get(id string) (Geofence, bool) {
	g, ok := r.fences[id]
	return g, ok
}

// Delete removes a geofence and its state. Returns false if it did not exist.
func (r *Registry) Delete(id string) bool {
	if _, ok := r.fences[id]; !ok {
		return false
	}
	delete(r.fences, id)
	delete(r.states, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all geofences in insertion order.
func (r *Registry) List() []Geofence {
	out := make([]Geofence, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.fences[id])
	}
	return out
}

// Len returns the number of geofences.
func (r *Registry) Len() int {
	return len(r.fences)
}

// Status returns the mutable state for a known geofence, creating it as
// unknown on first reference. Returns nil for unknown ids.
func (r *Registry) Status(id string) *Status {
	if _, ok := r.fences[id]; !ok {
		return nil
	}
	st, ok := r.states[id]
	if !ok {
		st = &Status{State: StateUnknown}
		r.states[id] = st
	}
	return st
}

// StatusOf returns a copy of the state for id, or an unknown state if none exists.
func (r *Registry) StatusOf(id string) Status {
	if st, ok := r.states[id]; ok {
		return *st
	}
	return Status{State: StateUnknown}
}

// Settings returns the current settings.
func (r *Registry) Settings() Settings {
	return r.settings
}

// SetSettings replaces the settings.
func (r *Registry) SetSettings(s Settings) {
	r.settings = s
}

// Snapshot returns a deep copy suitable for persistence.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{
		Geofences: r.List(),
		States:    make(map[string]Status, len(r.states)),
		Settings:  r.settings,
	}
	for id, st := range r.states {
		snap.States[id] = *st
	}
	return snap
}

// Restore replaces the registry contents with snap. States for geofences
// that no longer exist are dropped; invalid state values reset to unknown.
func (r *Registry) Restore(snap Snapshot) {
	r.fences = make(map[string]Geofence, len(snap.Geofences))
	r.order = r.order[:0]
	r.states = make(map[string]*Status, len(snap.States))
	for _, g := range snap.Geofences {
		if g.ID == "" {
			continue
		}
		r.Put(g)
	}

	for id, st := range snap.States {
		st := st // per-iteration copy; &st is stored below (go1.21 loop semantics)
		if _, ok := r.fences[id]; !ok {
			continue
		}
		if !st.State.Valid() {
			st.State = StateUnknown
		}
		r.states[id] = &st
	}
	r.settings = snap.Settings
}
