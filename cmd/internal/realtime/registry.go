package realtime

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry maps identities to their live connection handle and owns presence truth.
//
// Concurrency guarantees:
//   - Register/Deregister/Snapshot/Attach/Detach are serialized by one mutex.
//   - The presence set broadcast after a mutation is computed and enqueued inside that
//     mutation's critical section, so broadcasts never observe a later mutation.
//   - Pushes never block (see Client.Push), so a slow connection cannot stall the registry.
type Registry struct {
	log      *slog.Logger
	presence *PresenceBroadcaster
	metrics  *Metrics

	mu sync.Mutex
	// entries holds at most one handle per identity.
	entries map[string]*Client
	// conns holds every live connection, including unidentified and superseded ones.
	conns map[*Client]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger, metrics *Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log,
		presence: NewPresenceBroadcaster(log, metrics),
		metrics:  metrics,
		entries:  make(map[string]*Client),
		conns:    make(map[*Client]struct{}),
	}
}

// Register inserts or overwrites the entry for identity and broadcasts presence.
// Re-registering an identity adopts the newest handle; the previous handle stays
// connected but no longer receives fanout.
func (r *Registry) Register(identity string, c *Client) {
	if c == nil {
		return
	}
	if identity == "" {
		r.Attach(c)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c] = struct{}{}
	prev := r.entries[identity]
	r.entries[identity] = c

	if prev != nil && prev != c {
		r.log.Info("registry.superseded", "user_id", identity, "session_id", c.SessionID, "stale_session_id", prev.SessionID)
	} else {
		r.log.Info("registry.register", "user_id", identity, "session_id", c.SessionID)
	}
	r.broadcastLocked()
}

// Deregister is called when c closes. It removes the entry for identity only if the
// stored handle is still c, so a late close of a superseded connection cannot clobber a
// newer registration. It reports whether the entry was removed.
func (r *Registry) Deregister(identity string, c *Client) bool {
	if c == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c)

	cur, ok := r.entries[identity]
	if !ok || cur != c {
		r.metrics.setConnections(len(r.conns))
		r.log.Debug("registry.deregister.stale", "user_id", identity, "session_id", c.SessionID)
		return false
	}

	delete(r.entries, identity)
	r.log.Info("registry.deregister", "user_id", identity, "session_id", c.SessionID)
	r.broadcastLocked()
	return true
}

// Lookup returns the live handle for identity.
func (r *Registry) Lookup(identity string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.entries[identity]
	return c, ok
}

// Snapshot returns the current presence set, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Attach tracks a live connection that has no registry entry. It receives presence
// broadcasts but is invisible to fanout. The current presence set is sent to c alone.
func (r *Registry) Attach(c *Client) {
	if c == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c] = struct{}{}
	r.metrics.setConnections(len(r.conns))
	r.presence.SendPresence(r.snapshotLocked(), c)
	r.log.Info("registry.attach", "session_id", c.SessionID)
}

// Detach forgets an unidentified connection. It never triggers a broadcast.
func (r *Registry) Detach(c *Client) {
	if c == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c)
	r.metrics.setConnections(len(r.conns))
	r.log.Info("registry.detach", "session_id", c.SessionID)
}

func (r *Registry) snapshotLocked() []string {
	ids := lo.Keys(r.entries)
	slices.Sort(ids)
	return ids
}

func (r *Registry) broadcastLocked() {
	r.metrics.setOnline(len(r.entries))
	r.metrics.setConnections(len(r.conns))
	r.presence.BroadcastPresence(r.snapshotLocked(), maps.Keys(r.conns))
}
