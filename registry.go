package rtmp

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry tracks which app/name stream keys are live so a second
// publisher cannot hijack a running stream. A Server shares one instance
// across its sessions: they register on publish and release the key on
// unpublish or teardown.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]string // stream key → publishing session id
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]string)}
}

func streamKey(app, name string) string {
	return app + "/" + name
}

// Register claims the app/name key for sessionID. It fails when another
// session is currently publishing the same key.
func (r *Registry) Register(app, name, sessionID string) error {
	key := streamKey(app, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.streams[key]; ok && owner != sessionID {
		return errors.Errorf("stream %q is already being published", key)
	}
	r.streams[key] = sessionID
	return nil
}

// Unregister releases the key, but only when sessionID still owns it; a
// session racing its own teardown cannot evict a successor.
func (r *Registry) Unregister(app, name, sessionID string) {
	key := streamKey(app, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streams[key] == sessionID {
		delete(r.streams, key)
	}
}

// Publisher reports which session id holds the app/name key, if any.
func (r *Registry) Publisher(app, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.streams[streamKey(app, name)]
	return id, ok
}

// Len returns the number of live streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
