package consultation

import "sync"

// Registry exposes in-flight consultations to out-of-band decision sources
// such as the decision webhook.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (registry *Registry) add(session *Session) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.sessions[session.ID] = session
}

func (registry *Registry) remove(id string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	delete(registry.sessions, id)
}

func (registry *Registry) Lookup(id string) (*Session, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	session, ok := registry.sessions[id]

	return session, ok
}

// Decide routes a decision to the consultation with the given id.
func (registry *Registry) Decide(id string, decision Decision, message string) error {
	session, ok := registry.Lookup(id)
	if !ok {
		return ErrConsultationNotFound
	}

	return session.Decide(decision, message)
}

func (registry *Registry) Len() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return len(registry.sessions)
}
