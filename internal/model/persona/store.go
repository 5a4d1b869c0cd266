package persona

// Store exposes the chat identities to the controller and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id int64) (Persona, bool)
	User() Persona
	Assistant() Persona
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the predefined persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id int64) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// User returns the first persona playing the user role.
func (s *MemoryStore) User() Persona {
	return s.byRole(RoleUser)
}

// Assistant returns the first persona playing the assistant role.
func (s *MemoryStore) Assistant() Persona {
	return s.byRole(RoleAssistant)
}

func (s *MemoryStore) byRole(role Role) Persona {
	for _, item := range s.items {
		if item.Role == role {
			return item
		}
	}
	return Persona{Role: role}
}
