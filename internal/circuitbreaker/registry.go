package circuitbreaker

// Registry holds one breaker per backend. The set is fixed at startup.
type Registry struct {
	breakers map[string]*Breaker
}

// NewRegistry creates one breaker per backend name with a shared
// configuration.
func NewRegistry(names []string, config Config, opts ...Option) *Registry {
	breakers := make(map[string]*Breaker, len(names))
	for _, name := range names {
		breakers[name] = New(name, config, opts...)
	}
	return &Registry{breakers: breakers}
}

// Get returns the breaker for a backend, or nil if unknown.
func (r *Registry) Get(name string) *Breaker {
	return r.breakers[name]
}

// Count returns the number of breakers.
func (r *Registry) Count() int {
	return len(r.breakers)
}
