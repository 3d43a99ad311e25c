// Package container is an explicit lifetime registry. Every service is listed
// once in a table of Registration values with its lifetime; nothing is
// discovered by reflection or marker interfaces.
//
//	reg := container.NewRegistry().
//	    Singleton("db", newDB).
//	    Scoped("unit_of_work", newUnitOfWork).
//	    Transient("clock", newClock)
//
//	c, err := reg.Build()
//	scope := c.NewScope()
//	defer scope.Close()
//	uow, err := container.Resolve[*UnitOfWork](scope, "unit_of_work")
package container

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Lifetime controls how long a resolved instance is reused
type Lifetime int

const (
	// Singleton instances are created once per container
	Singleton Lifetime = iota + 1
	// Scoped instances are created once per scope (usually a request)
	Scoped
	// Transient instances are created on every resolve
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// Resolver resolves services by key
type Resolver interface {
	Resolve(key string) (any, error)
}

// Factory builds an instance, resolving its own dependencies through r
type Factory func(r Resolver) (any, error)

// Registration is one row of the lifetime table
type Registration struct {
	Key      string
	Lifetime Lifetime
	Factory  Factory
}

var (
	ErrNotRegistered   = goerrors.New("service not registered", goerrors.CategoryNotFound).WithTextCode("SERVICE_NOT_REGISTERED")
	ErrScopeRequired   = goerrors.New("scoped service resolved outside of a scope", goerrors.CategoryOperation).WithTextCode("SCOPE_REQUIRED")
	ErrCaptiveScoped   = goerrors.New("singleton depends on a scoped service", goerrors.CategoryOperation).WithTextCode("CAPTIVE_DEPENDENCY")
	ErrCircular        = goerrors.New("circular dependency", goerrors.CategoryOperation).WithTextCode("CIRCULAR_DEPENDENCY")
	ErrClosed          = goerrors.New("container is closed", goerrors.CategoryOperation).WithTextCode("CONTAINER_CLOSED")
	ErrInvalidRegistry = goerrors.New("invalid registration table", goerrors.CategoryValidation).WithTextCode("INVALID_REGISTRY")
)

// Registry collects registrations before Build
type Registry struct {
	registrations []Registration
}

// NewRegistry returns an empty registration table
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends registrations to the table
func (r *Registry) Add(regs ...Registration) *Registry {
	r.registrations = append(r.registrations, regs...)
	return r
}

// Singleton registers a per-container service
func (r *Registry) Singleton(key string, f Factory) *Registry {
	return r.Add(Registration{Key: key, Lifetime: Singleton, Factory: f})
}

// Scoped registers a per-scope service
func (r *Registry) Scoped(key string, f Factory) *Registry {
	return r.Add(Registration{Key: key, Lifetime: Scoped, Factory: f})
}

// Transient registers a service created on every resolve
func (r *Registry) Transient(key string, f Factory) *Registry {
	return r.Add(Registration{Key: key, Lifetime: Transient, Factory: f})
}

// Instance registers an already built singleton
func (r *Registry) Instance(key string, v any) *Registry {
	return r.Singleton(key, func(Resolver) (any, error) { return v, nil })
}

// Registrations returns a copy of the table
func (r *Registry) Registrations() []Registration {
	return slices.Clone(r.registrations)
}

// Build validates the table and returns an immutable container
func (r *Registry) Build() (*Container, error) {
	table := make(map[string]Registration, len(r.registrations))
	problems := map[string]any{}

	for i, reg := range r.registrations {
		switch {
		case reg.Key == "":
			problems[fmt.Sprintf("registration[%d]", i)] = "empty key"
		case reg.Factory == nil:
			problems[reg.Key] = "nil factory"
		case reg.Lifetime < Singleton || reg.Lifetime > Transient:
			problems[reg.Key] = "unknown lifetime " + reg.Lifetime.String()
		default:
			if _, dup := table[reg.Key]; dup {
				problems[reg.Key] = "duplicate key"
				continue
			}
			table[reg.Key] = reg
		}
	}

	if len(problems) > 0 {
		return nil, ErrInvalidRegistry.Clone().WithMetadata(problems)
	}

	return &Container{
		table:      table,
		singletons: make(map[string]*entry, len(table)),
	}, nil
}

type entry struct {
	once  sync.Once
	value any
	err   error
}

// Container resolves singletons and hands out scopes
type Container struct {
	table map[string]Registration

	mu         sync.Mutex
	singletons map[string]*entry
	disposers  []io.Closer
	closed     bool
}

var _ Resolver = (*Container)(nil)

// Lifetime returns the registered lifetime for key
func (c *Container) Lifetime(key string) (Lifetime, bool) {
	reg, ok := c.table[key]
	return reg.Lifetime, ok
}

// Keys lists the registered keys in sorted order
func (c *Container) Keys() []string {
	keys := make([]string, 0, len(c.table))
	for k := range c.table {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Resolve resolves a singleton or transient from the root. Scoped services
// need a Scope.
func (c *Container) Resolve(key string) (any, error) {
	return (&resolution{container: c}).Resolve(key)
}

// NewScope opens a scope for scoped services
func (c *Container) NewScope() *Scope {
	return &Scope{
		container: c,
		instances: make(map[string]*entry),
	}
}

// Close disposes singletons that implement io.Closer, last created first
func (c *Container) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()

	return dispose(disposers)
}

func (c *Container) singleton(reg Registration, res *resolution) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := c.singletons[reg.Key]
	if !ok {
		e = &entry{}
		c.singletons[reg.Key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = reg.Factory(res.child(reg.Key, true))
		if e.err == nil {
			c.track(e.value)
		}
	})
	return e.value, e.err
}

func (c *Container) track(v any) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	c.mu.Lock()
	c.disposers = append(c.disposers, closer)
	c.mu.Unlock()
}

// Scope caches scoped services for its lifetime
type Scope struct {
	container *Container

	mu        sync.Mutex
	instances map[string]*entry
	disposers []io.Closer
	closed    bool
}

var _ Resolver = (*Scope)(nil)

// Resolve resolves any registered service
func (s *Scope) Resolve(key string) (any, error) {
	return (&resolution{container: s.container, scope: s}).Resolve(key)
}

// Close disposes instances created by this scope, last created first
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	disposers := s.disposers
	s.disposers = nil
	s.mu.Unlock()

	return dispose(disposers)
}

func (s *Scope) scoped(reg Registration, res *resolution) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := s.instances[reg.Key]
	if !ok {
		e = &entry{}
		s.instances[reg.Key] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = reg.Factory(res.child(reg.Key, false))
		if e.err == nil {
			s.track(e.value)
		}
	})
	return e.value, e.err
}

func (s *Scope) track(v any) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	s.mu.Lock()
	s.disposers = append(s.disposers, closer)
	s.mu.Unlock()
}

// resolution carries the dependency chain of a single Resolve call
type resolution struct {
	container *Container
	scope     *Scope
	path      []string
	singleton bool
}

func (r *resolution) child(key string, singleton bool) *resolution {
	return &resolution{
		container: r.container,
		scope:     r.scope,
		path:      append(slices.Clone(r.path), key),
		singleton: r.singleton || singleton,
	}
}

func (r *resolution) Resolve(key string) (any, error) {
	reg, ok := r.container.table[key]
	if !ok {
		return nil, ErrNotRegistered.Clone().WithMetadata(map[string]any{"key": key, "path": r.path})
	}

	if slices.Contains(r.path, key) {
		return nil, ErrCircular.Clone().WithMetadata(map[string]any{"key": key, "path": r.path})
	}

	switch reg.Lifetime {
	case Singleton:
		return r.container.singleton(reg, r)
	case Scoped:
		if r.singleton {
			return nil, ErrCaptiveScoped.Clone().WithMetadata(map[string]any{"key": key, "path": r.path})
		}
		if r.scope == nil {
			return nil, ErrScopeRequired.Clone().WithMetadata(map[string]any{"key": key})
		}
		return r.scope.scoped(reg, r)
	default:
		v, err := reg.Factory(r.child(key, false))
		if err != nil {
			return nil, err
		}
		if r.scope != nil && !r.singleton {
			r.scope.track(v)
		} else {
			r.container.track(v)
		}
		return v, nil
	}
}

func dispose(disposers []io.Closer) error {
	var errs []error
	for i := len(disposers) - 1; i >= 0; i-- {
		if err := disposers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
