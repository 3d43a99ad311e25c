// Package mapping holds explicit source to destination conversions. Each pair
// is registered once with a plain function; Compile freezes the registry so
// the set of mappings is fixed before the first request is served.
package mapping

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

var (
	ErrDuplicate = goerrors.New("mapping already registered", goerrors.CategoryConflict).WithTextCode("MAPPING_DUPLICATE")
	ErrFrozen    = goerrors.New("mapping registry is compiled", goerrors.CategoryOperation).WithTextCode("MAPPING_FROZEN")
	ErrMissing   = goerrors.New("mapping not registered", goerrors.CategoryNotFound).WithTextCode("MAPPING_MISSING")
	ErrNotFrozen = goerrors.New("mapping registry is not compiled", goerrors.CategoryOperation).WithTextCode("MAPPING_NOT_COMPILED")
)

type pair struct {
	src reflect.Type
	dst reflect.Type
}

func (p pair) String() string {
	return fmt.Sprintf("%s -> %s", p.src, p.dst)
}

// Registry stores mapping functions by (source, destination) type pair
type Registry struct {
	mu     sync.RWMutex
	funcs  map[pair]any
	frozen bool
}

// New returns an empty registry
func New() *Registry {
	return &Registry{funcs: make(map[pair]any)}
}

// Register adds the S to D conversion. It fails if the pair already exists
// or the registry is compiled.
func Register[S, D any](r *Registry, fn func(S) D) error {
	if fn == nil {
		return goerrors.New("mapping function is nil", goerrors.CategoryBadInput)
	}

	key := pair{src: reflect.TypeFor[S](), dst: reflect.TypeFor[D]()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen.Clone().WithMetadata(map[string]any{"pair": key.String()})
	}
	if _, ok := r.funcs[key]; ok {
		return ErrDuplicate.Clone().WithMetadata(map[string]any{"pair": key.String()})
	}

	r.funcs[key] = fn
	return nil
}

// MustRegister is Register that panics on error
func MustRegister[S, D any](r *Registry, fn func(S) D) {
	if err := Register(r, fn); err != nil {
		panic(err)
	}
}

// Compile freezes the registry. Later registrations fail.
func (r *Registry) Compile() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.funcs) == 0 {
		return goerrors.New("mapping registry is empty", goerrors.CategoryValidation)
	}
	r.frozen = true
	return nil
}

// Compiled reports whether Compile has run
func (r *Registry) Compiled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Pairs lists registered pairs, sorted
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		out = append(out, k.String())
	}
	slices.Sort(out)
	return out
}

// Map converts src using the registered S to D function
func Map[S, D any](r *Registry, src S) (D, error) {
	fn, err := lookup[S, D](r)
	if err != nil {
		var zero D
		return zero, err
	}
	return fn(src), nil
}

// MapSlice converts every element of src. A nil slice maps to an empty one.
func MapSlice[S, D any](r *Registry, src []S) ([]D, error) {
	fn, err := lookup[S, D](r)
	if err != nil {
		return nil, err
	}

	out := make([]D, 0, len(src))
	for _, s := range src {
		out = append(out, fn(s))
	}
	return out, nil
}

func lookup[S, D any](r *Registry) (func(S) D, error) {
	key := pair{src: reflect.TypeFor[S](), dst: reflect.TypeFor[D]()}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.frozen {
		return nil, ErrNotFrozen.Clone().WithMetadata(map[string]any{"pair": key.String()})
	}

	raw, ok := r.funcs[key]
	if !ok {
		return nil, ErrMissing.Clone().WithMetadata(map[string]any{"pair": key.String()})
	}
	return raw.(func(S) D), nil
}
