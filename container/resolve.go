package container

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Resolve resolves key from r and asserts the result to T
func Resolve[T any](r Resolver, key string) (T, error) {
	var zero T
	instance, err := r.Resolve(key)
	if err != nil {
		return zero, err
	}
	result, ok := instance.(T)
	if !ok {
		return zero, goerrors.New(
			fmt.Sprintf("container: %s is %T, expected %T", key, instance, zero),
			goerrors.CategoryInternal,
		).WithTextCode("SERVICE_TYPE_MISMATCH")
	}
	return result, nil
}

// MustResolve is Resolve that panics on error. Use it where a missing
// service is a programming error.
func MustResolve[T any](r Resolver, key string) T {
	v, err := Resolve[T](r, key)
	if err != nil {
		panic(fmt.Sprintf("container: failed to resolve %s: %v", key, err))
	}
	return v
}
