// Registry resolves logical adapter names and route prefixes to adapters.
//
// DESIGN: Built once at startup by explicit, ordered Register calls on a
// Builder; Build returns an immutable Registry. Lookups take no locks.
// A name or prefix can be registered only once (ErrDuplicateAdapter).
package adapters

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/askcos/prediction-gateway/internal/dispatch"
)

// ResolverFunc resolves an adapter by registry name.
type ResolverFunc func(name string) (Adapter, error)

// Registry is an immutable name/prefix -> Adapter table.
type Registry struct {
	byName   map[string]Adapter
	byPrefix map[string]Adapter
	order    []Adapter
}

// Builder collects registrations in order.
type Builder struct {
	reg   *Registry
	built *Registry
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{reg: &Registry{
		byName:   make(map[string]Adapter),
		byPrefix: make(map[string]Adapter),
	}}
}

// Register adds an adapter under its identity's name and prefixes.
func (b *Builder) Register(a Adapter) error {
	if b.built != nil {
		return errors.New("registry already built")
	}
	id := a.Identity()
	if id.Name == "" {
		return newError(ErrValidation, nil, "adapter name is required")
	}
	if _, exists := b.reg.byName[id.Name]; exists {
		return newError(ErrDuplicateAdapter, nil, "adapter %q is already registered", id.Name)
	}
	for _, prefix := range id.Prefixes {
		if owner, exists := b.reg.byPrefix[prefix]; exists {
			return newError(ErrDuplicateAdapter, nil, "prefix %q is already bound to %q", prefix, owner.Identity().Name)
		}
	}

	b.reg.byName[id.Name] = a
	for _, prefix := range id.Prefixes {
		b.reg.byPrefix[prefix] = a
	}
	b.reg.order = append(b.reg.order, a)
	return nil
}

// Build freezes the registrations. The builder cannot be used afterwards.
func (b *Builder) Build() *Registry {
	if b.built == nil {
		b.built = b.reg
	}
	return b.built
}

// Resolver returns a ResolverFunc bound to the registry this builder will
// produce, so controllers can be registered before the registry exists.
func (b *Builder) Resolver() ResolverFunc {
	return func(name string) (Adapter, error) {
		if b.built == nil {
			return nil, newError(ErrUnknownAdapter, nil, "adapter %q: registry is not built", name)
		}
		return b.built.Resolve(name)
	}
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if a, ok := r.byName[name]; ok {
		return a, nil
	}
	return nil, newError(ErrUnknownAdapter, nil, "adapter %q is not registered", name)
}

// ResolvePrefix returns the adapter bound to a route prefix.
func (r *Registry) ResolvePrefix(prefix string) (Adapter, error) {
	if a, ok := r.byPrefix[prefix]; ok {
		return a, nil
	}
	return nil, newError(ErrUnknownAdapter, nil, "no adapter for prefix %q", prefix)
}

// All returns the adapters in registration order.
func (r *Registry) All() []Adapter {
	return append([]Adapter(nil), r.order...)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, a := range r.order {
		names = append(names, a.Identity().Name)
	}
	return names
}

// Executor runs async tasks: it resolves the task's adapter, decodes the
// stored input and performs CallSync. The Response is the task result.
func (r *Registry) Executor() dispatch.Executor {
	return dispatch.ExecutorFunc(func(ctx context.Context, task *dispatch.Task) (json.RawMessage, error) {
		a, err := r.Resolve(task.Adapter)
		if err != nil {
			return nil, err
		}
		in, err := a.DecodeInput(task.Payload)
		if err != nil {
			return nil, err
		}
		resp, err := a.CallSync(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	})
}
