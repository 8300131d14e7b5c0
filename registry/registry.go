// Package registry keeps the node factories of one process. A Registry is
// created, initialised and closed by its owner and handed to whatever builds
// nodes; there is no package level state.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/result"
)

// Props configure a node created by a factory. Values are converted by the
// factory, so strings from the command line and typed values from a config
// file both work.
type Props map[string]any

// Factory creates nodes of one kind.
type Factory struct {
	Name        string
	Description string
	New         func(name string, props Props) (node.Node, error)
}

type created struct {
	factory string
	name    string
	node    node.Node
}

// Registry maps factory names to factories and remembers what it created.
type Registry struct {
	lock      sync.Mutex
	log       logging.Logger
	factories map[string]Factory
	order     []string
	nodes     []created
	ready     bool
	closed    bool
}

// New creates a registry holding factories.
func New(log logging.Logger, factories ...Factory) *Registry {
	r := &Registry{
		log:       logging.OrNop(log).With("component", "registry"),
		factories: make(map[string]Factory),
	}

	for _, f := range factories {
		if err := r.Register(f); err != nil {
			r.log.Warn("factory skipped", "factory", f.Name, "err", err)
		}
	}

	return r
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(f Factory) error {
	if f.Name == "" || f.New == nil {
		return fmt.Errorf("factory %q: %w", f.Name, result.ErrInvalidArgument)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return fmt.Errorf("registry closed: %w", result.ErrIO)
	}

	if _, ok := r.factories[f.Name]; ok {
		return fmt.Errorf("factory %q: %w", f.Name, result.ErrBusy)
	}

	r.factories[f.Name] = f
	r.order = append(r.order, f.Name)

	return nil
}

// Init makes the registry ready to create nodes.
func (r *Registry) Init() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return fmt.Errorf("registry closed: %w", result.ErrIO)
	}

	r.ready = true
	r.log.Debug("registry ready", "factories", len(r.order))

	return nil
}

// Factory looks a factory up.
func (r *Registry) Factory(name string) (Factory, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	f, ok := r.factories[name]

	return f, ok
}

// Factories returns the factories in registration order.
func (r *Registry) Factories() []Factory {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]Factory, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.factories[name])
	}

	return out
}

// Create builds a node with the named factory.
func (r *Registry) Create(factory, name string, props Props) (node.Node, error) {
	r.lock.Lock()
	if !r.ready || r.closed {
		r.lock.Unlock()
		return nil, fmt.Errorf("registry not initialised: %w", result.ErrIO)
	}

	f, ok := r.factories[factory]
	r.lock.Unlock()

	if !ok {
		return nil, fmt.Errorf("factory %q: %w", factory, result.ErrNotFound)
	}

	n, err := f.New(name, props)
	if err != nil {
		return nil, fmt.Errorf("create %s %q: %w", factory, name, err)
	}

	r.lock.Lock()
	r.nodes = append(r.nodes, created{factory: factory, name: name, node: n})
	r.lock.Unlock()

	r.log.Info("node created", "factory", factory, "node", name)

	return n, nil
}

// Created returns the names of the nodes created so far.
func (r *Registry) Created() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	names := make([]string, len(r.nodes))
	for i, c := range r.nodes {
		names[i] = c.name
	}

	return names
}

// Close suspends every node the registry created, newest first, and
// refuses further use.
func (r *Registry) Close() error {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return nil
	}

	r.closed = true
	nodes := slices.Clone(r.nodes)
	r.nodes = nil
	r.lock.Unlock()

	var errs []error
	for _, c := range slices.Backward(nodes) {
		if err := c.node.SendCommand(node.CommandSuspend); err != nil {
			errs = append(errs, fmt.Errorf("suspend %s: %w", c.name, err))
		}
	}

	r.log.Debug("registry closed", "nodes", len(nodes))

	return errors.Join(errs...)
}
