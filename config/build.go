package config

import (
	"context"
	"fmt"

	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/registry"
)

// GraphBuilder returns a graph builder for the timing section.
func (c *Config) GraphBuilder(log logging.Logger) graph.Builder {
	return graph.MakeBuilder().
		WithName(c.Name).
		WithLogger(log).
		WithQuantum(c.Quantum).
		WithRate(c.Rate)
}

// Populate creates the configured nodes with reg, adds them to g and links
// them in order. Disabled links are negotiated and then switched off.
func (c *Config) Populate(ctx context.Context, reg *registry.Registry, g *graph.Graph) error {
	for _, n := range c.Nodes {
		created, err := reg.Create(n.Factory, n.Name, registry.Props(n.Props))
		if err != nil {
			return err
		}

		if err := g.AddNode(n.Name, created); err != nil {
			return err
		}
	}

	for _, l := range c.Links {
		out, in, err := l.Endpoints()
		if err != nil {
			return err
		}

		link, err := g.Link(ctx, out, in)
		if err != nil {
			return fmt.Errorf("link %s -> %s: %w", out, in, err)
		}

		if l.Disabled {
			if err := g.SetLinkEnabled(link.ID(), false); err != nil {
				return err
			}
		}
	}

	return nil
}
