package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/sarchlab/mediagraph/config"
	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/registry"
	"github.com/sarchlab/mediagraph/timing"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"cycles":      "cycles",
	"quantum":     "quantum",
	"rate":        "rate",
	"pace":        "pace",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
	"monitor":     "monitor.enabled",
	"port":        "monitor.port",
	"open":        "monitor.open",
	"record":      "recording.enabled",
	"record-path": "recording.path",
}

// loadConfig reads the config named by --config with the flags of cmd
// overriding it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()

	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	return config.Load(v, path)
}

// session is a populated graph and the registry its nodes came from.
type session struct {
	cfg *config.Config
	log logging.Logger
	reg *registry.Registry
	g   *graph.Graph
}

func newSession(ctx context.Context, cfg *config.Config, log logging.Logger) (*session, error) {
	reg := registry.New(log, registry.Builtin()...)
	if err := reg.Init(); err != nil {
		return nil, err
	}

	b := cfg.GraphBuilder(log)
	if cfg.Pace {
		b = b.WithEngine(timing.NewSerialEngine(
			timing.WithPeriod(timing.Period(cfg.Quantum, cfg.Rate))))
	}

	s := &session{cfg: cfg, log: log, reg: reg, g: b.Build()}

	if err := cfg.Populate(ctx, reg, s.g); err != nil {
		return nil, errors.Join(err, s.Close())
	}

	return s, nil
}

// Close tears the graph down before suspending the nodes.
func (s *session) Close() error {
	return errors.Join(s.g.Close(), s.reg.Close())
}
