// Package config loads the description of a graph run: timing, the nodes to
// create, the links between them and the ambient services. Values come from
// defaults, an optional config file, an optional .env file and MEDIAGRAPH_*
// environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/result"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "MEDIAGRAPH"

// Node is a node to create with a registry factory.
type Node struct {
	Name    string         `mapstructure:"name"`
	Factory string         `mapstructure:"factory"`
	Props   map[string]any `mapstructure:"props"`
}

// Link connects two ports given as "node:port". The port may be omitted
// for port 0.
type Link struct {
	Output   string `mapstructure:"output"`
	Input    string `mapstructure:"input"`
	Disabled bool   `mapstructure:"disabled"`
}

// Logging selects the log level and format.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Monitor configures the HTTP monitor.
type Monitor struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
	Open    bool `mapstructure:"open"`
}

// Recording configures the SQLite cycle trace.
type Recording struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config is everything a run needs.
type Config struct {
	Name    string `mapstructure:"name"`
	Quantum uint32 `mapstructure:"quantum"`
	Rate    uint32 `mapstructure:"rate"`
	Cycles  uint64 `mapstructure:"cycles"`
	Pace    bool   `mapstructure:"pace"`

	Logging   Logging   `mapstructure:"logging"`
	Monitor   Monitor   `mapstructure:"monitor"`
	Recording Recording `mapstructure:"recording"`

	Nodes []Node `mapstructure:"nodes"`
	Links []Link `mapstructure:"links"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "")
	v.SetDefault("quantum", 1024)
	v.SetDefault("rate", 48000)
	v.SetDefault("cycles", 100)
	v.SetDefault("pace", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 0)
	v.SetDefault("monitor.open", false)

	v.SetDefault("recording.enabled", false)
	v.SetDefault("recording.path", "")

	v.SetDefault("nodes", []map[string]any{
		{"name": "src", "factory": "testsrc"},
		{"name": "vol", "factory": "volume", "props": map[string]any{"volume": 0.5}},
		{"name": "snk", "factory": "sink"},
	})
	v.SetDefault("links", []map[string]any{
		{"output": "src:0", "input": "vol:0"},
		{"output": "vol:0", "input": "snk:0"},
	})
}

// NewViper returns a viper instance with the defaults and the environment
// bindings. Command line flags can be bound to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads path, or mediagraph.{yaml,json,toml} from the working
// directory or ~/.mediagraph when path is empty. A missing default file is
// not an error. A .env file in the working directory is loaded first.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mediagraph")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.mediagraph")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the timing values and that links only name declared
// nodes.
func (c *Config) Validate() error {
	if c.Quantum == 0 || c.Rate == 0 {
		return fmt.Errorf("quantum %d at rate %d: %w",
			c.Quantum, c.Rate, result.ErrInvalidArgument)
	}

	names := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" || n.Factory == "" {
			return fmt.Errorf("node %q of factory %q: %w",
				n.Name, n.Factory, result.ErrInvalidArgument)
		}

		if names[n.Name] {
			return fmt.Errorf("node %q declared twice: %w", n.Name, result.ErrBusy)
		}
		names[n.Name] = true
	}

	for _, l := range c.Links {
		out, in, err := l.Endpoints()
		if err != nil {
			return err
		}

		for _, e := range []graph.Endpoint{out, in} {
			if !names[e.Node] {
				return fmt.Errorf("link %s -> %s: node %q: %w",
					l.Output, l.Input, e.Node, result.ErrNotFound)
			}
		}
	}

	return nil
}

// LogConfig converts the logging section.
func (c *Config) LogConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Logging.Level)
	lc.Format = c.Logging.Format

	return lc
}

// Endpoints parses both ends of the link.
func (l Link) Endpoints() (graph.Endpoint, graph.Endpoint, error) {
	out, err := ParseEndpoint(l.Output)
	if err != nil {
		return graph.Endpoint{}, graph.Endpoint{}, err
	}

	in, err := ParseEndpoint(l.Input)
	if err != nil {
		return graph.Endpoint{}, graph.Endpoint{}, err
	}

	return out, in, nil
}

// ParseEndpoint parses "node" or "node:port".
func ParseEndpoint(s string) (graph.Endpoint, error) {
	name, port, found := strings.Cut(strings.TrimSpace(s), ":")
	if name == "" {
		return graph.Endpoint{}, fmt.Errorf("endpoint %q: %w", s, result.ErrInvalidArgument)
	}

	if !found {
		return graph.Endpoint{Node: name}, nil
	}

	id, err := strconv.ParseUint(port, 10, 32)
	if err != nil {
		return graph.Endpoint{}, fmt.Errorf("endpoint %q: %w", s, result.ErrInvalidArgument)
	}

	return graph.Endpoint{Node: name, Port: uint32(id)}, nil
}
