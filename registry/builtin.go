package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/mixer"
	"github.com/sarchlab/mediagraph/nodes/sink"
	"github.com/sarchlab/mediagraph/nodes/testsrc"
	"github.com/sarchlab/mediagraph/nodes/volume"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// Factory names of the built-in nodes.
const (
	TestSource = "testsrc"
	Sink       = "sink"
	Volume     = "volume"
	Mixer      = "mixer"
)

// Builtin returns the factories of the nodes shipped with mediagraph.
func Builtin() []Factory {
	return []Factory{
		{
			Name:        TestSource,
			Description: "output node producing a ramp, pulled every cycle or pushed",
			New:         newTestSource,
		},
		{
			Name:        Sink,
			Description: "input node counting what it consumes",
			New:         newSink,
		},
		{
			Name:        Volume,
			Description: "filter scaling samples by the volume property",
			New:         newVolume,
		},
		{
			Name:        Mixer,
			Description: "sums any number of inputs into one output",
			New:         newMixer,
		},
	}
}

// Uint32 reads an unsigned property, def when absent.
func (p Props) Uint32(key string, def uint32) (uint32, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}

	u, err := cast.ToUint32E(v)
	if err != nil {
		return 0, fmt.Errorf("prop %s: %w: %w", key, result.ErrInvalidArgument, err)
	}

	return u, nil
}

// Float reads a float property, def when absent.
func (p Props) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("prop %s: %w: %w", key, result.ErrInvalidArgument, err)
	}

	return f, nil
}

// Bool reads a boolean property, def when absent.
func (p Props) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}

	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("prop %s: %w: %w", key, result.ErrInvalidArgument, err)
	}

	return b, nil
}

// Text reads a string property, def when absent.
func (p Props) Text(key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}

	return cast.ToString(v)
}

// Formats reads a list of sample formats, given either as a list or as a
// comma separated string. def is returned when absent.
func (p Props) Formats(key string, def []param.AudioFormat) ([]param.AudioFormat, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}

	var names []string
	if s, isString := v.(string); isString {
		names = strings.Split(s, ",")
	} else {
		var err error
		if names, err = cast.ToStringSliceE(v); err != nil {
			return nil, fmt.Errorf("prop %s: %w: %w", key, result.ErrInvalidArgument, err)
		}
	}

	formats := make([]param.AudioFormat, 0, len(names))
	for _, name := range names {
		f, err := param.ParseAudioFormat(strings.ToUpper(strings.TrimSpace(name)))
		if err != nil {
			return nil, fmt.Errorf("prop %s: %w", key, err)
		}
		formats = append(formats, f)
	}

	return formats, nil
}

// reader collects the first error of a series of property reads.
type reader struct {
	props Props
	err   error
}

func (r *reader) uint32(key string, def uint32) uint32 {
	v, err := r.props.Uint32(key, def)
	r.err = errors.Join(r.err, err)

	return v
}

func (r *reader) float(key string, def float64) float64 {
	v, err := r.props.Float(key, def)
	r.err = errors.Join(r.err, err)

	return v
}

func (r *reader) bool(key string, def bool) bool {
	v, err := r.props.Bool(key, def)
	r.err = errors.Join(r.err, err)

	return v
}

func (r *reader) formats(key string, def []param.AudioFormat) []param.AudioFormat {
	v, err := r.props.Formats(key, def)
	r.err = errors.Join(r.err, err)

	return v
}

func newTestSource(name string, props Props) (node.Node, error) {
	def := testsrc.DefaultConfig()
	r := &reader{props: props}

	mode, err := testsrc.ParseMode(props.Text("mode", "pull"))
	if err != nil {
		return nil, err
	}

	cfg := testsrc.Config{
		Formats:  r.formats("formats", def.Formats),
		Rate:     r.uint32("rate", def.Rate),
		Channels: r.uint32("channels", def.Channels),
		Buffers:  r.uint32("buffers", def.Buffers),
		Quantum:  r.uint32("quantum", def.Quantum),
		Mode:     mode,
	}
	if r.err != nil {
		return nil, r.err
	}

	return testsrc.New(name, cfg)
}

func newSink(name string, props Props) (node.Node, error) {
	r := &reader{props: props}

	cfg := sink.Config{
		Formats: r.formats("formats", nil),
		Hold:    r.bool("hold", false),
	}
	if r.err != nil {
		return nil, r.err
	}

	return sink.New(name, cfg)
}

func newVolume(name string, props Props) (node.Node, error) {
	def := volume.DefaultConfig()
	r := &reader{props: props}

	cfg := volume.Config{
		Volume:  r.float("volume", def.Volume),
		Mute:    r.bool("mute", def.Mute),
		Buffers: r.uint32("buffers", def.Buffers),
		Quantum: r.uint32("quantum", def.Quantum),
	}
	if r.err != nil {
		return nil, r.err
	}

	return volume.New(name, cfg)
}

func newMixer(name string, props Props) (node.Node, error) {
	def := mixer.DefaultConfig()
	r := &reader{props: props}

	cfg := mixer.Config{
		Formats: r.formats("formats", def.Formats),
		Buffers: r.uint32("buffers", def.Buffers),
		Quantum: r.uint32("quantum", def.Quantum),
	}
	if r.err != nil {
		return nil, r.err
	}

	return mixer.New(name, cfg)
}
