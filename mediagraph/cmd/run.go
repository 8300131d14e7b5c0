package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/mediagraph/config"
	"github.com/sarchlab/mediagraph/datarecording"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/monitoring"
	"github.com/sarchlab/mediagraph/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the configured graph and run it.",
	Long: "`run` builds the configured graph and runs it for --cycles " +
		"cycles, or until interrupted when --cycles is 0.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runGraph(ctx, cfg, logging.New(cfg.LogConfig()), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.Uint64("cycles", 100, "cycles to run, 0 runs until interrupted")
	f.Uint32("quantum", 1024, "frames per cycle")
	f.Uint32("rate", 48000, "graph sample rate")
	f.Bool("pace", false, "run cycles in real time")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-format", "text", "text or json")
	f.Bool("monitor", false, "serve the monitor over HTTP")
	f.Int("port", 0, "monitor port, 0 picks one")
	f.Bool("open", false, "open the monitor in a browser")
	f.Bool("record", false, "record every cycle into a SQLite file")
	f.String("record-path", "", "recording file without extension")
}

// runGraph runs cfg until its cycles are done or ctx ends, then prints the
// cycle statistics to out.
func runGraph(ctx context.Context, cfg *config.Config, log logging.Logger, out io.Writer) (err error) {
	s, err := newSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	stats := tracing.NewStatsTracer()
	tracing.Attach(s.g, stats)

	if cfg.Recording.Enabled {
		closeRecording, rerr := startRecording(s, cfg.Recording.Path)
		if rerr != nil {
			return rerr
		}
		defer func() { err = errors.Join(err, closeRecording()) }()
	}

	if cfg.Monitor.Enabled {
		m, merr := startMonitor(s, cfg)
		if merr != nil {
			return merr
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err = errors.Join(err, m.Shutdown(shutdownCtx))
		}()
	}

	if err := s.g.Start(cfg.Cycles); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.g.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		log.Info("interrupted, stopping graph")
		err = s.g.Stop()
		<-done
	}

	if err != nil {
		return err
	}

	printSummary(out, s, stats.Summary())

	return nil
}

func startRecording(s *session, path string) (func() error, error) {
	rec, err := datarecording.New(path)
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.NewDBTracer(rec, s.log)
	if err != nil {
		return nil, errors.Join(err, rec.Close())
	}

	tracing.Attach(s.g, tracer)
	s.log.Info("recording cycles", "file", datarecording.Path(rec))

	return rec.Close, nil
}

func startMonitor(s *session, cfg *config.Config) (*monitoring.Monitor, error) {
	m := monitoring.NewMonitor(s.g, s.log).WithPortNumber(cfg.Monitor.Port)
	if cfg.Cycles > 0 {
		m.TrackCycles(cfg.Cycles)
	}

	url, err := m.StartServer()
	if err != nil {
		return nil, err
	}

	if cfg.Monitor.Open {
		if err := m.OpenBrowser(url); err != nil {
			s.log.Warn("open browser", "url", url, "err", err)
		}
	}

	return m, nil
}

func printSummary(out io.Writer, s *session, sum tracing.Summary) {
	fmt.Fprintf(out, "graph %s: %d cycles, %d xruns, avg %s, max %s\n",
		s.g.Name(), sum.Cycles, sum.Xruns, sum.AverageTime, sum.MaxTime)

	for _, n := range sum.Nodes {
		fmt.Fprintf(out, "  %-12s processed %d errors %d xruns %d\n",
			n.Node, n.Processed, n.Errors, n.Xruns)
	}
}
