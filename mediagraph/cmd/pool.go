package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/mediagraph/logging"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Link the configured graph and show its buffer memory.",
	Long: "`pool` builds and links the configured graph without running it " +
		"and prints the negotiated links and the shared memory blocks.",
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s, err := newSession(cmd.Context(), cfg, logging.New(cfg.LogConfig()))
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, s.Close()) }()

		printPool(cmd.OutOrStdout(), s)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(poolCmd)
	poolCmd.Flags().Uint32("quantum", 1024, "frames per cycle")
	poolCmd.Flags().Uint32("rate", 48000, "graph sample rate")
}

func printPool(out io.Writer, s *session) {
	for _, l := range s.g.Links() {
		fmt.Fprintln(out, l)
	}

	p := s.g.Pool()
	st := p.Stats()
	fmt.Fprintf(out, "pool %s: %d blocks, %d mappings, %d bytes mapped\n",
		p.Name(), st.Blocks, st.Mappings, st.MappedBytes)

	for _, b := range p.Blocks() {
		fmt.Fprintf(out, "  %s refs %d\n", b, b.Refs())
	}
}
