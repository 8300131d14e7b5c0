// Package cmd provides the command-line interface of mediagraph.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mediagraph",
	Short: "mediagraph builds a graph of media nodes and runs it.",
	Long: `mediagraph builds a graph of media nodes from a config file, ` +
		`links their ports over shared memory buffers and runs the graph ` +
		`cycle by cycle.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "",
		"config file (default mediagraph.yaml in . or ~/.mediagraph)")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Exit goes through atexit so recordings are flushed.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
