// Command mediagraph builds a media graph from a config file and runs it.
package main

import "github.com/sarchlab/mediagraph/mediagraph/cmd"

func main() {
	cmd.Execute()
}
