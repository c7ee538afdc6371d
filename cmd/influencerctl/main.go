// Command influencerctl runs the influence discovery pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/audiencegraph/influence-crawler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
