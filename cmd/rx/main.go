// rx is a streaming regex search engine for large log files.
// It shells out to ripgrep over line-aligned chunks and serves the same
// pipeline over a JSON API.
package main

import (
	"os"

	"github.com/wlame/rx/cmd/rx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
