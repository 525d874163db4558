// Command mirror is the voice assistant backend for a smart mirror display.
package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/mirror/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mirror: %v\n", err)
		os.Exit(1)
	}
}
