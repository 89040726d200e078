package main

import (
	"os"

	"dab/cmd/dabctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
