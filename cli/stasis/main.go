package main

import (
	"os"

	stasiscmder "github.com/stasishq/stasis/cmd/stasis"
)

func main() {
	cmd := stasiscmder.NewStasisCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
