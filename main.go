package main

import (
	"os"

	"github.com/ethos-works/threadqueue/pkg/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
