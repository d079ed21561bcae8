package main

import (
	"os"

	"github.com/Sinisterchilll/cs-analytics/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
