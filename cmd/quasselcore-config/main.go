package main

import (
	"context"
	"os"

	"github.com/shalteor/quassel-tools/internal/cli"
)

func main() {
	os.Exit(cli.RunConfig(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
