package main

import (
	"context"
	"os"

	"github.com/shalteor/quassel-tools/internal/cli"
)

func main() {
	os.Exit(cli.RunUserManager(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
