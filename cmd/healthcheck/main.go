// Package main checks a gRPC health endpoint and exits non-zero unless it is serving.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/ansa-jobboard/jobboard/internal/cmd/healthcheck"
	"github.com/ansa-jobboard/jobboard/internal/platform/config"
)

func main() {
	cfg, err := healthcheck.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := healthcheck.Run(context.Background(), cfg, os.Stdout); err != nil {
		config.Exitf("healthcheck: %v", err)
	}
}
