// Package main mints development bearer tokens for the job board API.
package main

import (
	"flag"
	"os"

	"github.com/ansa-jobboard/jobboard/internal/platform/config"
	"github.com/ansa-jobboard/jobboard/internal/tools/devtoken"
)

func main() {
	cfg, err := devtoken.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := devtoken.Run(cfg, os.Stdout, nil, nil); err != nil {
		config.Exitf("mint token: %v", err)
	}
}
