package cmd

import (
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
)

type testConfig struct {
	Address string `env:"CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8080"`
	Driver  string `env:"CMD_TEST_DRIVER" envDefault:"sqlite"`
}

func TestParseConfigFromArgsReadsEnvThenFlags(t *testing.T) {
	t.Setenv("JOBBOARD_CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("JOBBOARD_CMD_TEST_DRIVER", "postgres")

	cfg := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.StringVar(&cfg.Address, "address", "", "address")
	if err := ParseConfigFromArgs(&cfg, fs, []string{"-address", "flag:9002"}); err != nil {
		t.Fatalf("parse config and args: %v", err)
	}
	if cfg.Address != "flag:9002" {
		t.Fatalf("Address = %q, want %q", cfg.Address, "flag:9002")
	}
	if cfg.Driver != "postgres" {
		t.Fatalf("Driver = %q, want %q", cfg.Driver, "postgres")
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected nil target error")
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), " ", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceJobboard, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryRunsAndShutsDown(t *testing.T) {
	var shutdownCalled bool
	prev := setupTelemetry
	setupTelemetry = func(context.Context, string) (func(context.Context) error, error) {
		return func(context.Context) error {
			shutdownCalled = true
			return nil
		}, nil
	}
	t.Cleanup(func() { setupTelemetry = prev })

	runErr := errors.New("run failed")
	err := RunWithTelemetry(context.Background(), ServiceNotifier, func(context.Context) error { return runErr })
	if !errors.Is(err, runErr) {
		t.Fatalf("RunWithTelemetry error = %v, want %v", err, runErr)
	}
	if !shutdownCalled {
		t.Fatal("expected telemetry shutdown")
	}
}

func TestRunWithTelemetryReportsSetupFailure(t *testing.T) {
	prev := setupTelemetry
	setupTelemetry = func(context.Context, string) (func(context.Context) error, error) {
		return nil, errors.New("exporter down")
	}
	t.Cleanup(func() { setupTelemetry = prev })

	err := RunWithTelemetry(context.Background(), ServiceSeed, func(context.Context) error {
		t.Fatal("run should not be called")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "seed telemetry") {
		t.Fatalf("expected telemetry setup error, got %v", err)
	}
}
