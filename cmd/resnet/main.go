// Package main provides the ResNet CIFAR-10 training CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/resnet/internal/config"
	"github.com/born-ml/resnet/internal/device"
	"github.com/born-ml/resnet/internal/train"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("resnet %s\n", version)
		return
	}

	cfgPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	overrides := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyOverrides(overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config) error {
	pref, err := device.ParsePreference(cfg.Device)
	if err != nil {
		return err
	}
	dev, err := device.Select(pref)
	if err != nil {
		return fmt.Errorf("no compute device: %w", err)
	}
	defer dev.Release()
	fmt.Printf("Using %s: %s\n", dev.Kind(), dev.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := train.Run(ctx, cfg, dev, os.Stdout); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
