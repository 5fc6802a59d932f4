//go:build !tinygo

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"drill/app"
	"drill/hal"
)

func main() {
	fs := pflag.NewFlagSet("drill", pflag.ContinueOnError)
	cfg, err := app.LoadConfig(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	newApp := func(ctx context.Context, h hal.HAL) (func() error, error) {
		return app.Start(ctx, h, cfg)
	}

	if cfg.Run.Headless {
		err = hal.RunHeadless(ctx, newApp, hal.HeadlessConfig{Hz: cfg.Run.Hz, Ticks: cfg.Run.Ticks})
	} else {
		err = hal.RunWindow(ctx, newApp)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
