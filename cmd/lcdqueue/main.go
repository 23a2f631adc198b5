// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// lcdqueue drives an HD44780 character LCD on an I²C backpack, or an
// emulated one, through the queued driver. It writes a header line and an
// uptime counter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GermanBionicSystems/textlcd/internal/config"
	"github.com/GermanBionicSystems/textlcd/lcdqueue"
	"github.com/GermanBionicSystems/textlcd/lcdsim"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true})

	defaultConfig := config.Filename
	if dir, err := os.UserConfigDir(); err == nil {
		defaultConfig = filepath.Join(dir, "lcdqueue", config.Filename)
	}
	configFile := flag.String("c", defaultConfig, "Location of the config file")
	debugMode := flag.Bool("d", false, "Enable debug mode")
	simulationMode := flag.Bool("s", false, "Drive an emulated display")
	pngFile := flag.String("png", "", "Save a picture of the emulated display to this file on exit")
	writeConfig := flag.Bool("w", false, "Write the default config file and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "\nUsage: %s [OPTIONS]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "\nDrive a character LCD through a write queue\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debugMode {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *writeConfig {
		if err := os.MkdirAll(filepath.Dir(*configFile), 0o770); err != nil {
			logrus.Fatalf("Unable to create config folder: %v", err)
		}
		if err := config.Default().Save(*configFile); err != nil {
			logrus.Fatalf("Unable to write config file: %v", err)
		}
		logrus.Infof("Config written to %s", *configFile)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatal(err)
	}
	if *simulationMode {
		cfg.Simulate = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, *pngFile); err != nil {
		logrus.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, pngFile string) error {
	var bus i2c.Bus
	var sim *lcdsim.Sim
	if cfg.Simulate {
		sim = lcdsim.New(cfg.Address, cfg.Rows, cfg.Cols)
		bus = sim
		logrus.Infof("Simulation mode: %s", sim)
	} else {
		if _, err := host.Init(); err != nil {
			return err
		}
		b, err := i2creg.Open(cfg.Bus)
		if err != nil {
			return fmt.Errorf("failed to open I²C: %w", err)
		}
		defer b.Close()
		bus = b
	}

	opts, err := cfg.Opts(logrus.StandardLogger())
	if err != nil {
		return err
	}
	sizeQueue(opts)
	bp := lcdqueue.NewI2CBackpack(bus, cfg.Address)
	dev, err := lcdqueue.New(bp, opts)
	if err != nil {
		return err
	}
	if err := dev.Backlight(backlight(cfg.Backlight)); err != nil {
		return err
	}
	logrus.Infof("Display ready: %s", dev)

	// The consumer outlives the producers so that Halt reaches the display.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumerDone := make(chan error, 1)
	go func() { consumerDone <- dev.Run(consumerCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return produce(gctx, dev, cfg.Refresh)
	})
	if sim != nil {
		g.Go(func() error {
			return preview(gctx, sim, cfg.Refresh)
		})
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logrus.Info("Shutting down display")
	if herr := dev.Halt(); herr != nil {
		logrus.WithError(herr).Warn("Halt")
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if derr := dev.Drain(drainCtx); derr != nil {
		logrus.WithError(derr).Warn("Drain")
	}
	stopConsumer()
	if cerr := <-consumerDone; !errors.Is(cerr, context.Canceled) {
		logrus.WithError(cerr).Warn("Consumer stopped")
	}

	if sim != nil && pngFile != "" {
		if perr := sim.SavePNG(pngFile); perr != nil {
			logrus.WithError(perr).Warn("Unable to save picture")
		} else {
			logrus.Infof("Picture saved to %s", pngFile)
		}
	}
	return err
}

const header = "Uptime:"

// sizeQueue raises the capacity so that the header and one refresh of the
// counter fit in the queue together.
func sizeQueue(opts *lcdqueue.Opts) {
	if opts.Capacity == 0 {
		opts.Capacity = lcdqueue.DefaultOpts.Capacity
	}
	if need := 2*opts.Cols + len(header) + 3; opts.Capacity < need {
		logrus.Infof("Raising the queue capacity to %d units", need)
		opts.Capacity = need
	}
}

func backlight(on bool) display.Intensity {
	if on {
		return 0xff
	}
	return 0
}

// produce writes the header once and the uptime on every refresh. A full
// queue delays the header and skips a refresh of the counter.
func produce(ctx context.Context, dev *lcdqueue.Dev, refresh time.Duration) error {
	for {
		err := dev.WriteText(0, 0, header, true)
		if err == nil {
			break
		}
		if !errors.Is(err, lcdqueue.ErrBufferFull) {
			return err
		}
		logrus.WithField("queued", dev.Len()).Debug("Queue full, retrying header")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(refresh):
		}
	}
	// The counter goes below the header, or after it on a single line.
	line, col := 1, 0
	if dev.Rows() == 1 {
		line, col = 0, len(header)+1
	}
	width := dev.Cols() - col
	if width <= 0 {
		return nil
	}
	start := time.Now()
	t := time.NewTicker(refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		text := fmt.Sprintf("%-*s", width, time.Since(start).Truncate(time.Second))
		if len(text) > width {
			text = text[:width]
		}
		err := dev.WriteText(line, col, text, false)
		if errors.Is(err, lcdqueue.ErrBufferFull) {
			logrus.WithField("queued", dev.Len()).Debug("Queue full, skipping refresh")
			continue
		}
		if err != nil {
			return err
		}
	}
}

// preview redraws the emulated display in the terminal.
func preview(ctx context.Context, sim *lcdsim.Sim, refresh time.Duration) error {
	var w io.Writer = colorable.NewColorableStdout()
	cls := "\033[H\033[2J"
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		w = colorable.NewNonColorable(os.Stdout)
		cls = ""
	}
	t := time.NewTicker(refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if _, err := io.WriteString(w, cls); err != nil {
			return err
		}
		if err := sim.Render(w); err != nil {
			return err
		}
	}
}
