// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the settings of the lcdqueue daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/GermanBionicSystems/textlcd/lcdqueue"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Filename is the name of the configuration file in the config folder.
const Filename = "lcdqueue.yaml"

// Config is the content of the configuration file.
type Config struct {
	// Bus is the I²C bus name given to i2creg.Open. Empty selects the
	// first bus.
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
	Rows    int    `yaml:"rows"`
	Cols    int    `yaml:"cols"`

	Capacity        int           `yaml:"capacity"`
	TickRate        string        `yaml:"tick_rate"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"`
	ProbeBeforeSend bool          `yaml:"probe_before_send"`
	Backlight       bool          `yaml:"backlight"`

	// Simulate drives an emulated display instead of the bus.
	Simulate bool `yaml:"simulate"`
	// Refresh is the period of the demo producer and of the preview.
	Refresh time.Duration `yaml:"refresh"`
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	return &Config{
		Address:      lcdqueue.DefaultAddress,
		Rows:         lcdqueue.DefaultOpts.Rows,
		Cols:         lcdqueue.DefaultOpts.Cols,
		Capacity:     lcdqueue.DefaultOpts.Capacity,
		TickRate:     lcdqueue.DefaultOpts.TickRate.String(),
		ReadyTimeout: lcdqueue.DefaultOpts.ReadyTimeout,
		Backlight:    true,
		Refresh:      200 * time.Millisecond,
	}
}

// Load reads the configuration at path. Keys missing from the file keep
// their default value, and a missing file gives the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logrus.Infof("No config file %s, using defaults", path)
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("unable to interpret config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o660)
}

// Validate checks the values that cannot be checked by the display itself.
func (c *Config) Validate() error {
	if _, err := c.tickRate(); err != nil {
		return err
	}
	if c.Address > 0x7f {
		return fmt.Errorf("address: %#x is not a 7 bit I²C address", c.Address)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity: %d must not be negative", c.Capacity)
	}
	if c.Refresh <= 0 {
		return fmt.Errorf("refresh: %s must be positive", c.Refresh)
	}
	return nil
}

func (c *Config) tickRate() (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(c.TickRate); err != nil {
		return 0, fmt.Errorf("tick_rate: %w", err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("tick_rate: %s must be positive", c.TickRate)
	}
	return f, nil
}

// Opts returns the display options for this configuration.
func (c *Config) Opts(logger logrus.FieldLogger) (*lcdqueue.Opts, error) {
	f, err := c.tickRate()
	if err != nil {
		return nil, err
	}
	return &lcdqueue.Opts{
		Rows:            c.Rows,
		Cols:            c.Cols,
		Capacity:        c.Capacity,
		TickRate:        f,
		ReadyTimeout:    c.ReadyTimeout,
		ProbeBeforeSend: c.ProbeBeforeSend,
		Logger:          logger,
	}, nil
}
