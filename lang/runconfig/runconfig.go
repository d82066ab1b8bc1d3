// Copyright 2024 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package runconfig loads TOML-encoded tuning parameters for the rocket
// runtime: GC thresholds, call-depth limits and prototype cache sizes.
package runconfig

import (
	"os"

	"github.com/naoina/toml"
)

// Config holds every tunable the embedding host may override at startup.
type Config struct {
	// GC controls the tracing collector.
	GC struct {
		// InitialThresholdKB is the allocation debt, in KiB, that triggers
		// the first collection cycle.
		InitialThresholdKB int64 `toml:"initial_threshold_kb"`
		// GrowthFactor scales the threshold after each cycle relative to
		// the heap's live-set size at the end of that cycle.
		GrowthFactor float64 `toml:"growth_factor"`
	} `toml:"gc"`

	// Call controls interpreter call-stack limits.
	Call struct {
		MaxDepth int `toml:"max_depth"`
	} `toml:"call"`

	// Cache controls the compiled-prototype cache.
	Cache struct {
		MemoryEntries int    `toml:"memory_entries"`
		DiskPath      string `toml:"disk_path"`
	} `toml:"cache"`

	// Log controls the default logger.
	Log struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
}

// Default returns the configuration rocket uses when no TOML file is
// supplied by the embedding host.
func Default() *Config {
	cfg := &Config{}
	cfg.GC.InitialThresholdKB = 64
	cfg.GC.GrowthFactor = 2.0
	cfg.Call.MaxDepth = 200
	cfg.Cache.MemoryEntries = 256
	cfg.Log.Level = "info"
	return cfg
}

// Load reads and decodes a TOML configuration file at path, overlaying it
// on top of Default so an omitted section keeps its default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
