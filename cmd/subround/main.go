// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command subround runs subround-partitioned computations on a pool
// of in-process backends.
package main

import (
	"os"

	"github.com/grailbio/subround/config"
	"github.com/grailbio/subround/log"
	"github.com/spf13/cobra"
)

const intro = `Subround-partitioned aggregation

A computation is decomposed into reduce, merge, and post stages.
Its argument is partitioned into subrounds that are reduced
concurrently over a pool of backends; partial results are merged as
they complete, and the post stage produces the final value.

The configuration file (see -config) selects the backend pool and
its retry and throttling policies.`

var (
	configFile = os.ExpandEnv("$HOME/.subround/config.yaml")
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "subround",
	Short:         "Run subround-partitioned computations",
	Long:          intro,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "log level: off, error, info, or debug (overrides the configuration)")
}

// loadConfig loads the configuration file, if it exists, and applies
// command line overrides.
func loadConfig() (*config.Config, error) {
	cfg := new(config.Config)
	if _, err := os.Stat(configFile); err == nil {
		if cfg, err = config.ParseFile(configFile); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
