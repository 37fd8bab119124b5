// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/grailbio/base/status"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/value"
	"github.com/spf13/cobra"
)

var (
	runSubrounds  int
	runBackends   string
	runShowStatus bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] values...",
	Short: "Center a list of values on their mean",
	Long: `Run centers the provided values on their mean. The values are
partitioned into subrounds; each subround's sum and count are reduced
on a backend and merged as they complete, and each value is then
centered on the merged mean.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runSubrounds, "subrounds", 0, "number of subrounds (overrides the configuration)")
	runCmd.Flags().StringVar(&runBackends, "backends", "", "backend provider, as kind,arg (overrides the configuration)")
	runCmd.Flags().BoolVar(&runShowStatus, "status", false, "report invocation status to standard error")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("subrounds") {
		cfg.Subrounds = runSubrounds
	}
	if runBackends != "" {
		cfg.Backends = runBackends
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	xs := make([]float64, len(args))
	for i, arg := range args {
		if xs[i], err = strconv.ParseFloat(arg, 64); err != nil {
			return errors.E("run", arg, errors.Invalid, err)
		}
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	c, err := cfg.Context(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error(err)
		}
	}()
	c.Compiler = compiler
	if runShowStatus {
		st := new(status.Status)
		c.Status = st.Group("subrounds")
		reporter := make(status.Reporter)
		go reporter.Go(os.Stderr, st)
		defer reporter.Stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	v, err := c.Invoke(ctx, center, value.Floats(xs...))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value.Sprint(v))
	return nil
}
