// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/grailbio/subround/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Config prints the effective configuration, followed by the
available backend providers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := cfg.Marshal()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, string(b))
		fmt.Fprintln(out, "\nbackend providers:")
		tw := tabwriter.NewWriter(out, 4, 4, 1, ' ', 0)
		for _, u := range config.Help() {
			fmt.Fprintf(tw, "\t%s,%s\t%s\n", u.Kind, u.Arg, u.Usage)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
