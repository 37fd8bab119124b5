// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = filepath.Join(t.TempDir(), "missing.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", "--log", "off", "--backends", "local,2", "--subrounds", "3", "1", "2", "3", "4")
	require.NoError(t, err)
	require.Equal(t, "<mean=2.5, centered=[-1.5, -0.5, 0.5, 1.5]>\n", out)
}

func TestRunInvalid(t *testing.T) {
	_, err := execute(t, "run", "--log", "off", "one")
	require.Error(t, err)
	_, err = execute(t, "run", "--log", "off", "--backends", "cloud", "1")
	require.Error(t, err)
}

func TestConfig(t *testing.T) {
	out, err := execute(t, "config", "--log", "off")
	require.NoError(t, err)
	require.Contains(t, out, "loglevel:")
	require.True(t, strings.Contains(out, "local,n"), out)
}
