// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"strconv"

	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/local"
	"github.com/grailbio/subround/log"
)

func init() {
	Register("local", "n", "provide n in-process backends",
		func(cfg *Config, arg string, log *log.Logger) ([]subround.Backend, error) {
			n := 4
			if arg != "" {
				var err error
				if n, err = strconv.Atoi(arg); err != nil {
					return nil, errors.E("local", arg, errors.Invalid, err)
				}
			}
			if n <= 0 {
				return nil, errors.E("local", arg, errors.Invalid, errors.New("backend count must be positive"))
			}
			return local.Backends(local.NewPool(n, cfg.Parallelism, log)), nil
		},
	)
}
