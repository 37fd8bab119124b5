// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import "go.uber.org/zap"

type zapOutputter struct {
	z *zap.Logger
}

// Zap returns an Outputter that publishes messages to z as
// structured entries. Leveling is performed by the Logger; every
// message that reaches the outputter is written at zap's info level.
func Zap(z *zap.Logger) Outputter {
	return zapOutputter{z}
}

func (o zapOutputter) Output(calldepth int, s string) error {
	o.z.WithOptions(zap.AddCallerSkip(calldepth)).Info(s)
	return nil
}
