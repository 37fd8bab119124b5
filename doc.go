// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package subround defines the core abstractions for executing
// single-aggregation computations in subrounds.
//
// A computation with a single logical aggregation can be split along
// its merge boundary into three stages (see package form): a reduce
// stage that aggregates one partition of the distributed input into a
// single hub-placed value, a merge stage that combines two such
// values, and a post stage that consumes the original argument
// together with the merged result. Because merge may be invoked
// repeatedly without changing the result, the distributed input can be
// partitioned (package partition) and each partition run as its own
// subround on one of a bounded pool of backends (package sched). A
// failed subround can then be re-driven on its own, without
// re-executing the entire round.
//
// Package runtime ties these together behind a single blocking
// Invoke call.
//
// This package defines the contracts of the collaborators the engine
// relies on: computations, backends that execute them, and compilers
// that rewrite raw computations into three-stage form.
package subround
