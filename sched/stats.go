// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/grailbio/subround"
)

// ExpVarScheduler is the prefix of the scheduler stats exported name.
const expVarScheduler = "subround-scheduler"

// OverallStats is the overall scheduler stats.
type OverallStats struct {
	// TotalRounds is the total number of rounds run.
	TotalRounds int64
	// TotalInvocations is the total number of backend invocations
	// (running or completed).
	TotalInvocations int64
	// TotalFailures is the total number of failed invocations.
	TotalFailures int64
}

// BackendStatsData is the per backend stats snapshot.
type BackendStatsData struct {
	// Invocations counts the invocations run by the backend, by stage.
	Invocations map[string]int64
	// Failures is the number of failed invocations.
	Failures int64
	// Running is the task currently running on the backend, if any.
	Running string
}

// BackendStats is the per backend stats used to update stats.
type BackendStats struct {
	sync.Mutex `json:"-"`
	BackendStatsData
}

// Start records that the task has started running on the backend.
func (b *BackendStats) Start(task *Task) {
	b.Mutex.Lock()
	defer b.Mutex.Unlock()
	b.Invocations[task.Stage.String()]++
	b.Running = task.String()
}

// Return records that the backend's running task has returned.
func (b *BackendStats) Return(task *Task) {
	b.Mutex.Lock()
	defer b.Mutex.Unlock()
	if task.Err != nil {
		b.Failures++
	}
	b.Running = ""
}

// Copy returns an immutable snapshot of BackendStats.
func (b *BackendStats) Copy() BackendStatsData {
	b.Mutex.Lock()
	defer b.Mutex.Unlock()
	copy := b.BackendStatsData
	copy.Invocations = make(map[string]int64, len(b.Invocations))
	for k, v := range b.Invocations {
		copy.Invocations[k] = v
	}
	return copy
}

// StatsData is an immutable snapshot of Stats, usually obtained by
// calling Stats.GetStats().
type StatsData struct {
	// OverallStats has the overall scheduler stats.
	OverallStats
	// Backends has the per backend stats, keyed by backend name.
	Backends map[string]BackendStatsData
}

// Stats has all the scheduler stats. It is thread safe and can be used
// to update stats. A nil *Stats discards updates.
type Stats struct {
	// Mutex protects all the data members.
	sync.Mutex `json:"-"`
	// OverallStats has the overall scheduler stats.
	OverallStats
	// Backends has the per backend stats, keyed by backend name.
	Backends map[string]*BackendStats
}

// NewStats returns a new Stats object.
func NewStats() *Stats {
	return &Stats{Backends: make(map[string]*BackendStats)}
}

var (
	schedulerStatExportedNames []string
	mu                         sync.Mutex
	exportNameCounter          int
)

// GetSchedulerStatExportedNames returns the expvar names of all
// published scheduler stats.
func GetSchedulerStatExportedNames() []string {
	mu.Lock()
	names := make([]string, len(schedulerStatExportedNames))
	copy(names, schedulerStatExportedNames)
	mu.Unlock()
	return names
}

// Publish publishes the stats as a go expvar.
func (s *Stats) Publish() {
	mu.Lock()
	val := exportNameCounter
	exportNameCounter++
	name := expVarScheduler + fmt.Sprintf("-%d", val)
	schedulerStatExportedNames = append(schedulerStatExportedNames, name)
	mu.Unlock()
	expvar.Publish(name, expvar.Func(func() interface{} { return s.GetStats() }))
}

// AddRound records the start of a round.
func (s *Stats) AddRound() {
	if s == nil {
		return
	}
	s.Mutex.Lock()
	s.TotalRounds++
	s.Mutex.Unlock()
}

func (s *Stats) backend(name string) *BackendStats {
	b, ok := s.Backends[name]
	if !ok {
		b = &BackendStats{BackendStatsData: BackendStatsData{Invocations: make(map[string]int64)}}
		s.Backends[name] = b
	}
	return b
}

// AssignTask records that a task was assigned to the named backend.
func (s *Stats) AssignTask(task *Task, backend string) {
	if s == nil {
		return
	}
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.TotalInvocations++
	s.backend(backend).Start(task)
}

// ReturnTask records that a task returned from the named backend.
func (s *Stats) ReturnTask(task *Task, backend string) {
	if s == nil {
		return
	}
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	if task.Err != nil {
		s.TotalFailures++
	}
	s.backend(backend).Return(task)
}

// GetStats returns a snapshot of the scheduler stats.
func (s *Stats) GetStats() StatsData {
	var copy StatsData
	s.Mutex.Lock()
	copy.OverallStats = s.OverallStats
	copy.Backends = make(map[string]BackendStatsData, len(s.Backends))
	for k, v := range s.Backends {
		copy.Backends[k] = v.Copy()
	}
	s.Mutex.Unlock()
	return copy
}

// BackendName returns the name under which backend b, at index i in a
// pool, is reported.
func BackendName(i int, b subround.Backend) string {
	if s, ok := b.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("backend%d", i)
}
