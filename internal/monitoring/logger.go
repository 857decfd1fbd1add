// Package monitoring holds the diagnostic logger shared by the splatgeo
// packages that touch files or databases.
package monitoring

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/splatgeo/internal/timeutil"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// StageClock times Stage. Tests may replace it with a timeutil.MockClock.
var StageClock timeutil.Clock = timeutil.RealClock{}

// Stage logs the start of a named processing stage and returns a function
// that logs its completion with the elapsed time.
//
//	defer monitoring.Stage("apply")()
func Stage(name string) func() {
	clock := StageClock
	start := clock.Now()
	Logf("%s: started", name)
	return func() {
		Logf("%s: done in %s", name, clock.Since(start).Round(time.Millisecond))
	}
}

// Recorder collects formatted log lines. Install it with
// SetLogger(r.Logf) to assert on diagnostics in tests.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Logf formats and stores one line.
func (r *Recorder) Logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
