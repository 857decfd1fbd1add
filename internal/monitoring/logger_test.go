package monitoring

import (
	"testing"
	"time"

	"github.com/banshee-data/splatgeo/internal/timeutil"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestRecorder(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var r Recorder
	SetLogger(r.Logf)
	Logf("splat: read %d vertices", 12)

	lines := r.Lines()
	if len(lines) != 1 || lines[0] != "splat: read 12 vertices" {
		t.Errorf("Lines() = %q", lines)
	}
	lines[0] = "mutated"
	if r.Lines()[0] == "mutated" {
		t.Error("Lines() must return a copy")
	}
}

func TestStage(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	StageClock = clock
	defer func() { StageClock = timeutil.RealClock{} }()

	var r Recorder
	SetLogger(r.Logf)
	done := Stage("apply")
	clock.Advance(1234567 * time.Microsecond)
	done()

	lines := r.Lines()
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), lines)
	}
	if lines[0] != "apply: started" {
		t.Errorf("start line = %q", lines[0])
	}
	if lines[1] != "apply: done in 1.235s" {
		t.Errorf("end line = %q", lines[1])
	}
}
