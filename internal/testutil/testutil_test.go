package testutil

import (
	"errors"
	"fmt"
	"math"
	"os"
	"testing"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
}

func TestAssertNoError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("unexpected error", func(t *testing.T) {
		AssertNoError(t, errors.New("boom"))
	})
	if ok {
		t.Fatal("expected subtest to fail when error is non-nil")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
}

func TestAssertError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("missing expected error", func(t *testing.T) {
		AssertError(t, nil)
	})
	if ok {
		t.Fatal("expected subtest to fail when error is nil")
	}
}

func TestAssertErrorIs(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	AssertErrorIs(t, fmt.Errorf("wrapped: %w", sentinel), sentinel)

	ok := t.Run("different error", func(t *testing.T) {
		AssertErrorIs(t, errors.New("other"), sentinel)
	})
	if ok {
		t.Fatal("expected subtest to fail for an unrelated error")
	}
}

func TestAssertFloatNear(t *testing.T) {
	t.Parallel()

	AssertFloatNear(t, "x", 1.0000001, 1, 1e-6)

	if t.Run("outside tolerance", func(t *testing.T) {
		AssertFloatNear(t, "x", 1.1, 1, 1e-6)
	}) {
		t.Fatal("expected failure outside tolerance")
	}
	if t.Run("NaN", func(t *testing.T) {
		AssertFloatNear(t, "x", math.NaN(), 1, 1)
	}) {
		t.Fatal("expected failure for NaN")
	}
}

func TestAssertFloatsNear(t *testing.T) {
	t.Parallel()

	AssertFloatsNear(t, "v", []float64{1, 2, 3}, []float64{1, 2, 3.0000001}, 1e-6)

	if t.Run("length mismatch", func(t *testing.T) {
		AssertFloatsNear(t, "v", []float64{1, 2}, []float64{1, 2, 3}, 1)
	}) {
		t.Fatal("expected failure on length mismatch")
	}
}

func TestWriteTempFile(t *testing.T) {
	t.Parallel()

	path := WriteTempFile(t, "a.json", []byte(`{}`))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("content = %q, want {}", data)
	}
}
