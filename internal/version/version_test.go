package version

import "testing"

func TestString(t *testing.T) {
	orig := [3]string{Version, GitSHA, BuildTime}
	defer func() { Version, GitSHA, BuildTime = orig[0], orig[1], orig[2] }()

	Version, GitSHA, BuildTime = "0.4.1", "abc1234", "2026-10-19T12:00:00Z"
	if got, want := String(), "splatgeo 0.4.1 (abc1234, built 2026-10-19T12:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Generator(); got != "splatgeo 0.4.1" {
		t.Errorf("Generator() = %q", got)
	}
}
