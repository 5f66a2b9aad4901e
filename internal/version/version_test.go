package version

import (
	"strings"
	"testing"
)

func TestGetVersion_DefaultValues(t *testing.T) {
	origVersion := Version
	defer func() { Version = origVersion }()

	Version = "dev"

	got := GetVersion()
	if got != "dev" {
		t.Errorf("GetVersion() with defaults = %v, want %v", got, "dev")
	}
}

func TestGetVersion_WithLdflags(t *testing.T) {
	origVersion := Version
	defer func() { Version = origVersion }()

	Version = "v0.2.0"

	got := GetVersion()
	if got != "v0.2.0" {
		t.Errorf("GetVersion() with ldflags = %v, want %v", got, "v0.2.0")
	}
}

func TestGetFullVersion(t *testing.T) {
	origVersion := Version
	origGitCommit := GitCommit
	defer func() {
		Version = origVersion
		GitCommit = origGitCommit
	}()

	Version = "v0.2.0"
	GitCommit = "abc1234"

	got := GetFullVersion()
	if !strings.Contains(got, "v0.2.0") {
		t.Errorf("GetFullVersion() = %v, want to contain %v", got, "v0.2.0")
	}
	if !strings.Contains(got, "abc1234") {
		t.Errorf("GetFullVersion() = %v, want to contain %v", got, "abc1234")
	}
}

func TestGetFullVersion_NoCommit(t *testing.T) {
	origVersion := Version
	origGitCommit := GitCommit
	defer func() {
		Version = origVersion
		GitCommit = origGitCommit
	}()

	Version = "v0.2.0"
	GitCommit = "unknown"

	if got := GetFullVersion(); got != "v0.2.0" {
		t.Errorf("GetFullVersion() = %v, want %v", got, "v0.2.0")
	}
}
