package version

import (
	"runtime"
	"testing"

	"github.com/matryer/is"
)

func TestGetDefaults(t *testing.T) {
	is := is.New(t)
	info := Get()
	is.Equal(info.Version, "dev")
	is.Equal(info.GitCommit, "unknown")
	is.Equal(info.GoVersion, runtime.Version())
}

func TestStringUsesStampedValues(t *testing.T) {
	is := is.New(t)

	orig := Version
	Version = "v1.2.0"
	defer func() { Version = orig }()

	is.Equal(Info{Version: Version, GitCommit: "abc123", BuildTime: "2026-01-01T00:00:00Z", GoVersion: "go1.24.0"}.String(),
		"lv-go v1.2.0 (commit abc123, built 2026-01-01T00:00:00Z, go1.24.0)")
	is.Equal(Get().Version, "v1.2.0")
}
