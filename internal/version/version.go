// Package version reports what build of the mirror backend is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped with -ldflags "-X github.com/soyeahso/mirror/internal/version.Version=..."
// at release time. Commit falls back to the VCS revision Go embeds.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

// Current returns the stamped build values, filling gaps from the module's
// embedded build info.
func Current() Build {
	b := Build{Version: Version, Commit: Commit, Date: Date}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = fromSettings(b, info.Settings)
	}
	return b
}

func fromSettings(b Build, settings []debug.BuildSetting) Build {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

// ShortCommit is the commit abbreviated to seven characters.
func (b Build) ShortCommit() string {
	c := b.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	if b.Dirty {
		c += "-dirty"
	}
	return c
}

func (b Build) String() string {
	return fmt.Sprintf("mirror %s (commit: %s, built: %s, %s/%s)",
		b.Version, b.ShortCommit(), b.Date, runtime.GOOS, runtime.GOARCH)
}

// Info returns the one-line description printed by `mirror version`.
func Info() string {
	return Current().String()
}

// UserAgent is sent on outbound requests to the weather and speech APIs.
func UserAgent() string {
	return "mirror/" + Version
}
