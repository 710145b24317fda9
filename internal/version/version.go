package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/bazaar/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/bazaar/internal/version.Commit=abc123
//	  -X github.com/soyeahso/bazaar/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Date     string `json:"date"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// Current returns the build description. Values not set through ldflags
// are filled from the module build info when the binary carries it, as
// binaries built with go install do.
func Current() Build {
	b := Build{
		Version:  Version,
		Commit:   Commit,
		Date:     Date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	return merge(b, info)
}

func merge(b Build, info *debug.BuildInfo) Build {
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		}
	}
	return b
}

// Info returns a formatted version string.
func Info() string {
	b := Current()
	return fmt.Sprintf("bazaar %s (commit: %s, built: %s, %s, %s)",
		b.Version, short(b.Commit), b.Date, b.Go, b.Platform)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
