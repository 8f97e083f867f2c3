// Package version reports how the kiln binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X github.com/conneroisu/kiln/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit" yaml:"commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	Modified  bool      `json:"modified" yaml:"modified"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
}

// Get combines the linker-provided variables with the module build info.
func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(Version, GitCommit, BuildTime, bi)
}

func resolve(version, commit, built string, bi *debug.BuildInfo) Info {
	info := Info{
		Version:   version,
		Commit:    commit,
		BuildTime: parseTime(built),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi == nil {
		return info
	}

	var revision, vcsTime string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			vcsTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}

	if info.Commit == "" || info.Commit == "unknown" {
		if revision != "" {
			info.Commit = revision
		}
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseTime(vcsTime)
	}
	if info.Version == "" || info.Version == "dev" {
		switch {
		case bi.Main.Version != "" && bi.Main.Version != "(devel)":
			info.Version = bi.Main.Version
		case len(revision) >= 7:
			info.Version = "dev-" + revision[:7]
		default:
			info.Version = "dev"
		}
	}
	return info
}

// Release reports whether the binary carries a real version.
func (i Info) Release() bool {
	return i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

// Short returns "kiln <version> (<commit>)".
func (i Info) Short() string {
	s := "kiln " + i.Version
	if i.Commit != "unknown" && len(i.Commit) >= 7 && !strings.HasSuffix(i.Version, i.Commit[:7]) {
		s += " (" + i.Commit[:7] + ")"
	}
	if i.Modified {
		s += " (dirty)"
	}
	return s
}

// Detailed returns one "Key: value" line per field.
func (i Info) Detailed() string {
	lines := []string{fmt.Sprintf("Version: %s", i.Version)}
	if i.Commit != "unknown" && i.Commit != "" {
		lines = append(lines, fmt.Sprintf("Commit: %s", i.Commit))
	}
	if !i.BuildTime.IsZero() {
		lines = append(lines, fmt.Sprintf("Built: %s", i.BuildTime.Format(time.RFC3339)))
	}
	lines = append(lines,
		fmt.Sprintf("Go: %s", i.GoVersion),
		fmt.Sprintf("Platform: %s", i.Platform))
	return strings.Join(lines, "\n")
}

func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
