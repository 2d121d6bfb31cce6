// Package version exposes build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string    `json:"buildDate" yaml:"buildDate"`
	GoVersion string    `json:"goVersion" yaml:"goVersion"`
	Platform  string    `json:"platform" yaml:"platform"`
	BuildTime time.Time `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
}

func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		info.BuildTime = t
	}
	return info
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("reauth %s (commit %s, built %s, %s %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}

// UserAgent is sent on every API request.
func UserAgent() string {
	return "reauth/" + Version
}
