package version

import (
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/kbukum/eventkit/version.Version=...".
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Get merges the link-time variables with the VCS stamp of the build.
// Link-time values win.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// Short renders version[-commit][-dirty] with the commit cut to 7 characters.
func (i Info) Short() string {
	var b strings.Builder
	b.WriteString(i.Version)
	if c := i.Commit; c != "" {
		if len(c) > 7 {
			c = c[:7]
		}
		b.WriteString("-" + c)
	}
	if i.Dirty {
		b.WriteString("-dirty")
	}
	return b.String()
}

// String is Short followed by the toolchain and build time when known.
func (i Info) String() string {
	var extra []string
	if i.GoVersion != "" {
		extra = append(extra, i.GoVersion)
	}
	if i.BuildTime != "" {
		extra = append(extra, "built "+i.BuildTime)
	}
	if len(extra) == 0 {
		return i.Short()
	}
	return i.Short() + " (" + strings.Join(extra, ", ") + ")"
}
