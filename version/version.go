package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set with -ldflags -X.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Release reports whether the build carries a tagged, clean version.
func (i Info) Release() bool {
	return i.Version != "dev" && !i.Dirty && !strings.Contains(i.Version, "dirty")
}

func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Version)
	if i.GitCommit != "" {
		fmt.Fprintf(&b, " (%s", i.GitCommit)
		if i.Dirty {
			b.WriteString("-dirty")
		}
		b.WriteString(")")
	}
	if i.BuildTime != "" {
		fmt.Fprintf(&b, " built %s", i.BuildTime)
	}
	fmt.Fprintf(&b, " %s", i.GoVersion)
	return b.String()
}

// Get merges the link-time variables with the embedded build info.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = shortCommit(s.Value)
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

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
