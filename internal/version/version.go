// Package version tracks build metadata for the application.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Info describes build metadata for the application.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

var (
	info      = Info{Version: "dev"}
	infoMutex sync.RWMutex
)

// Set updates the version metadata exposed by the application. Missing
// commit and build time are filled from the module build info when the
// binary was built from a VCS checkout.
func Set(v Info) {
	if v.Version == "" {
		v.Version = "dev"
	}
	if v.Commit == "" || v.BuildTime == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			v = fillFromSettings(v, bi.Settings)
		}
	}

	infoMutex.Lock()
	defer infoMutex.Unlock()
	info = v
}

// Current returns the currently configured build metadata.
func Current() Info {
	infoMutex.RLock()
	defer infoMutex.RUnlock()
	return info
}

// String formats the metadata for --version output.
func (i Info) String() string {
	commit := i.Commit
	if commit == "" {
		commit = "unknown"
	}
	built := i.BuildTime
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("hwbench %s (commit %s, built %s)", i.Version, commit, built)
}

func fillFromSettings(v Info, settings []debug.BuildSetting) Info {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if v.Commit == "" {
				v.Commit = setting.Value
				if len(v.Commit) > 12 {
					v.Commit = v.Commit[:12]
				}
			}
		case "vcs.time":
			if v.BuildTime == "" {
				v.BuildTime = setting.Value
			}
		}
	}
	return v
}
