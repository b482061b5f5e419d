package version

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X incident-dispatch/version.Version=... -X incident-dispatch/version.Commit=...".
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info is the build description served at /version.
type Info struct {
	Service  string `json:"service"`
	Version  string `json:"version"`
	Commit   string `json:"commit,omitempty"`
	BuiltAt  string `json:"built_at,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// Get describes the running binary. VCS stamps from the Go toolchain fill in
// whatever the linker flags left empty.
func Get(service string) Info {
	info := Info{
		Service:  service,
		Version:  Version,
		Commit:   Commit,
		BuiltAt:  BuiltAt,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuiltAt == "" {
				info.BuiltAt = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}
