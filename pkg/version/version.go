// Package version derives the build version from VCS metadata.
// An -ldflags override takes priority; "dev" is the fallback for
// builds without build info (go test, non-git checkouts).
package version

import "runtime/debug"

// AppName is used in version strings and logs.
const AppName = "groundline"

// commitOverride is injected via -ldflags for container builds where
// .git is unavailable.
var commitOverride string

// GitCommit is the short (8 char) commit hash, or "dev".
var GitCommit = resolveCommit()

func resolveCommit() string {
	commit := commitOverride
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
					break
				}
			}
		}
	}
	if commit == "" {
		return "dev"
	}
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return commit
}

// Full returns "groundline/<commit>" for logs and user-agent strings.
func Full() string {
	return AppName + "/" + GitCommit
}
