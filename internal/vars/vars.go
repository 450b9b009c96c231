// Package vars holds build metadata, set through -ldflags "-X" at release
// time and filled from the embedded VCS stamp for plain go builds.
package vars

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"time"
)

// License of the project
const License = "AGPL-3.0"

var (
	// Name of the service
	Name = "RegionScan"

	// Version is the release tag, "dev" for local builds
	Version = "dev"

	// Commit is the git SHA the binary was built from
	Commit = "unknown"

	// Revision is the commit count of the release
	Revision = 0

	// BuildTime is the build start time, UTC
	BuildTime = time.Unix(0, 0).UTC()

	// URL of the repository
	URL = "https://github.com/woozymasta/regionscan"

	// string forms for -X, parsed in init
	_revision  string
	_buildTime string
)

// BuildInfo is the payload of /api/version.
type BuildInfo struct {
	BuildTime   time.Time `json:"build_time"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	CommitShort string    `json:"commit_short,omitempty"`
	URL         string    `json:"url,omitempty"`
	License     string    `json:"license,omitempty"`
	Revision    int       `json:"revision,omitempty"`
}

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}

	if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
		BuildTime = t.UTC()
	}

	if Commit == "unknown" {
		stampFromModule()
	}
}

// stampFromModule takes commit and time from the VCS settings the go tool
// embeds when no ldflags were given.
func stampFromModule() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			Commit = s.Value
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil && _buildTime == "" {
				BuildTime = t.UTC()
			}
		}
	}
}

// Print writes the build information for --version.
func Print() {
	fmt.Printf("%s %s (%s, rev %d, built %s)\n%s\nlicense %s, binary %s\n",
		Name, Version, CommitShort(), Revision, BuildTime.Format(time.RFC3339), URL, License, os.Args[0])
}

// Info returns the current build metadata.
func Info() BuildInfo {
	return BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      Commit,
		CommitShort: CommitShort(),
		Revision:    Revision,
		BuildTime:   BuildTime,
		URL:         URL,
		License:     License,
	}
}

// UserAgent returns the User-Agent sent on outbound requests that are not
// required to impersonate a game client, e.g. "RegionScan/v1.2.3 (+https://...)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (+%s)", Name, Version, URL)
}

// CommitShort returns the first 7 characters of the commit.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
