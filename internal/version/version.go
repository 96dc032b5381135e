// Copyright 2025 The etherealog Authors
// This file is part of the etherealog library.
//
// The etherealog library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The etherealog library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the etherealog library. If not, see <http://www.gnu.org/licenses/>.

// Package version implements reading of build version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/jts13/etherealog/version"
)

const ourPath = "github.com/jts13/etherealog" // Path to our module

// Semantic holds the textual version string for major.minor.patch.
var Semantic = fmt.Sprintf("%d.%d.%d", version.Major, version.Minor, version.Patch)

// WithMeta holds the textual version string including the metadata.
var WithMeta = func() string {
	v := Semantic
	if version.Meta != "" {
		v += "-" + version.Meta
	}
	return v
}()

// WithCommit returns the version string with the short commit hash and date
// appended, where known.
func WithCommit(gitCommit, gitDate string) string {
	vsn := WithMeta
	if len(gitCommit) >= 8 {
		vsn += "-" + gitCommit[:8]
	}
	if (version.Meta != "stable") && (gitDate != "") {
		vsn += "-" + gitDate
	}
	return vsn
}

// Info is the build information reported by the version command and the
// /version endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Engine    string `json:"engine,omitempty"` // go-ethereum module version
}

// Current collects the build information of the running executable.
func Current() Info {
	info := Info{
		Version:   WithMeta,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if vcs, ok := VCS(); ok {
		info.Version = WithCommit(vcs.Commit, vcs.Date)
		info.Commit, info.Date, info.Dirty = vcs.Commit, vcs.Date, vcs.Dirty
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			if dep.Path == "github.com/ethereum/go-ethereum" {
				info.Engine = dep.Version
			}
		}
	}
	return info
}

// String renders the information the way the version command prints it.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintln(&b, "etherealog")
	fmt.Fprintln(&b, "Version:", i.Version)
	if i.Commit != "" {
		fmt.Fprintln(&b, "Git Commit:", i.Commit)
	}
	if i.Date != "" {
		fmt.Fprintln(&b, "Git Commit Date:", i.Date)
	}
	if i.Engine != "" {
		fmt.Fprintln(&b, "go-ethereum:", i.Engine)
	}
	fmt.Fprintln(&b, "Architecture:", i.Arch)
	fmt.Fprintln(&b, "Go Version:", i.GoVersion)
	fmt.Fprintln(&b, "Operating System:", i.OS)
	return b.String()
}
