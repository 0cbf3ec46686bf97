// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Release is one fetchable version of an extension.
type Release struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Archive     string `json:"archive"`
	SourceRepo  string `json:"source_repo"`
	Hash        string `json:"hash,omitempty"`
	HTMLURL     string `json:"html_url,omitempty"`
	Description string `json:"description,omitempty"`
	DetailsHTML string `json:"details_html,omitempty"`
}

// Matches reports whether r was published by sourceRepo at archive.
func (r Release) Matches(sourceRepo, archive string) bool {
	return r.SourceRepo == sourceRepo && r.Archive == archive
}

// SemVer parses the release tag. A leading "v" is accepted.
func (r Release) SemVer() (*semver.Version, bool) {
	v, err := semver.NewVersion(strings.TrimSpace(r.Version))
	if err != nil {
		return nil, false
	}
	return v, true
}

// SortReleases orders releases newest first. Releases whose tag is not a
// semantic version keep their relative order after all versioned ones.
func SortReleases(releases []Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		vi, okI := releases[i].SemVer()
		vj, okJ := releases[j].SemVer()
		switch {
		case okI && okJ:
			return vi.GreaterThan(vj)
		case okI:
			return true
		default:
			return false
		}
	})
}
