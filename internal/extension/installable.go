// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension

import (
	"strings"
)

// NotInstalledHash is the hash reported by an extension without an installed release.
const NotInstalledHash = "not-installed"

// Installable is the unit the installer operates on.
type Installable struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	ShortDescription string   `json:"short_description,omitempty"`
	Icon             string   `json:"icon,omitempty"`
	IconURL          string   `json:"icon_url,omitempty"`
	Dependencies     []string `json:"dependencies"`
	AdminOnly        bool     `json:"is_admin_only"`
	Stars            int      `json:"stars"`
	LatestRelease    *Release `json:"latest_release,omitempty"`
	InstalledRelease *Release `json:"installed_release,omitempty"`
}

// Hash returns the content hash addressing the installed release.
// An explicit release hash wins; otherwise the archive URL is digested.
func (e *Installable) Hash() string {
	if e.InstalledRelease == nil {
		return NotInstalledHash
	}
	if e.InstalledRelease.Hash != "" {
		return strings.ToLower(e.InstalledRelease.Hash)
	}
	return HashString(e.InstalledRelease.Archive)
}

// Installed reports whether a release has been installed.
func (e *Installable) Installed() bool {
	return e.InstalledRelease != nil
}

// HasUpdate reports whether the latest known release is newer than the
// installed one. Tags that are not semantic versions fall back to comparing
// archive locations.
func (e *Installable) HasUpdate() bool {
	if e.LatestRelease == nil || e.InstalledRelease == nil {
		return false
	}
	latest, okL := e.LatestRelease.SemVer()
	installed, okI := e.InstalledRelease.SemVer()
	if okL && okI {
		return latest.GreaterThan(installed)
	}
	return e.LatestRelease.Archive != e.InstalledRelease.Archive
}

// ApplyDescriptor carries display fields from an extracted descriptor.
func (e *Installable) ApplyDescriptor(d *Descriptor) {
	if d == nil {
		return
	}
	if d.Name != "" {
		e.Name = d.Name
	}
	if d.ShortDescription != "" {
		e.ShortDescription = d.ShortDescription
	}
	if d.Icon != "" {
		e.Icon = d.Icon
	}
	if e.InstalledRelease != nil && d.Tile != "" {
		e.IconURL = IconURL(e.InstalledRelease.SourceRepo, d.Tile)
	}
}

// IconURL maps a descriptor tile path onto the raw file URL of its GitHub
// repository. The first two path elements ("/<ext>/") are dropped.
func IconURL(sourceRepo, tile string) string {
	if tile == "" || sourceRepo == "" || strings.Contains(sourceRepo, "://") {
		return ""
	}
	parts := strings.Split(tile, "/")
	if len(parts) < 2 {
		return ""
	}
	tail := strings.Join(parts[2:], "/")
	return "https://github.com/" + sourceRepo + "/raw/main/" + tail
}
