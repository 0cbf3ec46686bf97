// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package catalog fetches remote extension catalogs and resolves the
// releases they advertise.
package catalog

import "github.com/holomush/extmgr/internal/extension"

// Document is a remote catalog manifest.
type Document struct {
	Repos      []RepoRef `json:"repos,omitempty" jsonschema:"description=Extensions resolved from a GitHub repository"`
	Extensions []Entry   `json:"extensions,omitempty" jsonschema:"description=Self-describing extension releases"`
}

// RepoRef points at a GitHub repository publishing an extension.
type RepoRef struct {
	ID           string `json:"id" jsonschema:"pattern=^[a-zA-Z0-9][a-zA-Z0-9_-]*$"`
	Organisation string `json:"organisation" jsonschema:"minLength=1"`
	Repository   string `json:"repository" jsonschema:"minLength=1"`
}

// Slug returns "org/repo".
func (r RepoRef) Slug() string {
	return r.Organisation + "/" + r.Repository
}

// Entry is an inline catalog release.
type Entry struct {
	ID               string   `json:"id" jsonschema:"pattern=^[a-zA-Z0-9][a-zA-Z0-9_-]*$"`
	Name             string   `json:"name" jsonschema:"minLength=1"`
	Version          string   `json:"version" jsonschema:"minLength=1"`
	Archive          string   `json:"archive" jsonschema:"format=uri"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	Icon             string   `json:"icon,omitempty"`
	Hash             string   `json:"hash,omitempty" jsonschema:"pattern=^([a-fA-F0-9]{64})?$"`
	Dependencies     []string `json:"dependencies,omitempty"`
	Details          string   `json:"details,omitempty"`
	HTMLURL          string   `json:"htmlUrl,omitempty"`
}

// Release converts the entry into a release published by manifestURL.
func (e Entry) Release(manifestURL string) extension.Release {
	return extension.Release{
		Name:        e.Name,
		Version:     e.Version,
		Archive:     e.Archive,
		SourceRepo:  manifestURL,
		Hash:        e.Hash,
		HTMLURL:     e.HTMLURL,
		Description: e.ShortDescription,
		DetailsHTML: e.Details,
	}
}

// Installable converts the entry into an installable extension.
func (e Entry) Installable(manifestURL string) *extension.Installable {
	rel := e.Release(manifestURL)
	deps := e.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return &extension.Installable{
		ID:               e.ID,
		Name:             e.Name,
		ShortDescription: e.ShortDescription,
		Icon:             e.Icon,
		Dependencies:     deps,
		LatestRelease:    &rel,
	}
}

// repoInfo is the subset of the GitHub repository resource in use.
type repoInfo struct {
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	HTMLURL         string `json:"html_url"`
	DefaultBranch   string `json:"default_branch"`
	StargazersCount int    `json:"stargazers_count"`
}

// releaseInfo is the subset of the GitHub release resource in use.
type releaseInfo struct {
	Name       string `json:"name"`
	TagName    string `json:"tag_name"`
	ZipballURL string `json:"zipball_url"`
	HTMLURL    string `json:"html_url"`
	Body       string `json:"body"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

func (r releaseInfo) release(slug string) extension.Release {
	name := r.Name
	if name == "" {
		name = r.TagName
	}
	return extension.Release{
		Name:        name,
		Version:     r.TagName,
		Archive:     r.ZipballURL,
		SourceRepo:  slug,
		HTMLURL:     r.HTMLURL,
		Description: r.Body,
	}
}
