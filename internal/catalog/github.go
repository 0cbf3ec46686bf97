// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package catalog

import (
	"context"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/extension"
)

// Default GitHub endpoints.
const (
	DefaultGitHubAPI = "https://api.github.com"
	DefaultGitHubRaw = "https://raw.githubusercontent.com"
)

// GitHub resolves extension metadata published in GitHub repositories.
type GitHub struct {
	client  *Client
	apiBase string
	rawBase string
}

// NewGitHub creates a GitHub resolver. Empty bases select the public endpoints.
func NewGitHub(client *Client, apiBase, rawBase string) *GitHub {
	if apiBase == "" {
		apiBase = DefaultGitHubAPI
	}
	if rawBase == "" {
		rawBase = DefaultGitHubRaw
	}
	return &GitHub{
		client:  client,
		apiBase: strings.TrimSuffix(apiBase, "/"),
		rawBase: strings.TrimSuffix(rawBase, "/"),
	}
}

func (g *GitHub) repoURL(ref RepoRef, suffix ...string) string {
	parts := append([]string{g.apiBase, "repos", url.PathEscape(ref.Organisation), url.PathEscape(ref.Repository)}, suffix...)
	return strings.Join(parts, "/")
}

func (g *GitHub) repo(ctx context.Context, ref RepoRef) (*repoInfo, error) {
	var info repoInfo
	if err := g.client.GetJSON(ctx, g.repoURL(ref), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (g *GitHub) latestRelease(ctx context.Context, ref RepoRef) (*releaseInfo, error) {
	var info releaseInfo
	if err := g.client.GetJSON(ctx, g.repoURL(ref, "releases", "latest"), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Releases returns the full release history of the repository, newest first.
// Draft releases are omitted.
func (g *GitHub) Releases(ctx context.Context, ref RepoRef) ([]extension.Release, error) {
	var infos []releaseInfo
	if err := g.client.GetJSON(ctx, g.repoURL(ref, "releases"), &infos); err != nil {
		return nil, err
	}
	releases := make([]extension.Release, 0, len(infos))
	for _, r := range infos {
		if r.Draft {
			continue
		}
		releases = append(releases, r.release(ref.Slug()))
	}
	extension.SortReleases(releases)
	return releases, nil
}

// Descriptor fetches config.json from the repository's branch.
func (g *GitHub) Descriptor(ctx context.Context, ref RepoRef, branch string) (*extension.Descriptor, error) {
	u := strings.Join([]string{
		g.rawBase, url.PathEscape(ref.Organisation), url.PathEscape(ref.Repository),
		url.PathEscape(branch), extension.DescriptorFile,
	}, "/")
	data, err := g.client.GetBytes(ctx, u)
	if err != nil {
		return nil, err
	}
	d, err := extension.ParseDescriptor(data)
	if err != nil {
		return nil, oops.With("url", u).Wrap(err)
	}
	return d, nil
}

// Installable resolves ref into an installable extension from the
// repository metadata, its latest release and its descriptor.
func (g *GitHub) Installable(ctx context.Context, ref RepoRef) (*extension.Installable, error) {
	info, err := g.repo(ctx, ref)
	if err != nil {
		return nil, err
	}
	latest, err := g.latestRelease(ctx, ref)
	if err != nil {
		return nil, err
	}
	branch := info.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	desc, err := g.Descriptor(ctx, ref, branch)
	if err != nil {
		return nil, err
	}

	rel := latest.release(ref.Slug())
	ext := &extension.Installable{
		ID:               ref.ID,
		Name:             desc.Name,
		ShortDescription: desc.ShortDescription,
		Icon:             desc.Icon,
		IconURL:          extension.IconURL(ref.Slug(), desc.Tile),
		Dependencies:     []string{},
		Stars:            info.StargazersCount,
		LatestRelease:    &rel,
	}
	if ext.Name == "" {
		ext.Name = info.Name
	}
	if ext.ShortDescription == "" {
		ext.ShortDescription = info.Description
	}
	return ext, nil
}
