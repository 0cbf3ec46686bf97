// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package catalog

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/pkg/errutil"
)

// DefaultConcurrency bounds simultaneous catalog requests.
const DefaultConcurrency = 8

// Aggregator merges the configured catalog manifests into one view.
type Aggregator struct {
	client      *Client
	github      *GitHub
	manifests   []string
	concurrency int
}

// NewAggregator creates an Aggregator over the ordered manifest URLs.
func NewAggregator(client *Client, github *GitHub, manifests []string) *Aggregator {
	return &Aggregator{
		client:      client,
		github:      github,
		manifests:   append([]string(nil), manifests...),
		concurrency: DefaultConcurrency,
	}
}

// Manifests returns the configured manifest URLs.
func (a *Aggregator) Manifests() []string {
	return append([]string(nil), a.manifests...)
}

// FetchDocument downloads and validates one catalog manifest.
func (a *Aggregator) FetchDocument(ctx context.Context, manifestURL string) (*Document, error) {
	data, err := a.client.GetBytes(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, oops.With("url", manifestURL).Wrap(err)
	}
	return doc, nil
}

// documents fetches every manifest concurrently. Result slots follow
// manifest order; a failed manifest leaves a nil slot.
func (a *Aggregator) documents(ctx context.Context) []*Document {
	docs := make([]*Document, len(a.manifests))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, u := range a.manifests {
		g.Go(func() error {
			doc, err := a.FetchDocument(ctx, u)
			if err != nil {
				a.skip(ctx, StageManifest, err, "url", u)
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

// Installable returns every extension advertised by the catalogs. Ids are
// unique; when several sources advertise one id the first in manifest order
// wins, repos before inline entries within a manifest.
func (a *Aggregator) Installable(ctx context.Context) ([]*extension.Installable, error) {
	docs := a.documents(ctx)

	seen := make(map[string]struct{})
	var out []*extension.Installable
	add := func(ext *extension.Installable) {
		if ext == nil {
			return
		}
		if _, dup := seen[ext.ID]; dup {
			return
		}
		seen[ext.ID] = struct{}{}
		out = append(out, ext)
	}
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		for _, ext := range a.resolveRepos(ctx, doc.Repos, seen) {
			add(ext)
		}
		if err := ctx.Err(); err != nil {
			return nil, oops.Code(extension.CodeFetchFailed).Wrap(err)
		}
		for _, entry := range doc.Extensions {
			add(entry.Installable(a.manifests[i]))
		}
	}
	return out, nil
}

// resolveRepos looks up the repository refs of one catalog concurrently.
// Refs whose id is already claimed, or repeated within refs, are not looked
// up. Failed lookups leave a nil slot.
func (a *Aggregator) resolveRepos(ctx context.Context, refs []RepoRef, claimed map[string]struct{}) []*extension.Installable {
	resolved := make([]*extension.Installable, len(refs))
	pending := make(map[string]struct{}, len(refs))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for j, ref := range refs {
		if _, ok := claimed[ref.ID]; ok {
			continue
		}
		if _, ok := pending[ref.ID]; ok {
			continue
		}
		pending[ref.ID] = struct{}{}
		g.Go(func() error {
			ext, err := a.github.Installable(ctx, ref)
			if err != nil {
				a.skip(ctx, StageRepo, err, "extension", ref.ID, "repo", ref.Slug())
				return nil
			}
			resolved[j] = ext
			return nil
		})
	}
	_ = g.Wait()
	return resolved
}

func (a *Aggregator) skip(ctx context.Context, stage string, err error, args ...any) {
	Failures.WithLabelValues(stage).Inc()
	errutil.LogWarn(ctx, slog.Default(), "skipping catalog source", err, append([]any{"stage", stage}, args...)...)
}
