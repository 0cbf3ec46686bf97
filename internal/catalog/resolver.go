// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package catalog

import (
	"context"

	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/extmgr/internal/extension"
)

// Releases returns every release of id advertised by the catalogs, in
// manifest order. Repository entries contribute their full history; inline
// entries contribute one release whose source is the manifest URL. Sources
// that fail are skipped, so the result may be empty.
func (a *Aggregator) Releases(ctx context.Context, id string) ([]extension.Release, error) {
	docs := a.documents(ctx)

	perManifest := make([][]extension.Release, len(docs))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		repoReleases := make([][]extension.Release, len(doc.Repos))
		var rg errgroup.Group
		for j, ref := range doc.Repos {
			if ref.ID != id {
				continue
			}
			rg.Go(func() error {
				rels, err := a.github.Releases(ctx, ref)
				if err != nil {
					a.skip(ctx, StageReleases, err, "extension", id, "repo", ref.Slug())
					return nil
				}
				repoReleases[j] = rels
				return nil
			})
		}
		g.Go(func() error {
			_ = rg.Wait()
			var rels []extension.Release
			for _, r := range repoReleases {
				rels = append(rels, r...)
			}
			for _, entry := range doc.Extensions {
				if entry.ID == id {
					rels = append(rels, entry.Release(a.manifests[i]))
				}
			}
			perManifest[i] = rels
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, oops.Code(extension.CodeFetchFailed).Wrap(err)
	}

	out := []extension.Release{}
	for _, rels := range perManifest {
		out = append(out, rels...)
	}
	return out, nil
}

// Release returns the catalog release of id published by sourceRepo at
// archive. It fails with ErrReleaseNotFound when no catalog advertises it.
func (a *Aggregator) Release(ctx context.Context, id, sourceRepo, archive string) (*extension.Release, error) {
	releases, err := a.Releases(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, r := range releases {
		if r.Matches(sourceRepo, archive) {
			return &r, nil
		}
	}
	return nil, oops.Code(extension.CodeReleaseNotFound).
		With("extension", id).
		With("source_repo", sourceRepo).
		With("archive", archive).
		Wrap(extension.ErrReleaseNotFound)
}
