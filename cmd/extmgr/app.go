// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/catalog"
	"github.com/holomush/extmgr/internal/config"
	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/installer"
	"github.com/holomush/extmgr/internal/locks"
	"github.com/holomush/extmgr/internal/routing"
	"github.com/holomush/extmgr/internal/store"
	"github.com/holomush/extmgr/internal/xdg"
)

// app is the wired set of components behind every subcommand.
type app struct {
	cfg        *config.Config
	layout     extension.Layout
	state      *routing.State
	aggregator *catalog.Aggregator
	records    store.InstallStore
	registry   *extension.Registry
	installer  *installer.Installer
	closers    []func()
}

func newApp(ctx context.Context, cfg *config.Config, deps *Deps) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		layout: cfg.Layout(),
		state:  routing.NewState(cfg.Lists()),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	for _, dir := range []string{a.layout.ExtensionsDir(), a.layout.UpgradesDir(), cfg.Paths.Data} {
		if err := xdg.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	opts := []catalog.ClientOption{
		catalog.WithHTTPClient(deps.HTTPClient),
		catalog.WithTimeouts(cfg.Catalog.RequestTimeout, cfg.Catalog.ArchiveTimeout),
		catalog.WithRetries(uint64(max(cfg.Catalog.Retries, 0)), 0),
		catalog.WithUserAgent("extmgr/" + version),
	}
	if cfg.GitHub.Token != "" {
		opts = append(opts, catalog.WithToken(cfg.GitHub.Token, cfg.GitHub.TokenHosts...))
	}
	client, err := catalog.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	github := catalog.NewGitHub(client, cfg.GitHub.APIURL, cfg.GitHub.RawURL)
	a.aggregator = catalog.NewAggregator(client, github, cfg.Catalog.Manifests)

	records, closeStore, err := deps.StoreFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.records = records
	a.closers = append(a.closers, closeStore)

	locker, closeLocker, err := deps.LockerFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLocker)

	a.registry = extension.NewRegistry(a.layout, a.state, extension.WithInstallRecords(records))
	a.installer = installer.New(a.layout, client, a.state,
		installer.WithLocker(locker),
		installer.WithStore(records))
	return a, nil
}

// Close releases the store and locker connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] != nil {
			a.closers[i]()
		}
	}
	a.closers = nil
}

// restoreUpgrades re-registers upgrade routes for installed releases whose
// hash-addressed copy is still on disk, so a restart keeps serving the
// installed code.
func (a *app) restoreUpgrades(ctx context.Context) error {
	records, err := a.records.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.InstalledRelease == nil {
			continue
		}
		hash := rec.Hash()
		if _, ok := a.state.UpgradeHash(rec.ID); ok {
			continue
		}
		if _, err := os.Stat(a.layout.StagedModuleDir(rec.ID, hash)); err != nil {
			slog.WarnContext(ctx, "install record without staged copy", "extension", rec.ID, "hash", hash)
			continue
		}
		a.state.RegisterUpgrade(rec.ID, hash)
	}
	return nil
}

// resolveRelease picks the release to install: the exact archive when one
// is named, else the requested version, else the newest release.
func (a *app) resolveRelease(ctx context.Context, id, versionWanted, sourceRepo, archive string) (*extension.Release, error) {
	if archive != "" {
		return a.aggregator.Release(ctx, id, sourceRepo, archive)
	}
	releases, err := a.aggregator.Releases(ctx, id)
	if err != nil {
		return nil, err
	}
	extension.SortReleases(releases)
	for _, r := range releases {
		if versionWanted == "" || r.Version == versionWanted {
			return &r, nil
		}
	}
	return nil, oops.Code(extension.CodeReleaseNotFound).
		With("extension", id).
		With("version", versionWanted).
		Wrap(extension.ErrReleaseNotFound)
}

// findInstallable returns the catalog entry of id.
func (a *app) findInstallable(ctx context.Context, id string) (*extension.Installable, error) {
	exts, err := a.aggregator.Installable(ctx)
	if err != nil {
		return nil, err
	}
	for _, ext := range exts {
		if ext.ID == id {
			return ext, nil
		}
	}
	return nil, oops.Code(extension.CodeNotFound).With("extension", id).Wrap(extension.ErrNotFound)
}

func openStore(ctx context.Context, cfg *config.Config) (store.InstallStore, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := store.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(pool), pool.Close, nil
	case config.DriverRedis:
		client, err := store.OpenRedis(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedis(client, cfg.Store.RedisKey), func() { _ = client.Close() }, nil
	case config.DriverMemory:
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, oops.Code(config.CodeInvalidConfig).Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openLocker(ctx context.Context, cfg *config.Config) (locks.Locker, func(), error) {
	switch cfg.Locks.Driver {
	case config.DriverRedis:
		client, err := store.OpenRedis(ctx, cfg.Locks.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return locks.NewRedis(client, locks.WithTTL(cfg.Locks.TTL)), func() { _ = client.Close() }, nil
	case config.DriverLocal:
		return locks.NewLocal(), func() {}, nil
	default:
		return nil, nil, oops.Code(config.CodeInvalidConfig).Errorf("unknown lock driver %q", cfg.Locks.Driver)
	}
}

// errNoManifests is returned by catalog commands without configured catalogs.
var errNoManifests = errors.New("no catalog manifests configured (use --manifest or catalog.manifests)")
