// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package installer downloads, verifies and publishes extension releases.
package installer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/locks"
	"github.com/holomush/extmgr/internal/logging"
	"github.com/holomush/extmgr/internal/routing"
	"github.com/holomush/extmgr/internal/store"
	"github.com/holomush/extmgr/pkg/errutil"
)

var tracer = otel.Tracer("extmgr/installer")

// Downloader fetches a release archive to a local path.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// Upgrades records which hash-addressed copy serves each extension.
type Upgrades interface {
	RegisterUpgrade(id, hash string) *routing.Snapshot
	RemoveUpgrade(id string) *routing.Snapshot
}

// Result describes a completed install.
type Result struct {
	AttemptID string
	ID        string
	Hash      string
	// Verified is false when the release declared no hash to check.
	Verified bool
	Digest   string
	Path     string
	// Extension is the installed extension with display fields taken from
	// its descriptor.
	Extension *extension.Installable
	// MetadataErr is set when the install succeeded but its record could not
	// be persisted.
	MetadataErr error
}

// Installer runs install and uninstall operations, one at a time per extension.
type Installer struct {
	layout     extension.Layout
	downloader Downloader
	upgrades   Upgrades
	locker     locks.Locker
	records    store.InstallStore
	maxSize    int64
}

// Option configures an Installer.
type Option func(*Installer)

// WithLocker replaces the default in-process locker.
func WithLocker(l locks.Locker) Option {
	return func(i *Installer) { i.locker = l }
}

// WithStore persists install records.
func WithStore(s store.InstallStore) Option {
	return func(i *Installer) { i.records = s }
}

// WithMaxExtractedSize bounds the uncompressed archive size.
func WithMaxExtractedSize(n int64) Option {
	return func(i *Installer) {
		if n > 0 {
			i.maxSize = n
		}
	}
}

// New creates an Installer.
func New(layout extension.Layout, downloader Downloader, upgrades Upgrades, opts ...Option) *Installer {
	i := &Installer{
		layout:     layout,
		downloader: downloader,
		upgrades:   upgrades,
		locker:     locks.NewLocal(),
		maxSize:    DefaultMaxExtractedSize,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install publishes release as the active copy of ext. The default copy of
// the extension is untouched unless every step before publishing succeeds,
// and the upgrade is registered only after publishing.
func (i *Installer) Install(ctx context.Context, ext *extension.Installable, release extension.Release) (result *Result, err error) {
	if err := extension.ValidateID(ext.ID); err != nil {
		return nil, err
	}

	start := time.Now()
	attempt := ulid.Make().String()
	ctx, span := tracer.Start(ctx, "installer.install", trace.WithAttributes(
		attribute.String("extension", ext.ID),
		attribute.String("version", release.Version),
		attribute.String("attempt", attempt),
	))
	defer func() {
		InstallDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			Installs.WithLabelValues(ResultFailure).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			Installs.WithLabelValues(ResultSuccess).Inc()
		}
		span.End()
	}()

	unlock, err := i.lock(ctx, ext.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return i.install(ctx, attempt, ext, release)
}

func (i *Installer) lock(ctx context.Context, id string) (func(), error) {
	unlock, err := i.locker.Lock(ctx, id)
	if err != nil {
		return nil, oops.Code(locks.CodeLockFailed).With("extension", id).Wrap(err)
	}
	return unlock, nil
}

func (i *Installer) install(ctx context.Context, attempt string, ext *extension.Installable, release extension.Release) (*Result, error) {
	id := ext.ID
	ctx = logging.With(ctx, "extension", id, "version", release.Version, "attempt", attempt)

	archive := i.layout.ArchivePath(id)
	if err := os.MkdirAll(filepath.Dir(archive), 0o750); err != nil {
		return nil, oops.Code(extension.CodeFilesystem).With("path", archive).Wrap(err)
	}

	// Download and check the archive digest.
	verified, digest, err := i.fetch(ctx, release, archive)
	if err != nil {
		_ = os.Remove(archive)
		return nil, oops.With("extension", id).Wrap(err)
	}

	inst := *ext
	installed := release
	inst.InstalledRelease = &installed
	hash := inst.Hash()

	// Unpack into a scratch directory the registry and router never look at.
	scratch := filepath.Join(i.layout.UpgradesDir(), "."+id+"-"+attempt)
	defer func() { _ = os.RemoveAll(scratch) }()
	moduleDir, err := i.extract(ctx, archive, scratch, id)
	if err != nil {
		_ = os.Remove(archive)
		return nil, oops.With("extension", id).Wrap(err)
	}

	// Mark installed and carry display fields forward.
	desc, err := extension.MarkInstalled(moduleDir)
	if err != nil {
		_ = os.Remove(archive)
		return nil, oops.With("extension", id).Wrap(err)
	}
	inst.ApplyDescriptor(desc)

	if err := i.publish(ctx, id, hash, attempt, scratch); err != nil {
		return nil, oops.With("extension", id).Wrap(err)
	}

	// Divert API traffic to the new copy.
	snap := i.upgrades.RegisterUpgrade(id, hash)

	result := &Result{
		AttemptID: attempt,
		ID:        id,
		Hash:      hash,
		Verified:  verified,
		Digest:    digest,
		Path:      i.layout.StagedModuleDir(id, hash),
		Extension: &inst,
	}
	if i.records != nil {
		if err := i.records.Upsert(ctx, &inst); err != nil {
			result.MetadataErr = err
			errutil.LogWarn(ctx, slog.Default(), "failed to persist install record", err)
		}
	}

	slog.InfoContext(ctx, "extension installed",
		"hash", hash,
		"verified", verified,
		"routing_version", snap.Version)
	return result, nil
}

func (i *Installer) fetch(ctx context.Context, release extension.Release, archive string) (bool, string, error) {
	ctx, span := tracer.Start(ctx, "installer.download")
	defer span.End()

	if err := i.downloader.Download(ctx, release.Archive, archive); err != nil {
		if errutil.Code(err) == "" {
			err = oops.Code(extension.CodeFetchFailed).With("url", release.Archive).Wrap(err)
		}
		return false, "", err
	}

	verified, digest, err := extension.VerifyFile(archive, release.Hash)
	if err != nil {
		return false, "", err
	}
	if !verified {
		UnverifiedInstalls.Inc()
		slog.WarnContext(ctx, "installing unverified archive: release declares no hash",
			"url", release.Archive,
			"digest", digest)
	}
	return verified, digest, nil
}

func (i *Installer) extract(ctx context.Context, archive, scratch, id string) (string, error) {
	_, span := tracer.Start(ctx, "installer.extract")
	defer span.End()

	unpacked := filepath.Join(scratch, ".unpacked")
	if err := os.MkdirAll(unpacked, 0o750); err != nil {
		return "", oops.Code(extension.CodeFilesystem).With("path", unpacked).Wrap(err)
	}
	if err := extractZip(archive, unpacked, i.maxSize); err != nil {
		return "", err
	}
	root, err := singleRoot(unpacked)
	if err != nil {
		return "", err
	}
	moduleDir := filepath.Join(scratch, id)
	if err := os.Rename(root, moduleDir); err != nil {
		return "", oops.Code(extension.CodeFilesystem).With("path", moduleDir).Wrap(err)
	}
	if err := os.Remove(unpacked); err != nil {
		return "", oops.Code(extension.CodeFilesystem).With("path", unpacked).Wrap(err)
	}
	return moduleDir, nil
}

// publish swaps the new tree into the default location, then into the
// hash-addressed location. Either failure puts both previous copies back, so
// neither the active copy nor a routed staged copy keeps a failed install.
func (i *Installer) publish(ctx context.Context, id, hash, attempt, scratch string) error {
	ctx, span := tracer.Start(ctx, "installer.publish")
	defer span.End()

	extensionsDir := i.layout.ExtensionsDir()
	if err := os.MkdirAll(extensionsDir, 0o750); err != nil {
		return oops.Code(extension.CodeFilesystem).With("path", extensionsDir).Wrap(err)
	}
	next := filepath.Join(extensionsDir, "."+id+"-"+attempt)
	defaultBackup := next + ".old"
	if err := copyTree(filepath.Join(scratch, id), next); err != nil {
		_ = os.RemoveAll(next)
		return oops.Code(extension.CodeFilesystem).With("path", next).Wrapf(err, "copy extracted tree")
	}
	restoreDefault, err := swapDir(next, i.layout.ExtensionDir(id), defaultBackup)
	if err != nil {
		_ = os.RemoveAll(next)
		return err
	}

	stagedBackup := filepath.Join(i.layout.UpgradesDir(), "."+id+"-"+attempt+".old")
	if _, err := swapDir(scratch, i.layout.StagedDir(id, hash), stagedBackup); err != nil {
		if rerr := restoreDefault(); rerr != nil {
			errutil.LogWarn(ctx, slog.Default(), "failed to restore previous copy", rerr, "path", i.layout.ExtensionDir(id))
		}
		return err
	}

	_ = os.RemoveAll(defaultBackup)
	_ = os.RemoveAll(stagedBackup)
	return nil
}

// Uninstall removes every installed copy of id, its cached archive, its
// install record and its upgrade routing entry.
func (i *Installer) Uninstall(ctx context.Context, id string) (err error) {
	if err := extension.ValidateID(id); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "installer.uninstall", trace.WithAttributes(attribute.String("extension", id)))
	defer func() {
		if err != nil {
			Uninstalls.WithLabelValues(ResultFailure).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			Uninstalls.WithLabelValues(ResultSuccess).Inc()
		}
		span.End()
	}()

	unlock, err := i.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	// Stop routing to the hash-addressed copy before it disappears.
	i.upgrades.RemoveUpgrade(id)

	var errs []error
	remove := func(path string) {
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, oops.Code(extension.CodeFilesystem).With("path", path).Wrap(err))
		}
	}
	remove(i.layout.ArchivePath(id))
	remove(i.layout.ExtensionDir(id))
	staged, err := i.layout.StagedDirs(id)
	if err != nil {
		errs = append(errs, err)
	}
	for _, dir := range staged {
		remove(dir)
	}
	if i.records != nil {
		if err := i.records.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return oops.With("extension", id).Wrap(err)
	}

	slog.InfoContext(ctx, "extension uninstalled", "extension", id)
	return nil
}
