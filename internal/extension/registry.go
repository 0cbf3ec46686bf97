// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// Visibility answers the enablement questions the registry needs.
type Visibility interface {
	// IsDisabled reports whether id must not be loaded at all.
	IsDisabled(id string) bool
	// IsAdminOnly reports whether id is restricted to admins.
	IsAdminOnly(id string) bool
	// UpgradeHash returns the hash of a newer installed copy of id, if any.
	UpgradeHash(id string) (string, bool)
}

// InstallRecords reads persisted install metadata.
type InstallRecords interface {
	// Get returns the installed extension or ErrNotFound.
	Get(ctx context.Context, id string) (*Installable, error)
}

// Registry enumerates extensions present on disk.
type Registry struct {
	layout     Layout
	visibility Visibility
	records    InstallRecords
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithInstallRecords sets the metadata source used by Installable.
func WithInstallRecords(r InstallRecords) RegistryOption {
	return func(reg *Registry) {
		reg.records = r
	}
}

// NewRegistry creates a registry over the extensions directory of layout.
func NewRegistry(layout Layout, visibility Visibility, opts ...RegistryOption) *Registry {
	r := &Registry{
		layout:     layout,
		visibility: visibility,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extensions lists every enabled extension folder, valid or not.
// Folders whose descriptor cannot be read are listed with Valid=false.
func (r *Registry) Extensions(_ context.Context) ([]*Extension, error) {
	ids, err := r.folders()
	if err != nil {
		return nil, err
	}

	out := make([]*Extension, 0, len(ids))
	for _, id := range ids {
		if r.visibility != nil && r.visibility.IsDisabled(id) {
			continue
		}
		out = append(out, r.load(id))
	}
	return out, nil
}

// Valid lists only the extensions whose descriptor loaded.
func (r *Registry) Valid(ctx context.Context) ([]*Extension, error) {
	all, err := r.Extensions(ctx)
	if err != nil {
		return nil, err
	}
	valid := all[:0]
	for _, ext := range all {
		if ext.Valid {
			valid = append(valid, ext)
		}
	}
	return valid, nil
}

// Get returns a single enabled extension.
func (r *Registry) Get(_ context.Context, id string) (*Extension, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if r.visibility != nil && r.visibility.IsDisabled(id) {
		return nil, oops.Code(CodeNotFound).With("extension", id).Wrap(ErrNotFound)
	}
	info, err := os.Stat(r.layout.ExtensionDir(id))
	if err != nil || !info.IsDir() {
		return nil, oops.Code(CodeNotFound).With("extension", id).Wrap(ErrNotFound)
	}
	return r.load(id), nil
}

// Installable builds installer views of the valid extensions, attaching the
// persisted install record when one exists.
func (r *Registry) Installable(ctx context.Context) ([]*Installable, error) {
	valid, err := r.Valid(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Installable, 0, len(valid))
	for _, ext := range valid {
		inst := &Installable{
			ID:               ext.ID,
			Name:             ext.Name,
			ShortDescription: ext.ShortDescription,
			AdminOnly:        ext.AdminOnly,
			Dependencies:     []string{},
		}
		if r.records != nil {
			rec, err := r.records.Get(ctx, ext.ID)
			switch {
			case err == nil:
				inst.InstalledRelease = rec.InstalledRelease
				inst.Icon = rec.Icon
				inst.IconURL = rec.IconURL
				inst.Dependencies = rec.Dependencies
			case errors.Is(err, ErrNotFound):
			default:
				return nil, oops.With("extension", ext.ID).Wrap(err)
			}
		}
		out = append(out, inst)
	}
	return out, nil
}

// HasInstalledVersion reports whether the default copy of id was installed
// by the manager rather than shipped with the host.
func (r *Registry) HasInstalledVersion(id string) bool {
	d, err := LoadDescriptor(r.layout.ExtensionDir(id))
	if err != nil {
		return false
	}
	return d.IsInstalled
}

func (r *Registry) folders() ([]string, error) {
	entries, err := os.ReadDir(r.layout.ExtensionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No extensions directory
		}
		return nil, oops.Code(CodeFilesystem).With("path", r.layout.ExtensionsDir()).Wrap(err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		// Scratch directories used while publishing start with a dot.
		if !entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Registry) load(id string) *Extension {
	ext := &Extension{ID: id}
	if r.visibility != nil {
		if hash, ok := r.visibility.UpgradeHash(id); ok {
			ext.Hash = hash
		}
	}

	d, err := LoadDescriptor(r.layout.ExtensionDir(id))
	if err != nil {
		slog.Warn("extension descriptor unreadable",
			"extension", id,
			"error", err)
		return ext
	}

	ext.Valid = true
	ext.applyDescriptor(d)
	if r.visibility != nil {
		ext.AdminOnly = r.visibility.IsAdminOnly(id)
	}
	return ext
}
