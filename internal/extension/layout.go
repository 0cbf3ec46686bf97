// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// DescriptorFile is the per-extension declarative descriptor.
const DescriptorFile = "config.json"

// Directory names under the layout root.
const (
	extensionsDirName = "extensions"
	upgradesDirName   = "upgrades"
)

// maxIDLength bounds extension identifiers.
const maxIDLength = 64

// idPattern keeps identifiers safe to use as a single path element.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateID checks that id is a filesystem-safe extension identifier.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength || !idPattern.MatchString(id) {
		return oops.Code(CodeInvalidID).With("extension", id).
			Errorf("extension id %q must be 1-%d characters of a-z, A-Z, 0-9, '_' or '-'", id, maxIDLength)
	}
	return nil
}

// Layout resolves every on-disk location owned by the manager.
//
//	<Root>/extensions/<id>               default (active) copy
//	<Root>/upgrades/<id>-<hash>/<id>     hash-addressed copy
//	<DataDir>/extensions/<id>.zip        cached release archive
type Layout struct {
	Root    string
	DataDir string
}

// ExtensionsDir is the directory holding default copies.
func (l Layout) ExtensionsDir() string {
	return filepath.Join(l.Root, extensionsDirName)
}

// UpgradesDir is the directory holding hash-addressed copies.
func (l Layout) UpgradesDir() string {
	return filepath.Join(l.Root, upgradesDirName)
}

// ExtensionDir is the default location of an extension.
func (l Layout) ExtensionDir(id string) string {
	return filepath.Join(l.ExtensionsDir(), id)
}

// StagedDir is the hash-addressed container for one version of an extension.
func (l Layout) StagedDir(id, hash string) string {
	return filepath.Join(l.UpgradesDir(), id+"-"+hash)
}

// StagedModuleDir is the extension tree inside StagedDir.
func (l Layout) StagedModuleDir(id, hash string) string {
	return filepath.Join(l.StagedDir(id, hash), id)
}

// ModuleDir resolves the code location for an extension: the default copy
// when hash is empty, otherwise the hash-addressed copy.
func (l Layout) ModuleDir(id, hash string) string {
	if hash == "" {
		return l.ExtensionDir(id)
	}
	return l.StagedModuleDir(id, hash)
}

// ArchivePath is the cached download for an extension.
func (l Layout) ArchivePath(id string) string {
	return filepath.Join(l.DataDir, extensionsDirName, id+".zip")
}

// StagedDirs lists every hash-addressed directory that belongs to id.
// Hashes never contain '-', so "<id>-*" with '-' as separator cannot
// match the directories of an extension whose id merely starts with id.
func (l Layout) StagedDirs(id string) ([]string, error) {
	g, err := glob.Compile(glob.QuoteMeta(id+"-")+"*", '-')
	if err != nil {
		return nil, oops.Code(CodeInvalidID).With("extension", id).Wrap(err)
	}
	entries, err := os.ReadDir(l.UpgradesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.Code(CodeFilesystem).With("path", l.UpgradesDir()).Wrap(err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && g.Match(entry.Name()) {
			dirs = append(dirs, filepath.Join(l.UpgradesDir(), entry.Name()))
		}
	}
	return dirs, nil
}
