// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package extension models locally installed and remotely installable
// extensions and the on-disk layout they live in.
package extension

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// Descriptor represents an extension's config.json file.
type Descriptor struct {
	Name             string   `json:"name,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
	Tile             string   `json:"tile,omitempty"`
	Icon             string   `json:"icon,omitempty"`
	Contributors     []string `json:"contributors,omitempty"`
	Hidden           bool     `json:"hidden,omitempty"`
	MigrationModule  string   `json:"migration_module,omitempty"`
	DBName           string   `json:"db_name,omitempty"`
	IsInstalled      bool     `json:"is_installed,omitempty"`
}

// ParseDescriptor parses config.json contents.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, oops.Code(CodeDescriptorInvalid).Errorf("descriptor data is empty")
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, oops.Code(CodeDescriptorInvalid).Wrapf(err, "invalid JSON")
	}
	return &d, nil
}

// LoadDescriptor reads and parses the descriptor inside dir.
func LoadDescriptor(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, DescriptorFile)
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the extension layout
	if err != nil {
		return nil, oops.Code(CodeDescriptorInvalid).With("path", path).Wrap(err)
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return d, nil
}

// MarkInstalled rewrites the descriptor inside dir with is_installed set,
// keeping any keys this package does not model, and returns the result.
func MarkInstalled(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, DescriptorFile)
	info, err := os.Stat(path)
	if err != nil {
		return nil, oops.Code(CodeDescriptorInvalid).With("path", path).Wrap(err)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the extension layout
	if err != nil {
		return nil, oops.Code(CodeDescriptorInvalid).With("path", path).Wrap(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, oops.Code(CodeDescriptorInvalid).With("path", path).Wrapf(err, "invalid JSON")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	raw["is_installed"] = true

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, oops.Code(CodeDescriptorInvalid).With("path", path).Wrap(err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return nil, oops.Code(CodeFilesystem).With("path", path).Wrap(err)
	}
	return ParseDescriptor(out)
}
