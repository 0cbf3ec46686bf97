// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store persists install metadata for extensions installed by the
// manager.
package store

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/extension"
)

// Error codes for store failures.
const (
	CodeStoreFailed      = "STORE_FAILED"
	CodeStoreNotMigrated = "STORE_NOT_MIGRATED"
	CodeStoreCorrupt     = "STORE_CORRUPT"
)

// InstallStore records which release of each extension is installed.
// Get returns an error matching extension.ErrNotFound for unknown ids.
type InstallStore interface {
	Get(ctx context.Context, id string) (*extension.Installable, error)
	Upsert(ctx context.Context, ext *extension.Installable) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*extension.Installable, error)
}

func notFound(id string) error {
	return oops.Code(extension.CodeNotFound).With("extension", id).Wrap(extension.ErrNotFound)
}

func encode(ext *extension.Installable) ([]byte, error) {
	data, err := json.Marshal(ext)
	if err != nil {
		return nil, oops.Code(CodeStoreFailed).With("extension", ext.ID).Wrapf(err, "encode record")
	}
	return data, nil
}

func decode(id string, data []byte) (*extension.Installable, error) {
	var ext extension.Installable
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, oops.Code(CodeStoreCorrupt).With("extension", id).Wrapf(err, "decode record")
	}
	if ext.ID == "" {
		ext.ID = id
	}
	return &ext, nil
}

func version(ext *extension.Installable) string {
	if ext.InstalledRelease == nil {
		return ""
	}
	return ext.InstalledRelease.Version
}
