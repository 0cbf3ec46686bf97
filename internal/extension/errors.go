// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension

import "errors"

// Error codes attached to oops errors raised by the extension subsystem.
const (
	CodeFetchFailed       = "FETCH_FAILED"
	CodeCatalogMalformed  = "CATALOG_MALFORMED"
	CodeHashMismatch      = "HASH_MISMATCH"
	CodeDescriptorInvalid = "DESCRIPTOR_INVALID"
	CodeArchiveInvalid    = "ARCHIVE_INVALID"
	CodeFilesystem        = "FS_FAILED"
	CodeReleaseNotFound   = "RELEASE_NOT_FOUND"
	CodeInvalidID         = "INVALID_EXTENSION_ID"
	CodeNotFound          = "EXTENSION_NOT_FOUND"
)

// ErrNotFound is returned when a requested extension does not exist.
var ErrNotFound = errors.New("extension not found")

// ErrReleaseNotFound is returned when no catalog release matches an install request.
var ErrReleaseNotFound = errors.New("release not found")
