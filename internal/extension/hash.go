// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
)

// hashChunkSize is the read buffer used when digesting archives.
const hashChunkSize = 128 * 1024

// HashReader returns the lowercase hex SHA-256 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", oops.Code(CodeFilesystem).With("operation", "hash stream").Wrap(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the lowercase hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from the extension layout
	if err != nil {
		return "", oops.Code(CodeFilesystem).With("path", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	// Hide ReaderFrom/WriterTo so CopyBuffer reads in fixed chunks.
	return HashReader(struct{ io.Reader }{f})
}

// HashString returns the lowercase hex SHA-256 of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// VerifyFile digests the file at path and compares it with expected.
//
// An empty expected digest is not an error: the file is reported as
// unverified and the caller decides whether that is acceptable.
func VerifyFile(path, expected string) (verified bool, digest string, err error) {
	digest, err = HashFile(path)
	if err != nil {
		return false, "", err
	}
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false, digest, nil
	}
	if !strings.EqualFold(expected, digest) {
		return false, digest, oops.Code(CodeHashMismatch).
			With("path", path).
			With("expected", expected).
			With("actual", digest).
			Errorf("file hash mismatch")
	}
	return true, digest, nil
}
