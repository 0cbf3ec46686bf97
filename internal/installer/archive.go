// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package installer

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/extension"
)

// DefaultMaxExtractedSize bounds the total uncompressed size of an archive.
const DefaultMaxExtractedSize int64 = 512 << 20

// extractZip unpacks the archive at src into dest. Entries that would land
// outside dest, symlinks, and archives inflating beyond limit are rejected.
func extractZip(src, dest string, limit int64) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		if r != nil {
			_ = r.Close()
		}
		return oops.Code(extension.CodeArchiveInvalid).With("archive", src).Wrapf(err, "open archive")
	}
	defer func() { _ = r.Close() }()

	root := filepath.Clean(dest) + string(os.PathSeparator)
	remaining := limit
	for _, f := range r.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
			return oops.Code(extension.CodeArchiveInvalid).With("entry", f.Name).Errorf("absolute path in archive")
		}
		target := filepath.Join(dest, filepath.FromSlash(name))
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return oops.Code(extension.CodeArchiveInvalid).With("entry", f.Name).Errorf("archive entry escapes destination")
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o750); err != nil {
				return oops.Code(extension.CodeFilesystem).With("path", target).Wrap(err)
			}
		case mode&os.ModeSymlink != 0:
			return oops.Code(extension.CodeArchiveInvalid).With("entry", f.Name).Errorf("symlinks are not allowed")
		case mode.IsRegular():
			n, err := extractFile(f, target, remaining)
			if err != nil {
				return err
			}
			remaining -= n
		}
	}
	return nil
}

func extractFile(f *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, oops.Code(extension.CodeFilesystem).With("path", target).Wrap(err)
	}
	in, err := f.Open()
	if err != nil {
		return 0, oops.Code(extension.CodeArchiveInvalid).With("entry", f.Name).Wrap(err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) //nolint:gosec // target is checked against the destination root
	if err != nil {
		return 0, oops.Code(extension.CodeFilesystem).With("path", target).Wrap(err)
	}
	n, err := io.Copy(out, io.LimitReader(in, remaining+1))
	closeErr := out.Close()
	if err != nil {
		return n, oops.Code(extension.CodeArchiveInvalid).With("entry", f.Name).Wrap(err)
	}
	if n > remaining {
		return n, oops.Code(extension.CodeArchiveInvalid).Errorf("archive exceeds extraction limit")
	}
	if closeErr != nil {
		return n, oops.Code(extension.CodeFilesystem).With("path", target).Wrap(closeErr)
	}
	return n, nil
}

// singleRoot returns the only top-level directory inside dir.
func singleRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", oops.Code(extension.CodeFilesystem).With("path", dir).Wrap(err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", oops.Code(extension.CodeArchiveInvalid).
			With("entries", len(entries)).
			Errorf("archive must contain exactly one top-level directory")
	}
	return filepath.Join(dir, entries[0].Name()), nil
}
