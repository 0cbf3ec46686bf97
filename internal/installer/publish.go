// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package installer

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/extension"
)

// copyTree copies the regular files and directories under src into dst,
// which must not exist.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // src comes from a tree we extracted
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm()) //nolint:gosec // dst is inside a scratch directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// swapDir replaces dst with the fully written directory next. The previous
// dst is moved to backup and put back if the final rename fails, so dst is
// never observed partially written. On success the backup is kept until the
// caller either discards it or calls restore to undo the swap.
func swapDir(next, dst, backup string) (restore func() error, err error) {
	hadOld := true
	if err := os.Rename(dst, backup); err != nil {
		if !os.IsNotExist(err) {
			return nil, oops.Code(extension.CodeFilesystem).With("path", dst).Wrapf(err, "move previous copy aside")
		}
		hadOld = false
	}
	if err := os.Rename(next, dst); err != nil {
		if hadOld {
			if rerr := os.Rename(backup, dst); rerr != nil {
				return nil, oops.Code(extension.CodeFilesystem).
					With("path", dst).
					With("backup", backup).
					Wrapf(rerr, "restore previous copy after failed publish: %v", err)
			}
		}
		return nil, oops.Code(extension.CodeFilesystem).With("path", dst).Wrapf(err, "publish")
	}
	restore = func() error {
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
		if !hadOld {
			return nil
		}
		return os.Rename(backup, dst)
	}
	return restore, nil
}
