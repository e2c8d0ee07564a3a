// Package fileops implements the file operations used while injecting into an
// application bundle. Every file write goes to a temporary file in the target
// directory which is then renamed over the destination.
package fileops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/spf13/afero"
)

// DefaultBackupSuffix is appended to a Mach-O path to name its pristine copy.
const DefaultBackupSuffix = ".troll-fools.bak"

// FileOps performs bundle file operations on an afero filesystem.
type FileOps struct {
	fs           afero.Fs
	backupSuffix string
}

// New returns a FileOps on fs. An empty backupSuffix selects DefaultBackupSuffix.
func New(fs afero.Fs, backupSuffix string) *FileOps {
	if backupSuffix == "" {
		backupSuffix = DefaultBackupSuffix
	}
	return &FileOps{fs: fs, backupSuffix: backupSuffix}
}

// Exists reports whether path exists.
func (o *FileOps) Exists(path string) bool {
	ok, err := afero.Exists(o.fs, path)
	return err == nil && ok
}

// Size returns the size of the file at path.
func (o *FileOps) Size(path string) (int64, error) {
	info, err := o.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// MkdirAll creates path and any missing parents.
func (o *FileOps) MkdirAll(path string) error {
	if err := o.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// WriteFile atomically replaces path with data.
func (o *FileOps) WriteFile(path string, data []byte, perm os.FileMode) error {
	return o.writeAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (o *FileOps) writeAtomic(path string, perm os.FileMode, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(o.fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			o.fs.Remove(tmpName)
		}
	}()

	if err = fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err = o.fs.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err = o.fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// Copy copies a file or a directory tree from src to dst. Existing files in
// dst are replaced.
func (o *FileOps) Copy(src, dst string) error {
	info, err := lstat(o.fs, src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return o.copyEntry(src, dst, info)
	}

	return afero.Walk(o.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if err := o.fs.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			return nil
		}
		return o.copyEntry(path, target, info)
	})
}

func (o *FileOps) copyEntry(src, dst string, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink != 0 {
		sl, ok := o.fs.(afero.Symlinker)
		if !ok {
			return fmt.Errorf("failed to copy symlink %s: filesystem does not support links", src)
		}
		target, err := sl.ReadlinkIfPossible(src)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", src, err)
		}
		o.fs.Remove(dst)
		if err := sl.SymlinkIfPossible(target, dst); err != nil {
			return fmt.Errorf("failed to create link %s: %w", dst, err)
		}
		return nil
	}

	in, err := o.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := o.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(dst), err)
	}

	return o.writeAtomic(dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Remove deletes path; a directory is only removed with recursive set.
// Removing a missing path is not an error.
func (o *FileOps) Remove(path string, recursive bool) error {
	var err error
	if recursive {
		err = o.fs.RemoveAll(path)
	} else {
		err = o.fs.Remove(path)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// BackupPath returns the path of path's backup.
func (o *FileOps) BackupPath(path string) string {
	return path + o.backupSuffix
}

// HasBackup reports whether path has a backup.
func (o *FileOps) HasBackup(path string) bool {
	return o.Exists(o.BackupPath(path))
}

// Backup copies path to its backup location. An existing backup is kept so
// that it always holds the pristine file.
func (o *FileOps) Backup(path string) error {
	if o.HasBackup(path) {
		log.WithField("path", path).Debug("Backup already exists")
		return nil
	}
	info, err := o.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return o.copyEntry(path, o.BackupPath(path), info)
}

// RestoreFromBackup moves the backup of path back over path.
func (o *FileOps) RestoreFromBackup(path string) error {
	bak := o.BackupPath(path)
	if !o.Exists(bak) {
		return fmt.Errorf("failed to restore %s: %w", path, &os.PathError{Op: "restore", Path: bak, Err: os.ErrNotExist})
	}
	if err := o.fs.Rename(bak, path); err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	return nil
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}
