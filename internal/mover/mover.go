// Package mover relocates successfully loaded files into a processed folder.
//
// A moved file is renamed to {type}_{YYYY-MM-DD_HHMMSS}_{name}. When that
// name is taken, the milliseconds of the move time are appended to the stem,
// then a counter.
package mover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/JonMunkholm/sheetload/internal/logging"
)

// DefaultDir is the processed folder used when none is configured,
// relative to each file's own directory.
const DefaultDir = "Uploaded"

// Moved records one relocation.
type Moved struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Mover relocates files after their data is committed. paths and types are
// parallel slices.
type Mover interface {
	Move(ctx context.Context, paths, types []string) ([]Moved, error)
}

// FS moves files on the local filesystem.
type FS struct {
	// Dir is the processed folder. Relative paths resolve against each
	// file's directory; empty means DefaultDir.
	Dir string

	now func() time.Time
}

// NewFS creates a filesystem mover targeting dir.
func NewFS(dir string) *FS {
	return &FS{Dir: dir, now: time.Now}
}

// Move relocates each file. Failures are collected and joined; files that
// moved successfully are always reported.
func (f *FS) Move(ctx context.Context, paths, types []string) ([]Moved, error) {
	if len(paths) != len(types) {
		return nil, fmt.Errorf("move: %d paths but %d types", len(paths), len(types))
	}

	log := logging.WithFields(ctx, "op", "move")
	moved := make([]Moved, 0, len(paths))
	var errs []error

	for i, src := range paths {
		dst, err := f.moveOne(src, types[i])
		if err != nil {
			log.Warn("move failed", "path", src, "error", err)
			errs = append(errs, fmt.Errorf("move file %s: %w", src, err))
			continue
		}
		log.Debug("file moved", "from", src, "to", dst)
		moved = append(moved, Moved{Old: src, New: dst})
	}

	return moved, errors.Join(errs...)
}

func (f *FS) moveOne(src, typeName string) (string, error) {
	dir := f.targetDir(src)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dst, err := f.destination(dir, filepath.Base(src), typeName)
	if err != nil {
		return "", err
	}

	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", err
		}
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("copied to %s but could not remove source: %w", dst, err)
		}
	}
	return dst, nil
}

func (f *FS) targetDir(src string) string {
	dir := f.Dir
	if dir == "" {
		dir = DefaultDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(src), dir)
}

// destination picks a free name in dir.
func (f *FS) destination(dir, name, typeName string) (string, error) {
	now := time.Now()
	if f.now != nil {
		now = f.now()
	}
	prefix := fmt.Sprintf("%s_%s_", sanitize(typeName), now.Format("2006-01-02_150405"))

	candidate := filepath.Join(dir, prefix+name)
	if !exists(candidate) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	ms := fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond))

	candidate = filepath.Join(dir, fmt.Sprintf("%s%s_%s%s", prefix, stem, ms, ext))
	for n := 1; exists(candidate); n++ {
		if n > 1000 {
			return "", fmt.Errorf("no free name for %s in %s", name, dir)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s%s_%s_%d%s", prefix, stem, ms, n, ext))
	}
	return candidate, nil
}

func sanitize(typeName string) string {
	if typeName == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, typeName)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

var _ Mover = (*FS)(nil)

// None leaves files where they are. It backs dry runs.
type None struct{}

func (None) Move(context.Context, []string, []string) ([]Moved, error) { return nil, nil }

var _ Mover = None{}
