package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanExtensions are the file extensions picked up from directories.
// Legacy .xls files are listed so that they are reported rather than ignored.
var ScanExtensions = []string{".csv", ".xlsx", ".xlsm", ".xls"}

// Scan expands paths into candidate file paths. Directories contribute
// their direct children with a scanned extension; hidden files and Office
// lock files (~$name) are skipped. Plain file paths are kept as given, even
// when they do not exist, so the failure is reported against the file.
// The result is sorted and free of duplicates.
func Scan(ctx context.Context, paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	var errs []error

	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			add(p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", p, err))
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !scannable(e) {
				continue
			}
			add(filepath.Join(p, e.Name()))
		}
	}

	sort.Strings(out)
	return out, errors.Join(errs...)
}

func scannable(e fs.DirEntry) bool {
	name := e.Name()
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range ScanExtensions {
		if ext == want {
			return true
		}
	}
	return false
}
