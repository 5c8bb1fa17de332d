package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/JonMunkholm/sheetload/internal/filetype"
)

// DefaultMaxBackups is how many timestamped backups Save keeps.
const DefaultMaxBackups = 5

// stamp identifies one version of the settings document on disk.
type stamp struct {
	modTime time.Time
	size    int64
	exists  bool
}

// File is a Repository backed by a settings document on disk.
//
// Reads stat the document and reuse the cached parse while its (mtime, size)
// is unchanged. Writes are serialized and atomic.
type File struct {
	path       string
	maxBackups int

	mu     sync.RWMutex // guards cache and stamp
	cache  map[string]filetype.Config
	loaded stamp
	valid  bool

	writeMu sync.Mutex // serializes Save

	onReload func()
}

// Option configures a File.
type Option func(*File)

// WithMaxBackups sets how many backups Save keeps. Zero disables backups.
func WithMaxBackups(n int) Option {
	return func(f *File) { f.maxBackups = n }
}

// WithReloadHook registers fn to run after every reload of the document.
func WithReloadHook(fn func()) Option {
	return func(f *File) { f.onReload = fn }
}

// NewFile returns a repository for the document at path. The file need not exist.
func NewFile(path string, opts ...Option) *File {
	f := &File{path: path, maxBackups: DefaultMaxBackups}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the backing document path.
func (f *File) Path() string { return f.path }

func (f *File) Get(name string) (filetype.Config, error) {
	types, err := f.snapshot()
	if err != nil {
		return filetype.Config{}, err
	}
	cfg, ok := types[name]
	if !ok {
		return filetype.Config{Name: name}, nil
	}
	return cfg, nil
}

func (f *File) ListTypes() ([]string, error) {
	types, err := f.snapshot()
	if err != nil {
		return nil, err
	}
	return sortedNames(types), nil
}

func (f *File) All() ([]filetype.Config, error) {
	types, err := f.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]filetype.Config, 0, len(types))
	for _, name := range sortedNames(types) {
		out = append(out, types[name])
	}
	return out, nil
}

func (f *File) Invalidate() {
	f.mu.Lock()
	f.valid = false
	f.cache = nil
	f.mu.Unlock()
}

// Save validates cfg, merges it into the document and writes it atomically,
// backing up the previous version first.
func (f *File) Save(name string, cfg filetype.Config) error {
	if err := Validate(name, cfg); err != nil {
		return err
	}
	cfg.Name = name

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	current, st, err := f.load()
	if err != nil {
		return err
	}

	next := make(map[string]filetype.Config, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[name] = cfg

	data, err := f.encode(document{Types: next})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if st.exists && f.maxBackups > 0 {
		if err := f.backup(); err != nil {
			slog.Warn("settings backup failed", "path", f.path, "error", err)
		}
	}

	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	f.Invalidate()
	return nil
}

// snapshot returns the cached types, reloading when the document changed.
func (f *File) snapshot() (map[string]filetype.Config, error) {
	current, err := f.stat()
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	if f.valid && f.loaded == current {
		types := f.cache
		f.mu.RUnlock()
		return types, nil
	}
	f.mu.RUnlock()

	types, st, err := f.load()
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache = types
	f.loaded = st
	f.valid = true
	f.mu.Unlock()

	if f.onReload != nil {
		f.onReload()
	}
	return types, nil
}

func (f *File) stat() (stamp, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return stamp{}, nil
	}
	if err != nil {
		return stamp{}, fmt.Errorf("stat settings: %w", err)
	}
	return stamp{modTime: info.ModTime(), size: info.Size(), exists: true}, nil
}

// load reads and parses the document. A missing document is an empty set.
func (f *File) load() (map[string]filetype.Config, stamp, error) {
	st, err := f.stat()
	if err != nil {
		return nil, stamp{}, err
	}
	if !st.exists {
		return map[string]filetype.Config{}, st, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, stamp{}, fmt.Errorf("read settings: %w", err)
	}

	var doc document
	if len(strings.TrimSpace(string(data))) > 0 {
		if f.isYAML() {
			err = yaml.Unmarshal(data, &doc)
		} else {
			err = json.Unmarshal(data, &doc)
		}
		if err != nil {
			return nil, stamp{}, fmt.Errorf("parse settings %s: %w", f.path, err)
		}
	}

	types := make(map[string]filetype.Config, len(doc.Types))
	for name, cfg := range doc.Types {
		cfg.Name = name
		types[name] = cfg
	}
	return types, st, nil
}

func (f *File) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(f.path))
	return ext == ".yaml" || ext == ".yml"
}

func (f *File) encode(doc document) ([]byte, error) {
	if f.isYAML() {
		return yaml.Marshal(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// backup copies the current document to <path>.<timestamp>.bak and prunes old backups.
func (f *File) backup() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s.%s.bak", f.path, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return err
	}

	backups, err := filepath.Glob(f.path + ".*.bak")
	if err != nil || len(backups) <= f.maxBackups {
		return err
	}
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-f.maxBackups] {
		if err := os.Remove(old); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
