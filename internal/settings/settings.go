// Package settings stores file type configurations in a single settings
// document and caches them keyed by the document's modification time.
//
// The document is JSON by default, or YAML when the path ends in .yaml or
// .yml:
//
//	{
//	  "types": {
//	    "orders": {
//	      "columns": {"Order No": "order_id", "Amount": "amount"},
//	      "dtypes": {"order_id": "NVARCHAR(50)", "amount": "DECIMAL(18,2)"},
//	      "update_strategy": "replace",
//	      "date_format": "UK"
//	    }
//	  }
//	}
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
)

// Repository is the configuration collaborator injected into every component.
type Repository interface {
	// Get returns the named type. Unknown names yield an empty config, not an error.
	Get(name string) (filetype.Config, error)
	// Save validates and persists one type.
	Save(name string, cfg filetype.Config) error
	// ListTypes returns configured type names in sorted order.
	ListTypes() ([]string, error)
	// All returns every configured type, sorted by name.
	All() ([]filetype.Config, error)
	// Invalidate drops any cached state.
	Invalidate()
}

type document struct {
	Types map[string]filetype.Config `json:"types" yaml:"types"`
}

var validate = validator.New()

// Validate checks a config with struct tags and domain rules.
func Validate(name string, cfg filetype.Config) error {
	cfg.Name = name
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return errs.Configf(name, "%s", strings.Join(fields, "; "))
		}
		return errs.Configf(name, "%v", err)
	}
	return cfg.Check()
}

// =============================================================================
// In-memory repository
// =============================================================================

// Memory is a Repository held entirely in memory.
type Memory struct {
	mu    sync.RWMutex
	types map[string]filetype.Config
}

// NewMemory returns a Memory seeded with cfgs, keyed by their Name.
func NewMemory(cfgs ...filetype.Config) *Memory {
	m := &Memory{types: make(map[string]filetype.Config, len(cfgs))}
	for _, c := range cfgs {
		m.types[c.Name] = c
	}
	return m
}

func (m *Memory) Get(name string) (filetype.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.types[name]
	if !ok {
		return filetype.Config{Name: name}, nil
	}
	return cfg, nil
}

func (m *Memory) Save(name string, cfg filetype.Config) error {
	if err := Validate(name, cfg); err != nil {
		return err
	}
	cfg.Name = name
	m.mu.Lock()
	m.types[name] = cfg
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListTypes() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedNames(m.types), nil
}

func (m *Memory) All() ([]filetype.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]filetype.Config, 0, len(m.types))
	for _, name := range sortedNames(m.types) {
		out = append(out, m.types[name])
	}
	return out, nil
}

func (m *Memory) Invalidate() {}

func sortedNames(types map[string]filetype.Config) []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
