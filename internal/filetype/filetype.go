// Package filetype models the per-type ingestion configuration: how source
// headers map to target columns, the declared column types, the load
// strategy and the date convention.
package filetype

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/JonMunkholm/sheetload/internal/dtype"
	"github.com/JonMunkholm/sheetload/internal/errs"
)

// Strategy selects how files of a type reach the sink.
type Strategy string

const (
	// Replace rewrites the whole table from all files of the type in a run.
	Replace Strategy = "replace"
	// Upsert loads files one at a time in modification order so later files supersede earlier ones.
	Upsert Strategy = "upsert"
)

// Config describes one file type.
type Config struct {
	Name           string            `json:"-" yaml:"-" validate:"required"`
	Columns        ColumnMap         `json:"columns" yaml:"columns"`
	DTypes         map[string]string `json:"dtypes,omitempty" yaml:"dtypes,omitempty"`
	UpdateStrategy Strategy          `json:"update_strategy,omitempty" yaml:"update_strategy,omitempty" validate:"omitempty,oneof=replace upsert"`
	UpsertKeys     []string          `json:"upsert_keys,omitempty" yaml:"upsert_keys,omitempty" validate:"dive,required"`
	DateFormat     dtype.DateFormat  `json:"date_format,omitempty" yaml:"date_format,omitempty" validate:"omitempty,oneof=UK US"`
	TableName      string            `json:"table_name,omitempty" yaml:"table_name,omitempty"`
}

// Column is a resolved target column.
type Column struct {
	Name string
	Type dtype.SQLType
}

// IsEmpty reports whether the config has no columns (unknown or blank type).
func (c Config) IsEmpty() bool {
	return len(c.Columns) == 0
}

// Strategy returns the load strategy, defaulting to Replace.
func (c Config) Strategy() Strategy {
	if c.UpdateStrategy == "" {
		return Replace
	}
	return c.UpdateStrategy
}

// Keys returns the upsert keys of an upsert type. Keys configured on a
// replace type are ignored.
func (c Config) Keys() []string {
	if c.Strategy() != Upsert {
		return nil
	}
	return c.UpsertKeys
}

// Dates returns the date convention, defaulting to UK.
func (c Config) Dates() dtype.DateFormat {
	if c.DateFormat == "" {
		return dtype.DateUK
	}
	return c.DateFormat
}

// Table returns the sink table name.
func (c Config) Table() string {
	if c.TableName != "" {
		return SanitizeIdentifier(c.TableName)
	}
	return SanitizeIdentifier(c.Name)
}

// TargetColumns resolves the ordered target columns and their types.
// Columns without a dtype entry default to NVARCHAR(255).
func (c Config) TargetColumns() ([]Column, error) {
	cols := make([]Column, 0, len(c.Columns))
	for _, e := range c.Columns {
		t := dtype.Default
		if decl, ok := c.DTypes[e.Target]; ok {
			parsed, err := dtype.Parse(decl)
			if err != nil {
				return nil, errs.Configf(c.Name, "column %q: %v", e.Target, err)
			}
			t = parsed
		}
		cols = append(cols, Column{Name: e.Target, Type: t})
	}
	return cols, nil
}

// Check enforces the invariants struct tags cannot express.
func (c Config) Check() error {
	var problems []string

	seenKey := make(map[string]bool, len(c.Columns))
	seenTarget := make(map[string]string, len(c.Columns))
	for _, e := range c.Columns {
		if strings.TrimSpace(e.Source) == "" || strings.TrimSpace(e.Target) == "" {
			problems = append(problems, "column entries must have a source and a target")
			continue
		}
		if seenKey[e.Source] {
			problems = append(problems, fmt.Sprintf("duplicate source column %q", e.Source))
		}
		seenKey[e.Source] = true
		if prev, ok := seenTarget[e.Target]; ok {
			problems = append(problems, fmt.Sprintf("target column %q is mapped from both %q and %q", e.Target, prev, e.Source))
		}
		seenTarget[e.Target] = e.Source
	}

	names := make([]string, 0, len(c.DTypes))
	for name := range c.DTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := dtype.Parse(c.DTypes[name]); err != nil {
			problems = append(problems, err.Error())
		}
	}

	for _, k := range c.UpsertKeys {
		if _, ok := seenTarget[k]; !ok {
			problems = append(problems, fmt.Sprintf("upsert key %q is not a target column", k))
		}
	}

	if len(problems) > 0 {
		return errs.Configf(c.Name, "%s", strings.Join(problems, "; "))
	}
	return nil
}

var identRegex = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeIdentifier lowercases s and collapses anything outside [a-z0-9_] to underscores.
func SanitizeIdentifier(s string) string {
	s = identRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unnamed"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "t_" + s
	}
	return s
}
