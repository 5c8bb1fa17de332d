// Package dtype parses the declared SQL column types of a file type and
// converts raw cell text into values the sink can store.
//
// Declared types use the settings vocabulary (NVARCHAR(n), NVARCHAR(MAX), INT,
// BIGINT, SMALLINT, DECIMAL(p,s), FLOAT, DATE, DATETIME, BIT) and are mapped
// to their PostgreSQL equivalents for DDL.
package dtype

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the family of a declared column type.
type Kind int

const (
	KindString Kind = iota
	KindText        // unbounded string
	KindInt
	KindBigInt
	KindSmallInt
	KindDecimal
	KindFloat
	KindDate
	KindDateTime
	KindBool
)

// DefaultStringLength is used for NVARCHAR without an explicit length.
const DefaultStringLength = 255

// SQLType is a parsed column type declaration.
type SQLType struct {
	Kind      Kind
	Length    int // KindString only
	Precision int // KindDecimal only
	Scale     int // KindDecimal only
}

// Default is the type assumed for target columns without a declaration.
var Default = SQLType{Kind: KindString, Length: DefaultStringLength}

// Parse reads a declaration such as "NVARCHAR(50)" or "decimal(18, 2)".
func Parse(decl string) (SQLType, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(decl), ""))
	if s == "" {
		return Default, nil
	}

	name, args, err := splitArgs(s)
	if err != nil {
		return SQLType{}, fmt.Errorf("parse type %q: %w", decl, err)
	}

	switch name {
	case "NVARCHAR", "VARCHAR", "NCHAR", "CHAR":
		if len(args) == 0 {
			return Default, nil
		}
		if len(args) != 1 {
			return SQLType{}, fmt.Errorf("parse type %q: expected one length argument", decl)
		}
		if args[0] == "MAX" {
			return SQLType{Kind: KindText}, nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return SQLType{}, fmt.Errorf("parse type %q: invalid length %q", decl, args[0])
		}
		return SQLType{Kind: KindString, Length: n}, nil
	case "TEXT", "NTEXT":
		return SQLType{Kind: KindText}, nil
	case "INT", "INTEGER":
		return SQLType{Kind: KindInt}, nil
	case "BIGINT":
		return SQLType{Kind: KindBigInt}, nil
	case "SMALLINT":
		return SQLType{Kind: KindSmallInt}, nil
	case "DECIMAL", "NUMERIC":
		p, sc := 18, 2
		if len(args) >= 1 {
			if p, err = strconv.Atoi(args[0]); err != nil || p <= 0 || p > 38 {
				return SQLType{}, fmt.Errorf("parse type %q: invalid precision %q", decl, args[0])
			}
			sc = 0
		}
		if len(args) == 2 {
			if sc, err = strconv.Atoi(args[1]); err != nil || sc < 0 || sc > p {
				return SQLType{}, fmt.Errorf("parse type %q: invalid scale %q", decl, args[1])
			}
		}
		if len(args) > 2 {
			return SQLType{}, fmt.Errorf("parse type %q: too many arguments", decl)
		}
		return SQLType{Kind: KindDecimal, Precision: p, Scale: sc}, nil
	case "FLOAT", "REAL", "DOUBLE":
		return SQLType{Kind: KindFloat}, nil
	case "DATE":
		return SQLType{Kind: KindDate}, nil
	case "DATETIME", "DATETIME2", "TIMESTAMP", "SMALLDATETIME":
		return SQLType{Kind: KindDateTime}, nil
	case "BIT", "BOOL", "BOOLEAN":
		return SQLType{Kind: KindBool}, nil
	}

	return SQLType{}, fmt.Errorf("parse type %q: unknown type", decl)
}

// MustParse is Parse for declarations known to be valid.
func MustParse(decl string) SQLType {
	t, err := Parse(decl)
	if err != nil {
		panic(err)
	}
	return t
}

func splitArgs(s string) (string, []string, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("unbalanced parentheses")
	}
	inner := s[open+1 : len(s)-1]
	if inner == "" {
		return s[:open], nil, nil
	}
	return s[:open], strings.Split(inner, ","), nil
}

// String renders the declaration in settings vocabulary.
func (t SQLType) String() string {
	switch t.Kind {
	case KindString:
		return fmt.Sprintf("NVARCHAR(%d)", t.Length)
	case KindText:
		return "NVARCHAR(MAX)"
	case KindInt:
		return "INT"
	case KindBigInt:
		return "BIGINT"
	case KindSmallInt:
		return "SMALLINT"
	case KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case KindFloat:
		return "FLOAT"
	case KindDate:
		return "DATE"
	case KindDateTime:
		return "DATETIME"
	case KindBool:
		return "BIT"
	}
	return "UNKNOWN"
}

// Postgres returns the PostgreSQL column type for DDL.
func (t SQLType) Postgres() string {
	switch t.Kind {
	case KindString:
		return fmt.Sprintf("varchar(%d)", t.Length)
	case KindText:
		return "text"
	case KindInt:
		return "integer"
	case KindBigInt:
		return "bigint"
	case KindSmallInt:
		return "smallint"
	case KindDecimal:
		return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale)
	case KindFloat:
		return "double precision"
	case KindDate:
		return "date"
	case KindDateTime:
		return "timestamp"
	case KindBool:
		return "boolean"
	}
	return "text"
}

// CatalogName returns the type as PostgreSQL's format_type() prints it,
// used to compare an existing table against the configuration.
func (t SQLType) CatalogName() string {
	switch t.Kind {
	case KindString:
		return fmt.Sprintf("character varying(%d)", t.Length)
	case KindDateTime:
		return "timestamp without time zone"
	}
	return t.Postgres()
}

// IsNumeric reports whether values are checked as numbers.
func (t SQLType) IsNumeric() bool {
	switch t.Kind {
	case KindInt, KindBigInt, KindSmallInt, KindDecimal, KindFloat:
		return true
	}
	return false
}

// IsTemporal reports whether values are checked as dates.
func (t SQLType) IsTemporal() bool {
	return t.Kind == KindDate || t.Kind == KindDateTime
}
