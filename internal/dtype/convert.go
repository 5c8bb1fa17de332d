package dtype

// convert.go turns raw cell text into typed values.
//
// Source files are messy: currency symbols and thousands separators in
// numbers, accounting negatives "(12.50)", Excel formula prefixes (="0012"),
// day-first and month-first dates, many boolean spellings. Convert accepts
// all of these and returns nil for empty cells so the sink stores NULL.

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DateFormat selects which of day or month comes first in ambiguous dates.
type DateFormat string

const (
	DateUK DateFormat = "UK" // DD/MM/YYYY
	DateUS DateFormat = "US" // MM/DD/YYYY
)

// Conversion failures. Validators classify offending cells by these.
var (
	ErrInvalidNumber  = errors.New("invalid number")
	ErrNumberOverflow = errors.New("number out of range")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidBool    = errors.New("invalid boolean")
	ErrTooLong        = errors.New("string too long")
)

// numericRegex validates a number after cleanup: integers, decimals, scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years that
// would land more than this many years in the future move back a century.
var TwoDigitYearPivot = 20

var (
	dayFirstLayouts = []string{
		"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
		"02/01/2006 15:04:05", "2/1/2006 15:04:05", "02/01/2006 15:04", "2/1/2006 15:04",
		"02-01-2006 15:04:05", "02-01-2006 15:04",
	}
	monthFirstLayouts = []string{
		"01/02/2006", "1/2/2006", "01-02-2006", "1-2-2006", "01.02.2006", "1.2.2006",
		"01/02/2006 15:04:05", "1/2/2006 15:04:05", "01/02/2006 15:04", "1/2/2006 15:04",
		"1/2/2006 3:04:05 PM", "1/2/2006 3:04 PM",
		"01-02-2006 15:04:05", "01-02-2006 15:04",
	}
	dayFirstShortLayouts   = []string{"02/01/06", "2/1/06", "02-01-06", "2-1-06"}
	monthFirstShortLayouts = []string{"01/02/06", "1/2/06", "01-02-06", "1-2-06"}
	isoLayouts             = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
		"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05", "2006-01-02 15:04:05.000",
		time.RFC3339, time.RFC3339Nano,
		"2 Jan 2006", "02 Jan 2006", "2-Jan-2006", "02-Jan-2006", "Jan 2, 2006", "January 2, 2006",
		"2 January 2006", "02-Jan-06",
	}
)

// Convert parses raw according to t. Empty cells yield (nil, nil).
func Convert(raw string, t SQLType, df DateFormat) (any, error) {
	s := CleanCell(raw)
	if s == "" {
		return nil, nil
	}

	switch t.Kind {
	case KindString:
		if utf8.RuneCountInString(s) > t.Length {
			return nil, fmt.Errorf("%w: %d > %d", ErrTooLong, utf8.RuneCountInString(s), t.Length)
		}
		return s, nil
	case KindText:
		return s, nil
	case KindInt:
		n, err := parseInteger(s, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case KindBigInt:
		n, err := parseInteger(s, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case KindSmallInt:
		n, err := parseInteger(s, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return int16(n), nil
	case KindDecimal:
		d, err := ParseDecimal(s, t)
		if err != nil {
			return nil, err
		}
		var n pgtype.Numeric
		if err := n.Scan(d.String()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
		}
		return n, nil
	case KindFloat:
		cleaned, ok := CleanNumber(s)
		if !ok {
			return nil, ErrInvalidNumber
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil, ErrInvalidNumber
		}
		return f, nil
	case KindDate:
		tm, err := ParseDate(s, df)
		if err != nil {
			return nil, err
		}
		return time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.UTC), nil
	case KindDateTime:
		return ParseDate(s, df)
	case KindBool:
		return ParseBool(s)
	}

	return s, nil
}

// CleanNumber strips currency symbols, thousands separators and accounting
// parentheses. It reports false when the remainder is not a number.
func CleanNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£", "฿", ",", " ", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSuffix(s, "%")

	if negative {
		if strings.HasPrefix(s, "-") {
			return "", false
		}
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// ParseDecimal parses s and checks it fits DECIMAL(p,s) after rounding to scale.
func ParseDecimal(s string, t SQLType) (decimal.Decimal, error) {
	cleaned, ok := CleanNumber(s)
	if !ok {
		return decimal.Decimal{}, ErrInvalidNumber
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidNumber
	}

	if t.Kind != KindDecimal {
		return d, nil
	}

	d = d.Round(int32(t.Scale))
	limit := decimal.New(1, int32(t.Precision-t.Scale))
	if d.Abs().GreaterThanOrEqual(limit) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s exceeds DECIMAL(%d,%d)", ErrNumberOverflow, cleaned, t.Precision, t.Scale)
	}
	return d, nil
}

func parseInteger(s string, min, max int64) (int64, error) {
	cleaned, ok := CleanNumber(s)
	if !ok {
		return 0, ErrInvalidNumber
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, ErrInvalidNumber
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s is not a whole number", ErrInvalidNumber, cleaned)
	}
	if d.LessThan(decimal.NewFromInt(min)) || d.GreaterThan(decimal.NewFromInt(max)) {
		return 0, fmt.Errorf("%w: %s", ErrNumberOverflow, cleaned)
	}
	return d.IntPart(), nil
}

// ParseDate parses s trying the preferred day/month order first, then the
// other order, then unambiguous ISO and month-name layouts.
func ParseDate(s string, df DateFormat) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	first, second := dayFirstLayouts, monthFirstLayouts
	firstShort, secondShort := dayFirstShortLayouts, monthFirstShortLayouts
	if df == DateUS {
		first, second = second, first
		firstShort, secondShort = secondShort, firstShort
	}

	for _, group := range [][]string{first, second} {
		for _, layout := range group {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, group := range [][]string{firstShort, secondShort} {
		for _, layout := range group {
			if t, err := time.Parse(layout, s); err == nil {
				if t.Year() > pivotYear {
					t = t.AddDate(-100, 0, 0)
				}
				return t, nil
			}
		}
	}

	return time.Time{}, ErrInvalidDate
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0 in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, ErrInvalidBool
}

// CleanCell trims whitespace and removes Excel formula wrappers (="...").
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return s
}
