package typecheck

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Category is the validation class of a column type descriptor.
type Category int

const (
	// Unvalidated descriptors are accepted without any value check.
	Unvalidated Category = iota
	Tinyint
	Smallint
	Int
	Bigint
	Float
	Varbinary
	Varchar
)

// String returns the MySQL type name of the category.
func (c Category) String() string {
	switch c {
	case Tinyint:
		return "tinyint"
	case Smallint:
		return "smallint"
	case Int:
		return "int"
	case Bigint:
		return "bigint"
	case Float:
		return "float"
	case Varbinary:
		return "varbinary"
	case Varchar:
		return "varchar"
	default:
		return "unvalidated"
	}
}

// IsInteger reports whether the category is one of the integer widths.
func (c Category) IsInteger() bool {
	switch c {
	case Tinyint, Smallint, Int, Bigint:
		return true
	default:
		return false
	}
}

var (
	varbinaryLength = regexp.MustCompile(`varbinary\((\d+)\)`)
	varcharLength   = regexp.MustCompile(`varchar\((\d+)\)`)
)

// Descriptor is a classified column type.
type Descriptor struct {
	Raw      string
	Category Category
	Unsigned bool
	// Length is N of varchar(N)/varbinary(N).
	Length int
}

// Classify parses a raw descriptor. Matching is case-insensitive and
// ordered: bigint, tinyint, smallint, int(, float, varbinary(N),
// varchar(N). Anything else is Unvalidated.
func Classify(raw string) Descriptor {
	lower := strings.ToLower(raw)
	d := Descriptor{
		Raw:      raw,
		Unsigned: strings.Contains(lower, "unsigned"),
	}

	switch {
	case strings.Contains(lower, "bigint"):
		d.Category = Bigint
	case strings.Contains(lower, "tinyint"):
		d.Category = Tinyint
	case strings.Contains(lower, "smallint"):
		d.Category = Smallint
	case strings.Contains(lower, "int("):
		d.Category = Int
	case strings.Contains(lower, "float"):
		d.Category = Float
	default:
		if n, ok := matchLength(varbinaryLength, lower); ok {
			d.Category = Varbinary
			d.Length = n
		} else if n, ok := matchLength(varcharLength, lower); ok {
			d.Category = Varchar
			d.Length = n
		}
	}
	return d
}

func matchLength(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// intBounds are the inclusive value ranges of an integer width.
type intBounds struct {
	min  int64
	max  int64
	umax uint64
}

var widths = map[Category]intBounds{
	Tinyint:  {min: math.MinInt8, max: math.MaxInt8, umax: math.MaxUint8},
	Smallint: {min: math.MinInt16, max: math.MaxInt16, umax: math.MaxUint16},
	Int:      {min: math.MinInt32, max: math.MaxInt32, umax: math.MaxUint32},
	Bigint:   {min: math.MinInt64, max: math.MaxInt64, umax: math.MaxUint64},
}

func (b intBounds) signedRange() string {
	return fmt.Sprintf("[%d, %d]", b.min, b.max)
}

func (b intBounds) unsignedRange() string {
	return fmt.Sprintf("[0, %d]", b.umax)
}
