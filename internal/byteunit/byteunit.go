// Package byteunit parses and formats the byte-size string dialect used by
// memory and GPU-memory config keys throughout fedsched: an optional
// decimal/float value, an optional binary/decimal prefix from "-KMGTPEZY",
// an optional "i" binary marker, and a trailing "b" (bit) or "B" (byte).
package byteunit

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// prefixSequence indexes into SI/IEC prefixes; index 0 ("-") means "no prefix".
const prefixSequence = "-KMGTPEZY"

// Unit describes one point in the byte-unit lattice: a prefix index,
// whether the prefix is binary (1024-based) or decimal (1000-based), and
// whether the unit counts bytes or bits.
type Unit struct {
	Prefix   int
	IsBinary bool
	IsByte   bool
}

// B is the base byte unit (no prefix, decimal lattice, bytes).
var B = Unit{Prefix: 0, IsBinary: false, IsByte: true}

// GiB is the binary gibibyte unit, used for log formatting.
var GiB = Unit{Prefix: 3, IsBinary: true, IsByte: true}

// String renders the unit suffix, e.g. "MiB", "Kb", "B".
func (u Unit) String() string {
	var sb strings.Builder
	if prefixSequence[u.Prefix] != '-' {
		sb.WriteByte(prefixSequence[u.Prefix])
	}
	if u.IsBinary {
		sb.WriteByte('i')
	}
	if u.IsByte {
		sb.WriteByte('B')
	} else {
		sb.WriteByte('b')
	}
	return sb.String()
}

// Convert rescales value from unit from to unit to. Both units must share
// the same binary/decimal and byte/bit dimensions.
func Convert(from, to Unit, value float64) (float64, error) {
	if from.IsBinary != to.IsBinary || from.IsByte != to.IsByte {
		return 0, errors.New("from and to must have the same unit format")
	}
	dist := to.Prefix - from.Prefix
	co := 1000.0
	if from.IsBinary {
		co = 1024.0
	}
	for dist != 0 {
		if dist < 0 {
			value *= co
			dist++
		} else {
			value /= co
			dist--
		}
	}
	return value, nil
}

// Parse parses a string like "512MiB", "4GB", "10Kb", or "1B" into a
// numeric value and its Unit. The trailing "b"/"B" byte-or-bit marker is
// mandatory: a string without it, such as a bare "1024" or "4G", is
// rejected. A prefix letter with no "i" binary marker is interpreted as
// decimal, and a binary ("i") marker without a prefix letter (i.e. prefix
// index 0) is always rejected, matching the rule that "no prefix" and
// "binary" are mutually exclusive. A unit with no number ("MiB") parses
// as value 0, and so does the empty string.
func Parse(s string) (float64, Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, Unit{}, nil
	}

	var u Unit
	pos := 1
	last := s[len(s)-pos]
	switch last {
	case 'b':
		u.IsByte = false
	case 'B':
		u.IsByte = true
	default:
		return 0, Unit{}, errors.Errorf("illegal unit: %s", s)
	}
	pos++
	if pos > len(s) {
		return 0, u, nil
	}

	if s[len(s)-pos] == 'i' {
		u.IsBinary = true
		pos++
	} else {
		u.IsBinary = false
	}
	if pos > len(s) {
		return 0, Unit{}, errors.Errorf("illegal unit: %s", s)
	}

	prefix := strings.IndexByte(prefixSequence, s[len(s)-pos])
	if prefix >= 0 {
		u.Prefix = prefix
		pos++
	}

	if u.Prefix == 0 && u.IsBinary {
		return 0, Unit{}, errors.Errorf("illegal unit: %s", s)
	}

	if pos > len(s) {
		return 0, u, nil
	}

	valueStr := s[:len(s)-(pos-1)]
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, Unit{}, errors.Wrapf(err, "illegal numeric value in %q", s)
	}
	return value, u, nil
}

// ParseBytes parses s and returns its value converted to plain bytes. A
// bare non-negative integer with no unit suffix is taken as a byte count;
// anything else goes through Parse.
func ParseBytes(s string) (int64, error) {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && n >= 0 {
		return n, nil
	}
	v, u, err := Parse(s)
	if err != nil {
		return 0, err
	}
	bytesVal, err := Convert(u, B, v)
	if err != nil {
		return 0, err
	}
	return int64(bytesVal), nil
}
