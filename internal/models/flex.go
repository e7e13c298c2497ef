package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Flex is a JSON scalar the API sends as either a string or a number
// (operation ids, quantities, batch numbers, user ids). It re-encodes
// with the JSON type it was received with.
type Flex struct {
	raw     string
	numeric bool
	valid   bool
}

// FlexString returns a Flex holding a JSON string.
func FlexString(s string) Flex {
	return Flex{raw: s, valid: true}
}

// FlexInt returns a Flex holding a JSON number.
func FlexInt(n int64) Flex {
	return Flex{raw: strconv.FormatInt(n, 10), numeric: true, valid: true}
}

// Valid reports whether a value was present.
func (f Flex) Valid() bool { return f.valid }

// Numeric reports whether the value was received as a JSON number.
func (f Flex) Numeric() bool { return f.numeric }

// String returns the value as text, or "" when absent.
func (f Flex) String() string { return f.raw }

// Equal compares two values by their text form. Absent values are never equal.
func (f Flex) Equal(o Flex) bool {
	return f.valid && o.valid && f.raw == o.raw
}

// UnmarshalJSON accepts strings, numbers and booleans. Objects, arrays and
// null leave the value absent rather than failing the enclosing record.
func (f *Flex) UnmarshalJSON(data []byte) error {
	*f = Flex{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Flex{raw: s, valid: true}
	case 't', 'f':
		*f = Flex{raw: string(data), valid: true}
	case 'n', '{', '[':
		// absent
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = Flex{raw: n.String(), numeric: true, valid: true}
	}
	return nil
}

// MarshalJSON writes the value back with its original JSON type.
func (f Flex) MarshalJSON() ([]byte, error) {
	if !f.valid {
		return []byte("null"), nil
	}
	if f.numeric {
		return []byte(f.raw), nil
	}
	return json.Marshal(f.raw)
}
