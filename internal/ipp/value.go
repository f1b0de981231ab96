package ipp

import (
	"encoding/binary"
	"fmt"
)

// Value is one attribute value together with the wire tag it arrived (or
// will leave) with. Keeping the tag alongside the payload lets responses
// re-encode exactly what was decoded, including tags this package has no
// special handling for.
type Value struct {
	Tag  byte
	Int  int32
	Bool bool
	Str  string
	Raw  []byte
}

func Integer(v int32) Value  { return Value{Tag: TagInteger, Int: v} }
func Enum(v int32) Value     { return Value{Tag: TagEnum, Int: v} }
func Boolean(v bool) Value   { return Value{Tag: TagBoolean, Bool: v} }
func Keyword(s string) Value { return Value{Tag: TagKeyword, Str: s} }
func Charset(s string) Value { return Value{Tag: TagCharset, Str: s} }
func Text(s string) Value    { return Value{Tag: TagText, Str: s} }
func Name(s string) Value    { return Value{Tag: TagName, Str: s} }
func URI(s string) Value     { return Value{Tag: TagURI, Str: s} }

func NaturalLanguage(s string) Value { return Value{Tag: TagNaturalLanguage, Str: s} }
func MimeMediaType(s string) Value   { return Value{Tag: TagMimeMediaType, Str: s} }

// Unsupported marks an attribute as unsupported in an unsupported-attributes
// group (out-of-band value, empty payload).
func Unsupported() Value { return Value{Tag: TagUnsupportedValue} }

// Resolution builds a resolution value: cross-feed, feed, units.
func Resolution(x, y int32, units byte) Value {
	raw := make([]byte, 9)
	binary.BigEndian.PutUint32(raw[0:4], uint32(x))
	binary.BigEndian.PutUint32(raw[4:8], uint32(y))
	raw[8] = units
	return Value{Tag: TagResolution, Raw: raw}
}

// Range builds a rangeOfInteger value.
func Range(lower, upper int32) Value {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint32(raw[0:4], uint32(lower))
	binary.BigEndian.PutUint32(raw[4:8], uint32(upper))
	return Value{Tag: TagRangeOfInteger, Raw: raw}
}

// payload returns the wire bytes for the value.
func (v Value) payload() []byte {
	switch v.Tag {
	case TagInteger, TagEnum:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v.Int))
		return b
	case TagBoolean:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case TagUnsupportedValue, TagUnknown, TagNoValue:
		return nil
	default:
		if v.Raw != nil {
			return v.Raw
		}
		return []byte(v.Str)
	}
}

// Equal reports whether two values carry the same tag and payload.
func (v Value) Equal(other Value) bool {
	if v.Tag != other.Tag {
		return false
	}
	a, b := v.payload(), other.payload()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	switch v.Tag {
	case TagInteger, TagEnum:
		return fmt.Sprintf("%d", v.Int)
	case TagBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		if v.Raw != nil {
			return fmt.Sprintf("%x", v.Raw)
		}
		return v.Str
	}
}

// parseValue interprets a raw wire payload according to tag.
func parseValue(tag byte, data []byte) (Value, error) {
	v := Value{Tag: tag}
	switch tag {
	case TagInteger, TagEnum:
		if len(data) != 4 {
			return v, fmt.Errorf("%w: integer value of length %d", ErrMalformed, len(data))
		}
		v.Int = int32(binary.BigEndian.Uint32(data))
	case TagBoolean:
		if len(data) != 1 {
			return v, fmt.Errorf("%w: boolean value of length %d", ErrMalformed, len(data))
		}
		v.Bool = data[0] != 0
	case TagUnsupportedValue, TagUnknown, TagNoValue:
		// out-of-band, payload (if any) ignored
	case TagDateTime, TagResolution, TagRangeOfInteger, TagOctetString:
		v.Raw = append([]byte(nil), data...)
	default:
		v.Str = string(data)
	}
	return v, nil
}
