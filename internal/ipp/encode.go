package ipp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode serializes a message including the end-of-attributes tag. Document
// payloads are not part of the message and must be appended by the caller.
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(m.VersionMajor)
	buf.WriteByte(m.VersionMinor)
	writeUint16(&buf, m.Code)
	var rid [4]byte
	binary.BigEndian.PutUint32(rid[:], m.RequestID)
	buf.Write(rid[:])

	for _, g := range m.Groups {
		buf.WriteByte(g.Tag)
		for _, a := range g.Attributes {
			if len(a.Values) == 0 {
				return nil, fmt.Errorf("%w: attribute %q has no values", ErrMalformed, a.Name)
			}
			for i, v := range a.Values {
				buf.WriteByte(v.Tag)
				if i == 0 {
					if err := writeLengthPrefixed(&buf, []byte(a.Name)); err != nil {
						return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
					}
				} else {
					// additional value: empty name
					writeUint16(&buf, 0)
				}
				if err := writeLengthPrefixed(&buf, v.payload()); err != nil {
					return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
				}
			}
		}
	}

	buf.WriteByte(TagEnd)
	return buf.Bytes(), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeLengthPrefixed(buf *bytes.Buffer, data []byte) error {
	if len(data) > 0xFFFF {
		return fmt.Errorf("%w: field of %d bytes exceeds length prefix", ErrMalformed, len(data))
	}
	writeUint16(buf, uint16(len(data)))
	buf.Write(data)
	return nil
}
