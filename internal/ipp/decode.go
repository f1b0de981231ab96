package ipp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Decode reads one IPP message from r, stopping immediately after the
// end-of-attributes tag. Anything remaining on r (a document payload on
// Print-Job and Send-Document) is left unread for the caller.
func Decode(r io.Reader) (*Message, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}

	msg := &Message{
		VersionMajor: header[0],
		VersionMinor: header[1],
		Code:         binary.BigEndian.Uint16(header[2:4]),
		RequestID:    binary.BigEndian.Uint32(header[4:8]),
	}

	var group *Group
	for {
		tag, err := readByte(r)
		if err != nil {
			return msg, fmt.Errorf("%w: missing end-of-attributes", ErrTruncated)
		}

		if isDelimiterTag(tag) {
			if tag == TagEnd {
				return msg, nil
			}
			msg.Groups = append(msg.Groups, Group{Tag: tag})
			group = &msg.Groups[len(msg.Groups)-1]
			continue
		}

		name, err := readLengthPrefixed(r)
		if err != nil {
			return msg, err
		}
		data, err := readLengthPrefixed(r)
		if err != nil {
			return msg, err
		}
		value, err := parseValue(tag, data)
		if err != nil {
			return msg, err
		}

		if group == nil {
			return msg, fmt.Errorf("%w: attribute before any group delimiter", ErrMalformed)
		}

		if len(name) == 0 {
			// additional value for the preceding attribute
			if len(group.Attributes) == 0 {
				return msg, fmt.Errorf("%w: additional value with no preceding attribute", ErrMalformed)
			}
			last := &group.Attributes[len(group.Attributes)-1]
			last.Values = append(last.Values, value)
			continue
		}

		group.Add(Attr(string(name), value))
	}
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return nil, fmt.Errorf("%w: length prefix: %v", ErrTruncated, err)
	}
	n := binary.BigEndian.Uint16(lb[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: value of length %d: %v", ErrTruncated, n, err)
	}
	return buf, nil
}
