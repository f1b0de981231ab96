package ipp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/inkwell/internal/ipp"
)

func sampleRequest() *ipp.Message {
	msg := &ipp.Message{
		VersionMajor: 1,
		VersionMinor: 1,
		Code:         ipp.OpGetPrinterAttributes,
		RequestID:    42,
	}
	op := msg.AddGroup(ipp.TagOperationGroup)
	op.Add(ipp.Attr("attributes-charset", ipp.Charset("utf-8")))
	op.Add(ipp.Attr("attributes-natural-language", ipp.NaturalLanguage("en")))
	op.Add(ipp.Attr("printer-uri", ipp.URI("ipp://host:6310/printers/fake_printer")))
	op.Add(ipp.Attr("requested-attributes",
		ipp.Keyword("printer-state"),
		ipp.Keyword("document-format-supported"),
	))
	return msg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleRequest()

	data, err := ipp.Encode(original)
	require.NoError(t, err)

	decoded, err := ipp.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, original.VersionMajor, decoded.VersionMajor)
	assert.Equal(t, original.VersionMinor, decoded.VersionMinor)
	assert.Equal(t, original.Code, decoded.Code)
	assert.Equal(t, original.RequestID, decoded.RequestID)
	require.Len(t, decoded.Groups, 1)

	op, ok := decoded.Group(ipp.TagOperationGroup)
	require.True(t, ok)

	charset, ok := op.Get("attributes-charset")
	require.True(t, ok)
	assert.Equal(t, ipp.TagCharset, charset.Values[0].Tag)
	assert.Equal(t, "utf-8", charset.Values[0].Str)

	requested, ok := op.Get("requested-attributes")
	require.True(t, ok)
	require.Len(t, requested.Values, 2)
	assert.Equal(t, "printer-state", requested.Values[0].Str)
	assert.Equal(t, "document-format-supported", requested.Values[1].Str)
}

func TestRoundTripReencodesIdentically(t *testing.T) {
	msg := sampleRequest()
	g := msg.AddGroup(ipp.TagPrinterGroup)
	g.Add(ipp.Attr("printer-state", ipp.Enum(3)))
	g.Add(ipp.Attr("printer-is-accepting-jobs", ipp.Boolean(true)))
	g.Add(ipp.Attr("copies-supported", ipp.Range(1, 99)))
	g.Add(ipp.Attr("printer-resolution-default", ipp.Resolution(600, 600, ipp.UnitsDotsPerInch)))

	first, err := ipp.Encode(msg)
	require.NoError(t, err)

	decoded, err := ipp.Decode(bytes.NewReader(first))
	require.NoError(t, err)

	second, err := ipp.Encode(decoded)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecodeLeavesPayloadUnread(t *testing.T) {
	msg := sampleRequest()
	msg.Code = ipp.OpPrintJob

	data, err := ipp.Encode(msg)
	require.NoError(t, err)

	payload := []byte("%PDF-1.4 fake document body")
	r := bytes.NewReader(append(data, payload...))

	_, err = ipp.Decode(r)
	require.NoError(t, err)

	rest := make([]byte, len(payload))
	n, _ := r.Read(rest)
	assert.Equal(t, payload, rest[:n])
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := ipp.Decode(bytes.NewReader([]byte{0x01, 0x01, 0x00}))
	assert.ErrorIs(t, err, ipp.ErrTruncated)
}

func TestDecodeMissingEndTag(t *testing.T) {
	data, err := ipp.Encode(sampleRequest())
	require.NoError(t, err)

	_, err = ipp.Decode(bytes.NewReader(data[:len(data)-1]))
	assert.ErrorIs(t, err, ipp.ErrTruncated)
}

func TestDecodeAttributeOutsideGroup(t *testing.T) {
	// header followed directly by a value tag with no group delimiter
	raw := []byte{
		0x01, 0x01, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x01,
		0x47, 0x00, 0x01, 'x', 0x00, 0x01, 'y',
		0x03,
	}
	_, err := ipp.Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ipp.ErrMalformed)
}

func TestDecodeAdditionalValueWithoutAttribute(t *testing.T) {
	raw := []byte{
		0x01, 0x01, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x01,
		0x01,                               // operation group
		0x44, 0x00, 0x00, 0x00, 0x01, 'a', // empty name, no preceding attribute
		0x03,
	}
	_, err := ipp.Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ipp.ErrMalformed)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, ipp.Keyword("a4").Equal(ipp.Keyword("a4")))
	assert.False(t, ipp.Keyword("a4").Equal(ipp.Keyword("letter")))
	assert.False(t, ipp.Keyword("a4").Equal(ipp.Name("a4")))
	assert.True(t, ipp.Integer(5).Equal(ipp.Integer(5)))
	assert.False(t, ipp.Integer(5).Equal(ipp.Enum(5)))
	assert.True(t, ipp.Range(1, 99).Equal(ipp.Range(1, 99)))
}
