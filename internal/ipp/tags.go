package ipp

// Operation codes (RFC 8011 section 5.4.15).
const (
	OpPrintJob             uint16 = 0x0002
	OpValidateJob          uint16 = 0x0004
	OpCreateJob            uint16 = 0x0005
	OpSendDocument         uint16 = 0x0006
	OpCancelJob            uint16 = 0x0008
	OpGetJobAttributes     uint16 = 0x0009
	OpGetJobs              uint16 = 0x000A
	OpGetPrinterAttributes uint16 = 0x000B
)

// Status codes (RFC 8011 appendix B).
const (
	StatusOK                                uint16 = 0x0000
	StatusClientErrorBadRequest             uint16 = 0x0400
	StatusClientErrorNotFound               uint16 = 0x0406
	StatusClientErrorNotPossible            uint16 = 0x0409
	StatusClientErrorFormatNotSupported     uint16 = 0x040A
	StatusClientErrorAttributesNotSupported uint16 = 0x040B
	StatusServerErrorInternal               uint16 = 0x0500
	StatusServerErrorOpNotSupported         uint16 = 0x0501
)

// Delimiter (attribute group) tags.
const (
	TagOperationGroup   byte = 0x01
	TagJobGroup         byte = 0x02
	TagEnd              byte = 0x03
	TagPrinterGroup     byte = 0x04
	TagUnsupportedGroup byte = 0x05
)

// Value tags.
const (
	TagUnsupportedValue byte = 0x10
	TagUnknown          byte = 0x12
	TagNoValue          byte = 0x13
	TagInteger          byte = 0x21
	TagBoolean          byte = 0x22
	TagEnum             byte = 0x23
	TagOctetString      byte = 0x30
	TagDateTime         byte = 0x31
	TagResolution       byte = 0x32
	TagRangeOfInteger   byte = 0x33
	TagText             byte = 0x41
	TagName             byte = 0x42
	TagKeyword          byte = 0x44
	TagURI              byte = 0x45
	TagURIScheme        byte = 0x46
	TagCharset          byte = 0x47
	TagNaturalLanguage  byte = 0x48
	TagMimeMediaType    byte = 0x49
)

// Resolution units.
const (
	UnitsDotsPerInch byte = 3
	UnitsDotsPerCm   byte = 4
)

func isDelimiterTag(t byte) bool { return t <= 0x0F }
