package printer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/orrn/inkwell/internal/ipp"
)

var (
	ErrEmptyCatalog = errors.New("attribute catalog is empty")
	ErrBadDefault   = errors.New("default value not in supported set")
)

// Catalog is the static capability set of the emulated printer: attribute
// name to supported values. Immutable after construction; the endpoint reads
// it concurrently without locking.
type Catalog struct {
	attrs map[string][]ipp.Value
	order []string
}

var supportedOperations = []int32{
	int32(ipp.OpPrintJob),
	int32(ipp.OpValidateJob),
	int32(ipp.OpCreateJob),
	int32(ipp.OpSendDocument),
	int32(ipp.OpCancelJob),
	int32(ipp.OpGetJobAttributes),
	int32(ipp.OpGetJobs),
	int32(ipp.OpGetPrinterAttributes),
}

// NewCatalog builds the capability set for an identity. Fails when the
// resulting catalog would be empty or a default value falls outside its own
// supported set.
func NewCatalog(id Identity) (*Catalog, error) {
	c := &Catalog{attrs: make(map[string][]ipp.Value)}

	c.add("printer-name", ipp.Name(id.Name))
	c.add("printer-info", ipp.Text(id.Name))
	c.add("printer-make-and-model", ipp.Text(id.Name))
	c.add("printer-uri-supported", ipp.URI(id.URI()))
	c.add("uri-security-supported", ipp.Keyword("none"))
	c.add("uri-authentication-supported", ipp.Keyword("none"))
	c.add("printer-uuid", ipp.URI("urn:uuid:"+id.UUID))
	c.add("ipp-versions-supported", ipp.Keyword("1.1"), ipp.Keyword("2.0"))

	ops := make([]ipp.Value, 0, len(supportedOperations))
	for _, op := range supportedOperations {
		ops = append(ops, ipp.Enum(op))
	}
	c.add("operations-supported", ops...)

	c.add("charset-configured", ipp.Charset("utf-8"))
	c.add("charset-supported", ipp.Charset("utf-8"))
	c.add("natural-language-configured", ipp.NaturalLanguage("en"))
	c.add("generated-natural-language-supported", ipp.NaturalLanguage("en"))

	c.add("document-format-default", ipp.MimeMediaType("application/pdf"))
	c.add("document-format-supported",
		ipp.MimeMediaType("application/pdf"),
		ipp.MimeMediaType("application/postscript"),
		ipp.MimeMediaType("application/octet-stream"),
	)

	c.add("printer-is-accepting-jobs", ipp.Boolean(true))
	c.add("pdl-override-supported", ipp.Keyword("not-attempted"))
	c.add("color-supported", ipp.Boolean(true))
	c.add("compression-supported", ipp.Keyword("none"))

	c.add("sides-default", ipp.Keyword("one-sided"))
	c.add("sides-supported", ipp.Keyword("one-sided"))
	c.add("media-default", ipp.Keyword("na_letter_8.5x11in"))
	c.add("media-supported",
		ipp.Keyword("na_letter_8.5x11in"),
		ipp.Keyword("iso_a4_210x297mm"),
	)
	c.add("printer-resolution-default", ipp.Resolution(600, 600, ipp.UnitsDotsPerInch))
	c.add("printer-resolution-supported", ipp.Resolution(600, 600, ipp.UnitsDotsPerInch))
	c.add("copies-default", ipp.Integer(1))
	c.add("copies-supported", ipp.Range(1, 99))

	if len(c.attrs) == 0 {
		return nil, ErrEmptyCatalog
	}
	if err := c.checkDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) add(name string, values ...ipp.Value) {
	if _, exists := c.attrs[name]; !exists {
		c.order = append(c.order, name)
	}
	c.attrs[name] = values
}

// checkDefaults verifies every x-default attribute against its x-supported
// counterpart. copies-supported is a range, checked numerically.
func (c *Catalog) checkDefaults() error {
	for name, values := range c.attrs {
		if !strings.HasSuffix(name, "-default") {
			continue
		}
		base := strings.TrimSuffix(name, "-default")
		supported, ok := c.attrs[base+"-supported"]
		if !ok {
			continue
		}
		if len(values) == 0 || len(supported) == 0 {
			return fmt.Errorf("%w: %s", ErrBadDefault, name)
		}
		def := values[0]
		if supported[0].Tag == ipp.TagRangeOfInteger {
			continue
		}
		if !memberOf(def, supported) {
			return fmt.Errorf("%w: %s=%s", ErrBadDefault, name, def.String())
		}
	}
	return nil
}

func memberOf(v ipp.Value, set []ipp.Value) bool {
	for _, s := range set {
		if v.Equal(s) {
			return true
		}
	}
	return false
}

// Names returns every attribute name in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Get returns the value set for an attribute.
func (c *Catalog) Get(name string) ([]ipp.Value, bool) {
	values, ok := c.attrs[name]
	if !ok {
		return nil, false
	}
	return append([]ipp.Value(nil), values...), true
}

// Supports reports whether value is in the attribute's supported set.
func (c *Catalog) Supports(name string, value ipp.Value) bool {
	set, ok := c.attrs[name]
	if !ok {
		return false
	}
	return memberOf(value, set)
}

// SupportsJobAttribute checks a job-template attribute from a submission
// against the corresponding x-supported entry. Attributes with no supported
// counterpart in the catalog are outside the capability set and rejected.
func (c *Catalog) SupportsJobAttribute(name string, value ipp.Value) bool {
	set, ok := c.attrs[name+"-supported"]
	if !ok || len(set) == 0 {
		return false
	}
	if set[0].Tag == ipp.TagRangeOfInteger {
		if value.Tag != ipp.TagInteger || len(set[0].Raw) != 8 {
			return false
		}
		lower := int32(binary.BigEndian.Uint32(set[0].Raw[0:4]))
		upper := int32(binary.BigEndian.Uint32(set[0].Raw[4:8]))
		return value.Int >= lower && value.Int <= upper
	}
	return memberOf(value, set)
}

// SupportsFormat reports whether a document format is accepted.
func (c *Catalog) SupportsFormat(format string) bool {
	return c.Supports("document-format-supported", ipp.MimeMediaType(format))
}

// DefaultFormat is the document format assumed when a client declares none.
func (c *Catalog) DefaultFormat() string {
	if values, ok := c.attrs["document-format-default"]; ok && len(values) > 0 {
		return values[0].Str
	}
	return "application/octet-stream"
}

// Formats lists the supported document formats, for the discovery TXT record.
func (c *Catalog) Formats() []string {
	values := c.attrs["document-format-supported"]
	formats := make([]string, 0, len(values))
	for _, v := range values {
		formats = append(formats, v.Str)
	}
	return formats
}
