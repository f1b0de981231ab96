package ipp

import "errors"

var (
	ErrMalformed = errors.New("malformed ipp message")
	ErrTruncated = errors.New("truncated ipp message")
)

// Attribute is a named attribute with one or more values.
type Attribute struct {
	Name   string
	Values []Value
}

func Attr(name string, values ...Value) Attribute {
	return Attribute{Name: name, Values: values}
}

// Group is one delimited attribute group.
type Group struct {
	Tag        byte
	Attributes []Attribute
}

func (g *Group) Add(a Attribute) {
	g.Attributes = append(g.Attributes, a)
}

func (g *Group) Get(name string) (Attribute, bool) {
	for _, a := range g.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Message is a decoded IPP request or response. Code holds the operation id
// on requests and the status code on responses.
type Message struct {
	VersionMajor byte
	VersionMinor byte
	Code         uint16
	RequestID    uint32
	Groups       []Group
}

// Group returns the first group with the given delimiter tag.
func (m *Message) Group(tag byte) (*Group, bool) {
	for i := range m.Groups {
		if m.Groups[i].Tag == tag {
			return &m.Groups[i], true
		}
	}
	return nil, false
}

// OperationAttr looks an attribute up in the operation-attributes group.
func (m *Message) OperationAttr(name string) (Attribute, bool) {
	g, ok := m.Group(TagOperationGroup)
	if !ok {
		return Attribute{}, false
	}
	return g.Get(name)
}

// AddGroup appends an empty group and returns it for population.
func (m *Message) AddGroup(tag byte) *Group {
	m.Groups = append(m.Groups, Group{Tag: tag})
	return &m.Groups[len(m.Groups)-1]
}

// NewResponse builds a response skeleton for the given request: version
// echoed, mandatory operation-attributes group with charset and natural
// language populated.
func NewResponse(req *Message, status uint16) *Message {
	resp := &Message{
		VersionMajor: req.VersionMajor,
		VersionMinor: req.VersionMinor,
		Code:         status,
		RequestID:    req.RequestID,
	}
	op := resp.AddGroup(TagOperationGroup)
	op.Add(Attr("attributes-charset", Charset("utf-8")))
	op.Add(Attr("attributes-natural-language", NaturalLanguage("en")))
	return resp
}
