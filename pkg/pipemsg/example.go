package pipemsg

import (
	"encoding/xml"
)

// ExampleTag is the tag of Example messages
const ExampleTag = "::example::"

// Example is a minimal typed message carrying an id. Its body is the XML form
// exchanged with .NET peers.
type Example struct {
	XMLName xml.Name `xml:"ExampleMessage" json:"-"`
	ID      int      `xml:"Id" json:"id"`
}

// NewExample returns an Example with the given id
func NewExample(id int) *Example {
	return &Example{ID: id}
}

// MessageType implements Message
func (m *Example) MessageType() string {
	return ExampleTag
}

// ExampleType is the registered Type of Example messages
func ExampleType() Type {
	return XMLType(ExampleTag, func() Message { return &Example{} })
}

// BuiltinCatalog lists the message types every channel understands by default.
func BuiltinCatalog() []Type {
	return []Type{ExampleType()}
}
