package pipemsg

import (
	"encoding/xml"
	"strings"
)

// xmlDeclaration is written in front of XML bodies. xml.Header cannot be used as
// is because it ends with a newline.
const xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>`

// XMLType returns a Type whose bodies are single-line XML documents, the form
// written by .NET's XmlSerializer. newMsg must return a pointer to a fresh value
// to decode into.
func XMLType(tag string, newMsg func() Message) Type {
	return Type{
		Tag: tag,
		Decode: func(body string) (Message, error) {
			msg := newMsg()
			// .NET writers may prefix a byte order mark
			body = strings.TrimPrefix(body, "\ufeff")
			if err := xml.Unmarshal([]byte(body), msg); err != nil {
				return nil, err
			}
			return msg, nil
		},
		Encode: func(msg Message) (string, error) {
			b, err := xml.Marshal(msg)
			if err != nil {
				return "", err
			}
			return xmlDeclaration + string(b), nil
		},
	}
}
