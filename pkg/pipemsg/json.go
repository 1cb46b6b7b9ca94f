package pipemsg

// Simple helper functions for JSON message bodies

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseNextJSONValueInString extracts the properly formatted JSON value at the very beginning
// of the string js. It is not an error to have additional characters in js which may or may not
// be valid json, as long as a single valid json value can be decoded without error (note that
// a json dict or a json array are single values).
//
// On success nb is the number of bytes of js consumed by the value. On a syntax error nb is a
// best guess at the number of bytes inspected before the error occurred.
func ParseNextJSONValueInString(js string) (raw json.RawMessage, nb int, err error) {
	decodeStream := json.NewDecoder(strings.NewReader(js))
	err = decodeStream.Decode(&raw)
	nb = int(decodeStream.InputOffset())
	if err != nil {
		raw = nil
		if jsonError, ok := err.(*json.SyntaxError); ok {
			nb = int(jsonError.Offset)
		}
	}
	return raw, nb, err
}

// ParseJSONValueInString is like ParseNextJSONValueInString, except that anything
// other than trailing whitespace after the value is an error.
func ParseJSONValueInString(js string) (raw json.RawMessage, nb int, err error) {
	raw, nb, err = ParseNextJSONValueInString(js)
	if err == nil && strings.TrimSpace(js[nb:]) != "" {
		err = fmt.Errorf("Unexpected character(s) after valid JSON value: %q", js[nb:])
		raw = nil
	}
	return raw, nb, err
}

// ToCompactJSONString marshals v into a compact json string with no indentation or newlines.
func ToCompactJSONString(v interface{}) (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// JSONType returns a Type whose bodies are compact JSON. newMsg must return a
// pointer to a fresh value to decode into.
func JSONType(tag string, newMsg func() Message) Type {
	return Type{
		Tag: tag,
		Decode: func(body string) (Message, error) {
			raw, _, err := ParseJSONValueInString(body)
			if err != nil {
				return nil, err
			}
			msg := newMsg()
			if err := json.Unmarshal(raw, msg); err != nil {
				return nil, err
			}
			return msg, nil
		},
		Encode: func(msg Message) (string, error) {
			return ToCompactJSONString(msg)
		},
	}
}
