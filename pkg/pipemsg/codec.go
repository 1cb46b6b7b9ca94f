package pipemsg

import (
	"fmt"
	"strings"

	pipeshare "github.com/sammck-go/pipechan/share"
)

// Envelope is a typed message line split into its tag and body.
type Envelope struct {
	Tag  string
	Body string
}

func (e Envelope) String() string {
	return e.Tag + e.Body
}

// Codec converts between Messages and the lines that carry them.
type Codec struct {
	pipeshare.Logger
	registry *Registry
}

// NewCodec creates a Codec over registry (Default() if nil). logger may be nil.
func NewCodec(logger pipeshare.Logger, registry *Registry) *Codec {
	if logger == nil {
		logger = pipeshare.NewNilLogger()
	}
	if registry == nil {
		registry = Default()
	}
	return &Codec{
		Logger:   logger.Fork("Codec"),
		registry: registry,
	}
}

// Registry returns the registry the codec resolves tags with
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Encode returns the line for msg: its tag immediately followed by its body.
func (c *Codec) Encode(msg Message) (line string, err error) {
	if msg == nil {
		return "", fmt.Errorf("%w: nil message", ErrUnknownType)
	}
	tag := msg.MessageType()
	t, ok := c.registry.Lookup(tag)
	if !ok {
		return "", fmt.Errorf("%w: %q (%T)", ErrUnknownType, tag, msg)
	}
	defer func() {
		if r := recover(); r != nil {
			line = ""
			err = fmt.Errorf("encoder for %q panicked: %v", tag, r)
		}
	}()
	body, err := t.Encode(msg)
	if err != nil {
		return "", fmt.Errorf("cannot encode %q message: %w", tag, err)
	}
	if strings.ContainsAny(body, "\r\n") {
		return "", fmt.Errorf("%w: %q message", ErrMultilineBody, tag)
	}
	return Envelope{Tag: tag, Body: body}.String(), nil
}

// Split finds the Type of line and separates its tag from its body.
func (c *Codec) Split(line string) (Envelope, Type, bool) {
	if strings.TrimSpace(line) == "" {
		return Envelope{}, Type{}, false
	}
	t, ok := c.registry.Match(line)
	if !ok {
		return Envelope{}, Type{}, false
	}
	return Envelope{Tag: t.Tag, Body: line[len(t.Tag):]}, t, true
}

// Decode returns the typed message carried by line, or nil if line is not a
// well-formed message of a registered type. Decoder failures are logged, never
// returned.
func (c *Codec) Decode(line string) (msg Message) {
	env, t, ok := c.Split(line)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			c.DLogf("decoder for %q panicked: %v", env.Tag, r)
			msg = nil
		}
	}()
	msg, err := t.Decode(env.Body)
	if err != nil {
		c.DLogf("cannot decode %q message: %s", env.Tag, err)
		return nil
	}
	return msg
}
