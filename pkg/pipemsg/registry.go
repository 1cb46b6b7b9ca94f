// Package pipemsg implements typed messages on top of the line framing of a pipe
// channel. A typed message travels as one line made of its type's tag immediately
// followed by the serialized body, e.g.
//
//	::example::<?xml version="1.0" encoding="utf-8"?><ExampleMessage><Id>42</Id></ExampleMessage>
//
// A Registry maps tags to Types, each of which knows how to encode and decode its
// body. Receivers recognize a line by the first registered tag it starts with.
package pipemsg

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pipeshare "github.com/sammck-go/pipechan/share"
)

var (
	// ErrUnknownType is returned when a message's tag has no registered Type
	ErrUnknownType = errors.New("unknown message type")

	// ErrRegistrySealed is returned by registration attempts after the registry
	// has been used for lookup
	ErrRegistrySealed = errors.New("message registry is sealed")

	// ErrInvalidTag is returned when registering a Type whose tag is empty,
	// blank, or contains a line break
	ErrInvalidTag = errors.New("invalid message tag")

	// ErrMultilineBody is returned when an encoded body would span more than one line
	ErrMultilineBody = errors.New("encoded message body contains a line break")
)

// Message is a value that can be sent as a typed message. MessageType returns
// the tag of the registered Type that encodes it.
type Message interface {
	MessageType() string
}

// Type describes one kind of typed message.
type Type struct {
	// Tag is the marker that prefixes every line carrying this type
	Tag string

	// Decode builds a message from the body that follows the tag
	Decode func(body string) (Message, error)

	// Encode serializes a message into a single-line body
	Encode func(msg Message) (string, error)
}

// Catalog supplies a group of Types. Catalogs handed to a Registry are resolved
// once, the first time the registry is consulted.
type Catalog func() []Type

// Registry holds the known message Types in registration order. It can be
// populated until it is first consulted; after that it is read-only.
type Registry struct {
	logger pipeshare.Logger

	lock     sync.Mutex
	catalogs []Catalog
	types    []Type
	byTag    map[string]int
	sealed   bool

	resolveOnce sync.Once
}

// NewRegistry creates a Registry that will resolve the given catalogs on first use.
// logger may be nil.
func NewRegistry(logger pipeshare.Logger, catalogs ...Catalog) *Registry {
	if logger == nil {
		logger = pipeshare.NewNilLogger()
	}
	return &Registry{
		logger:   logger.Fork("Registry"),
		catalogs: catalogs,
		byTag:    make(map[string]int),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry used by channels that are not
// configured with one. It starts out with the builtin catalog.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(pipeshare.NewLogger("pipemsg", pipeshare.LogLevelWarning), BuiltinCatalog)
	})
	return defaultRegistry
}

// AddCatalog schedules another catalog for resolution.
func (r *Registry) AddCatalog(c Catalog) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	r.catalogs = append(r.catalogs, c)
	return nil
}

// Register adds a Type. If its tag is already registered the first registration
// is kept and the duplicate is logged and ignored.
func (r *Registry) Register(t Type) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, t.Tag)
	}
	return r.add(t)
}

func (r *Registry) add(t Type) error {
	if strings.TrimSpace(t.Tag) == "" || strings.ContainsAny(t.Tag, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidTag, t.Tag)
	}
	if t.Decode == nil || t.Encode == nil {
		return fmt.Errorf("message type %q needs both an encoder and a decoder", t.Tag)
	}
	if _, ok := r.byTag[t.Tag]; ok {
		r.logger.WLogf("Duplicate message tag %q ignored; first registration wins", t.Tag)
		return nil
	}
	r.byTag[t.Tag] = len(r.types)
	r.types = append(r.types, t)
	r.logger.TLogf("Registered message tag %q", t.Tag)
	return nil
}

// resolve runs the pending catalogs and seals the registry.
func (r *Registry) resolve() {
	r.resolveOnce.Do(func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		for _, c := range r.catalogs {
			for _, t := range c() {
				if err := r.add(t); err != nil {
					r.logger.WLogf("Catalog entry rejected: %s", err)
				}
			}
		}
		r.catalogs = nil
		r.sealed = true
	})
}

// Lookup returns the Type registered for tag.
func (r *Registry) Lookup(tag string) (Type, bool) {
	r.resolve()
	i, ok := r.byTag[tag]
	if !ok {
		return Type{}, false
	}
	return r.types[i], true
}

// Match returns the first registered Type whose tag prefixes line.
func (r *Registry) Match(line string) (Type, bool) {
	r.resolve()
	for _, t := range r.types {
		if strings.HasPrefix(line, t.Tag) {
			return t, true
		}
	}
	return Type{}, false
}

// Tags returns the registered tags in registration order.
func (r *Registry) Tags() []string {
	r.resolve()
	tags := make([]string, len(r.types))
	for i, t := range r.types {
		tags[i] = t.Tag
	}
	return tags
}
