package pipemsg

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	pipeshare "github.com/sammck-go/pipechan/share"
)

func fixedType(tag, result string) Type {
	return Type{
		Tag:    tag,
		Decode: func(body string) (Message, error) { return &note{Text: result + ":" + body}, nil },
		Encode: func(Message) (string, error) { return "", nil },
	}
}

func TestRegistryFirstRegistrationWins(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(pipeshare.NewLoggerWithWriter(&buf, "test", pipeshare.LogLevelWarning))
	if err := r.Register(fixedType("::dup::", "first")); err != nil {
		t.Fatalf("Register failed: %s", err)
	}
	if err := r.Register(fixedType("::dup::", "second")); err != nil {
		t.Fatalf("duplicate Register returned %s; want it logged, not failed", err)
	}
	if !strings.Contains(buf.String(), "::dup::") {
		t.Errorf("duplicate tag was not logged: %q", buf.String())
	}
	msg := NewCodec(nil, r).Decode("::dup::x")
	if n, ok := msg.(*note); !ok || n.Text != "first:x" {
		t.Fatalf("Decode = %#v, want the first registration", msg)
	}
}

func TestRegistryPrefixOrder(t *testing.T) {
	r := NewRegistry(nil, func() []Type {
		return []Type{fixedType("::a::", "short"), fixedType("::a::long::", "long")}
	})
	msg := NewCodec(nil, r).Decode("::a::long::body")
	if n, ok := msg.(*note); !ok || n.Text != "short:long::body" {
		t.Fatalf("Decode = %#v, want the first registered matching tag", msg)
	}
	if got, want := r.Tags(), []string{"::a::", "::a::long::"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Tags() = %v, want %v", got, want)
	}
}

func TestRegistrySealedAfterUse(t *testing.T) {
	resolved := 0
	r := NewRegistry(nil, func() []Type {
		resolved++
		return []Type{ExampleType()}
	})
	if err := r.Register(fixedType("::early::", "early")); err != nil {
		t.Fatalf("Register before use failed: %s", err)
	}
	if _, ok := r.Lookup(ExampleTag); !ok {
		t.Fatalf("catalog type not found")
	}
	if _, ok := r.Lookup("::early::"); !ok {
		t.Fatalf("explicitly registered type not found")
	}
	r.Tags()
	if resolved != 1 {
		t.Fatalf("catalog resolved %d times", resolved)
	}
	if err := r.Register(fixedType("::late::", "late")); !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("Register after use = %v, want ErrRegistrySealed", err)
	}
	if err := r.AddCatalog(BuiltinCatalog); !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("AddCatalog after use = %v, want ErrRegistrySealed", err)
	}
}

func TestRegistryRejectsBadTypes(t *testing.T) {
	r := NewRegistry(nil)
	for _, tag := range []string{"", "  ", "a\nb"} {
		if err := r.Register(fixedType(tag, "x")); !errors.Is(err, ErrInvalidTag) {
			t.Errorf("Register(%q) = %v, want ErrInvalidTag", tag, err)
		}
	}
	if err := r.Register(Type{Tag: "::nodecode::"}); err == nil {
		t.Errorf("Register accepted a type without codec functions")
	}
}

func TestDefaultRegistryHasExample(t *testing.T) {
	if _, ok := Default().Lookup(ExampleTag); !ok {
		t.Fatalf("default registry lacks %q", ExampleTag)
	}
}
