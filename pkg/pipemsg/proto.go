package pipemsg

import (
	"fmt"
	"strings"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
)

// Proto carries a protocol buffer message under a tag. Its body is the
// protobuf JSON mapping of Msg on one line.
type Proto struct {
	Tag string
	Msg proto.Message
}

// MessageType implements Message
func (p *Proto) MessageType() string {
	return p.Tag
}

// ProtoType returns a Type for Proto messages tagged tag. newMsg must return an
// empty protobuf message of the expected kind.
func ProtoType(tag string, newMsg func() proto.Message) Type {
	marshaler := jsonpb.Marshaler{OrigName: true}
	unmarshaler := jsonpb.Unmarshaler{AllowUnknownFields: true}
	return Type{
		Tag: tag,
		Decode: func(body string) (Message, error) {
			pb := newMsg()
			if err := unmarshaler.Unmarshal(strings.NewReader(body), pb); err != nil {
				return nil, err
			}
			return &Proto{Tag: tag, Msg: pb}, nil
		},
		Encode: func(msg Message) (string, error) {
			p, ok := msg.(*Proto)
			if !ok || p.Msg == nil {
				return "", fmt.Errorf("%T is not a protobuf message", msg)
			}
			return marshaler.MarshalToString(p.Msg)
		},
	}
}
