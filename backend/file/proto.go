package file

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/codecache/codec"
)

// ProtoMetaCodec stores Meta as a google.protobuf.Struct, for sidecars read
// by non-Go tooling. ExpiresAt is kept as a decimal string since Struct
// numbers are doubles.
type ProtoMetaCodec struct {
	pb codec.Protobuf[*structpb.Struct]
}

var _ codec.Codec[Meta] = ProtoMetaCodec{}

func NewProtoMetaCodec() ProtoMetaCodec {
	return ProtoMetaCodec{pb: codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}
}

func (c ProtoMetaCodec) Encode(m Meta) ([]byte, error) {
	tags := make([]*structpb.Value, 0, len(m.Tags))
	for _, t := range m.Tags {
		tags = append(tags, structpb.NewStringValue(t))
	}
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"tags":       structpb.NewListValue(&structpb.ListValue{Values: tags}),
		"expires_at": structpb.NewStringValue(strconv.FormatInt(m.ExpiresAt, 10)),
	}}
	return c.pb.Encode(s)
}

func (c ProtoMetaCodec) Decode(b []byte) (Meta, error) {
	s, err := c.pb.Decode(b)
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if v, ok := s.GetFields()["expires_at"]; ok {
		m.ExpiresAt, err = strconv.ParseInt(v.GetStringValue(), 10, 64)
		if err != nil {
			return Meta{}, fmt.Errorf("file: expires_at: %w", err)
		}
	}
	for _, v := range s.GetFields()["tags"].GetListValue().GetValues() {
		m.Tags = append(m.Tags, v.GetStringValue())
	}
	return m, nil
}
