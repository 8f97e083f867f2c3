package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes messages for one WebSocket frame type.
type Codec interface {
	Name() string
	Subprotocol() string
	FrameType() websocket.MessageType
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Subprotocol() string { return "kiln.json" }
func (jsonCodec) FrameType() websocket.MessageType { return websocket.MessageText }
func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Subprotocol() string { return "kiln.msgpack" }
func (msgpackCodec) FrameType() websocket.MessageType { return websocket.MessageBinary }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

var codecs = []Codec{JSON, Msgpack}

// CodecFor returns the codec registered under name.
func CodecFor(name string) (Codec, error) {
	for _, c := range codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// Subprotocols lists the subprotocols a client may request, one per codec.
func Subprotocols() []string {
	out := make([]string, len(codecs))
	for i, c := range codecs {
		out[i] = c.Subprotocol()
	}
	return out
}

func codecForSubprotocol(p string) (Codec, bool) {
	for _, c := range codecs {
		if c.Subprotocol() == p {
			return c, true
		}
	}
	return nil, false
}
