package feed

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec frames events on a remote transport.
type Codec interface {
	Name() string
	Marshal(ev ChangeEvent) ([]byte, error)
	Unmarshal(b []byte, ev *ChangeEvent) error
}

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "cbor":
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("feed: unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string                              { return "json" }
func (jsonCodec) Marshal(ev ChangeEvent) ([]byte, error)    { return json.Marshal(ev) }
func (jsonCodec) Unmarshal(b []byte, ev *ChangeEvent) error { return json.Unmarshal(b, ev) }

// cborCodec reuses the json field names; the payload travels as a byte
// string holding the JSON snapshot.
type cborCodec struct{}

func (cborCodec) Name() string                              { return "cbor" }
func (cborCodec) Marshal(ev ChangeEvent) ([]byte, error)    { return cbor.Marshal(ev) }
func (cborCodec) Unmarshal(b []byte, ev *ChangeEvent) error { return cbor.Unmarshal(b, ev) }
