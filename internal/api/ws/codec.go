package ws

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Subprotocols offered during upgrade, in order of preference.
const (
	SubprotocolJSON = "control-bridge.json"
	SubprotocolCBOR = "control-bridge.cbor"
)

// Codec frames envelopes for one subprotocol.
type Codec interface {
	Name() string
	// MessageType is the websocket frame type used for outbound envelopes.
	MessageType() int
	Encode(env Envelope) ([]byte, error)
	Decode(data []byte) (Inbound, error)
}

// codecFor returns the codec for a negotiated subprotocol. Clients that
// negotiate nothing speak JSON.
func codecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolCBOR {
		return cborCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

type jsonInbound struct {
	Action  string          `json:"action"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (jsonCodec) Name() string     { return SubprotocolJSON }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) Encode(env Envelope) ([]byte, error) {
	return sonic.Marshal(env)
}

func (jsonCodec) Decode(data []byte) (Inbound, error) {
	var raw jsonInbound
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return decodePayload(raw.Action, raw.ID, raw.Payload, sonic.Unmarshal)
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	// Generic bodies decode to string-keyed maps so they re-encode as JSON
	if cborDec, err = (cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}).DecMode(); err != nil {
		panic(err)
	}
}

type cborCodec struct{}

type cborInbound struct {
	Action  string          `cbor:"action"`
	ID      string          `cbor:"id"`
	Payload cbor.RawMessage `cbor:"payload"`
}

func (cborCodec) Name() string     { return SubprotocolCBOR }
func (cborCodec) MessageType() int { return websocket.BinaryMessage }

func (cborCodec) Encode(env Envelope) ([]byte, error) {
	return cborEnc.Marshal(env)
}

func (cborCodec) Decode(data []byte) (Inbound, error) {
	var raw cborInbound
	if err := cborDec.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return decodePayload(raw.Action, raw.ID, raw.Payload, cborDec.Unmarshal)
}

func decodePayload(action, id string, payload []byte, unmarshal func([]byte, any) error) (Inbound, error) {
	in := Inbound{Action: action, ID: id}

	var target any
	switch action {
	case ActionInvoke:
		in.Invoke = &InvokePayload{}
		target = in.Invoke
	case ActionRunTool:
		in.RunTool = &RunToolPayload{}
		target = in.RunTool
	default:
		return in, nil
	}

	if len(payload) == 0 {
		return Inbound{}, fmt.Errorf("%s envelope has no payload", action)
	}
	if err := unmarshal(payload, target); err != nil {
		return Inbound{}, fmt.Errorf("decoding %s payload: %w", action, err)
	}
	return in, nil
}
