package ws

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecFor(t *testing.T) {
	assert.Equal(t, SubprotocolJSON, codecFor("").Name())
	assert.Equal(t, SubprotocolJSON, codecFor(SubprotocolJSON).Name())
	assert.Equal(t, SubprotocolCBOR, codecFor(SubprotocolCBOR).Name())

	assert.Equal(t, websocket.TextMessage, jsonCodec{}.MessageType())
	assert.Equal(t, websocket.BinaryMessage, cborCodec{}.MessageType())
}

func TestJSONCodecDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    Inbound
		wantErr bool
	}{
		{
			name:  "invoke",
			frame: `{"action":"invoke","id":"1","payload":{"method":"GET","path":"/windows"}}`,
			want:  Inbound{Action: ActionInvoke, ID: "1", Invoke: &InvokePayload{Method: "GET", Path: "/windows"}},
		},
		{
			name:  "run-tool without body",
			frame: `{"action":"run-tool","id":"2","payload":{"args":"scan --mode fast"}}`,
			want:  Inbound{Action: ActionRunTool, ID: "2", RunTool: &RunToolPayload{Args: "scan --mode fast"}},
		},
		{
			name:  "unknown action keeps envelope",
			frame: `{"action":"ping","id":"3"}`,
			want:  Inbound{Action: "ping", ID: "3"},
		},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "missing payload", frame: `{"action":"invoke","id":"4"}`, wantErr: true},
		{name: "wrong payload type", frame: `{"action":"run-tool","id":"5","payload":{"args":7}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jsonCodec{}.Decode([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONCodecRunToolBody(t *testing.T) {
	got, err := jsonCodec{}.Decode([]byte(`{"action":"run-tool","id":"1","payload":{"args":"","body":"y\n"}}`))
	require.NoError(t, err)
	require.NotNil(t, got.RunTool.Body)
	assert.Equal(t, "y\n", *got.RunTool.Body)
}

func TestJSONCodecEncode(t *testing.T) {
	code := 3
	data, err := jsonCodec{}.Encode(Envelope{
		Action:  ActionToolStatus,
		ID:      "9",
		Payload: ToolStatus{Status: StatusExit, Code: &code},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"tool-status","id":"9","payload":{"status":"exit","code":3}}`, string(data))
}

func TestCBORCodec(t *testing.T) {
	frame, err := cbor.Marshal(map[string]any{
		"action": ActionInvoke,
		"id":     "c1",
		"payload": map[string]any{
			"method": "PATCH",
			"path":   "/windows/1",
			"body":   map[string]any{"focus": true},
		},
	})
	require.NoError(t, err)

	got, err := cborCodec{}.Decode(frame)
	require.NoError(t, err)
	require.NotNil(t, got.Invoke)
	assert.Equal(t, "/windows/1", got.Invoke.Path)
	// Nested maps come back string-keyed
	assert.Equal(t, map[string]any{"focus": true}, got.Invoke.Body)

	_, err = cborCodec{}.Decode([]byte{0xff, 0x00})
	assert.Error(t, err)

	data, err := cborCodec{}.Encode(Envelope{Action: ActionToolOutput, ID: "c1", Payload: ToolOutput{Stream: "stdout", Line: "ok"}})
	require.NoError(t, err)

	var back struct {
		Action  string     `cbor:"action"`
		Payload ToolOutput `cbor:"payload"`
	}
	require.NoError(t, cbor.Unmarshal(data, &back))
	assert.Equal(t, ActionToolOutput, back.Action)
	assert.Equal(t, ToolOutput{Stream: "stdout", Line: "ok"}, back.Payload)
}
