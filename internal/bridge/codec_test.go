package bridge

import (
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/template"
)

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("json")
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, c.FrameType())

	c, err = CodecFor("msgpack")
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, c.FrameType())

	_, err = CodecFor("xml")
	assert.Error(t, err)

	assert.Equal(t, []string{"kiln.json", "kiln.msgpack"}, Subprotocols())
	_, ok := codecForSubprotocol("kiln.msgpack")
	assert.True(t, ok)
	_, ok = codecForSubprotocol("")
	assert.False(t, ok)
}

func TestCodecsAgreeOnWireNames(t *testing.T) {
	push := Push{
		Type:     PushPatch,
		ID:       "a",
		HTML:     "<b>1</b>",
		Bindings: []template.Binding{{EventName: "click", HandlerName: "inc"}},
	}

	for _, c := range []Codec{JSON, Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(push)
			require.NoError(t, err)

			var generic map[string]any
			require.NoError(t, c.Unmarshal(data, &generic))
			assert.Equal(t, "patch", generic["type"])
			assert.Equal(t, "<b>1</b>", generic["html"])
			bindings, ok := generic["bindings"].([]any)
			require.True(t, ok)
			first, ok := bindings[0].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "click", first["event"])
			assert.Equal(t, "inc", first["handler"])
			assert.NotContains(t, generic, "error")
		})
	}
}
