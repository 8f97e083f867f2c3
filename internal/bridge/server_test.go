package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/component"
	"github.com/conneroisu/kiln/internal/registry"
	"github.com/conneroisu/kiln/internal/template"
)

type counter struct{}

func (c *counter) Inc(inst *component.Instance) {
	v, _ := inst.Get("count")
	inst.Set("count", v.(int)+1)
}

func (c *counter) Ping(inst *component.Instance) {
	inst.Emit("pinged", "hi")
}

type harness struct {
	rt     *component.Runtime
	reg    *registry.Registry
	server *Server
	http   *httptest.Server
	ctx    context.Context
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	rtOpts := component.DefaultOptions()
	rtOpts.Compiler = template.NewCompiler()
	rtOpts.FrameInterval = 2 * time.Millisecond
	rt, err := component.NewRuntime(rtOpts)
	require.NoError(t, err)

	reg := registry.New()
	reg.Define(&registry.Definition{
		Config: component.Config{
			Selector: "x-counter",
			Template: `<button (click)="inc">{{count}}</button><i (tap)="ping"></i>`,
			State:    map[string]any{"count": 0},
		},
		Factory: func() any { return &counter{} },
	})
	reg.Define(&registry.Definition{Config: component.Config{
		Selector: "x-list",
		Template: `<x-item *for="n of items" label="{{n}}"></x-item>`,
		State:    map[string]any{"items": []string{"a"}},
	}})
	reg.Define(&registry.Definition{Config: component.Config{
		Selector:  "x-item",
		Template:  `<b>{{label}}</b>`,
		Style:     "b { color: red }",
		StyleMode: component.StyleScoped,
		Inputs:    []string{"label"},
	}})

	server, err := New(rt, reg, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go rt.Loop.Run(ctx)

	hs := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
		hs.Close()
		cancel()
	})
	return &harness{rt: rt, reg: reg, server: server, http: hs, ctx: ctx}
}

func (h *harness) dial(t *testing.T, subprotocol string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	opts := &websocket.DialOptions{}
	if subprotocol != "" {
		opts.Subprotocols = []string{subprotocol}
	}
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, codec Codec, msg Message) {
	t.Helper()
	data, err := codec.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, codec.FrameType(), data))
}

func receive(t *testing.T, conn *websocket.Conn, codec Codec) Push {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, codec.FrameType(), frame)
	var p Push
	require.NoError(t, codec.Unmarshal(data, &p))
	return p
}

func TestMountEventAndPatch(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t, JSON.Subprotocol())

	ready := receive(t, conn, JSON)
	assert.Equal(t, PushReady, ready.Type)
	assert.NotEmpty(t, ready.Session)

	send(t, conn, JSON, Message{Type: MsgMount, ID: "a", Selector: "x-counter"})
	patch := receive(t, conn, JSON)
	assert.Equal(t, PushPatch, patch.Type)
	assert.Equal(t, "a", patch.ID)
	assert.Equal(t, "<button>0</button><i></i>", patch.HTML)
	assert.Equal(t, []template.Binding{{EventName: "click", HandlerName: "inc"}, {EventName: "tap", HandlerName: "ping"}}, patch.Bindings)

	send(t, conn, JSON, Message{Type: MsgEvent, ID: "a", Event: "click", Target: "0"})
	patch = receive(t, conn, JSON)
	assert.Equal(t, "<button>1</button><i></i>", patch.HTML)

	send(t, conn, JSON, Message{Type: MsgEvent, ID: "a", Event: "tap", Target: "1"})
	emit := receive(t, conn, JSON)
	assert.Equal(t, PushEmit, emit.Type)
	assert.Equal(t, "pinged", emit.Name)
	assert.Equal(t, "hi", emit.Detail)

	send(t, conn, JSON, Message{Type: MsgEvent, ID: "a", Event: "click", Target: "9"})
	failure := receive(t, conn, JSON)
	assert.Equal(t, PushError, failure.Type)
	assert.Contains(t, failure.Error, "event target not found")

	send(t, conn, JSON, Message{Type: MsgUnmount, ID: "a"})
	send(t, conn, JSON, Message{Type: MsgAttr, ID: "a", Name: "x", Value: "y"})
	failure = receive(t, conn, JSON)
	assert.Equal(t, PushError, failure.Type)
	assert.Equal(t, "a", failure.ID)
	assert.Contains(t, failure.Error, "unknown id")
}

func TestMessageErrors(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t, JSON.Subprotocol())
	receive(t, conn, JSON)

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"missing id", Message{Type: MsgMount, Selector: "x-counter"}, "message has no id"},
		{"unknown selector", Message{Type: MsgMount, ID: "z", Selector: "x-none"}, "x-none"},
		{"unknown type", Message{Type: "reboot", ID: "z"}, "unknown id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, JSON, tt.msg)
			p := receive(t, conn, JSON)
			assert.Equal(t, PushError, p.Type)
			assert.Contains(t, p.Error, tt.want)
		})
	}

	send(t, conn, JSON, Message{Type: MsgMount, ID: "b", Selector: "x-counter"})
	receive(t, conn, JSON)
	send(t, conn, JSON, Message{Type: MsgMount, ID: "b", Selector: "x-counter"})
	p := receive(t, conn, JSON)
	assert.Contains(t, p.Error, "already mounted")

	send(t, conn, JSON, Message{Type: "reboot", ID: "b"})
	p = receive(t, conn, JSON)
	assert.Contains(t, p.Error, "unknown message type")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	p = receive(t, conn, JSON)
	assert.Contains(t, p.Error, "malformed message")
}

func TestMsgpackCodec(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t, Msgpack.Subprotocol())
	assert.Equal(t, PushReady, receive(t, conn, Msgpack).Type)

	send(t, conn, Msgpack, Message{Type: MsgMount, ID: "a", Selector: "x-counter"})
	patch := receive(t, conn, Msgpack)
	assert.Equal(t, "<button>0</button><i></i>", patch.HTML)
	require.Len(t, patch.Bindings, 2)
	assert.Equal(t, "inc", patch.Bindings[0].HandlerName)
}

func TestDefaultCodecWithoutSubprotocol(t *testing.T) {
	h := newHarness(t, Options{Codec: "msgpack"})
	conn := h.dial(t, "")
	assert.Equal(t, PushReady, receive(t, conn, Msgpack).Type)
}

func TestNestedComponentsAreComposed(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t, "")
	receive(t, conn, JSON)

	send(t, conn, JSON, Message{Type: MsgMount, ID: "l", Selector: "x-list"})
	patch := receive(t, conn, JSON)
	assert.Equal(t,
		`<x-item label="a"><template shadowrootmode="open"><style data-kiln-style="">b { color: red }</style><b>a</b></template></x-item>`,
		patch.HTML)

	var sessions []*Session
	require.NoError(t, h.rt.Loop.Do(h.ctx, func() { sessions = h.server.Sessions() }))
	require.Len(t, sessions, 1)

	updated := &registry.Definition{Config: component.Config{
		Selector: "x-item",
		Template: `<em>{{label}}</em>`,
		Inputs:   []string{"label"},
	}}
	h.reg.Replace(updated)
	require.NoError(t, h.rt.Loop.Do(h.ctx, func() { h.server.Reload(updated) }))

	patch = receive(t, conn, JSON)
	assert.Equal(t, PushPatch, patch.Type)
	assert.Equal(t, "l", patch.ID)
	assert.Contains(t, patch.HTML, "<em>a</em>")
}

func TestOriginCheck(t *testing.T) {
	h := newHarness(t, Options{AllowedOrigins: []string{"https://app.example.com"}})
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://app.example.com"}},
	})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestSessionsReleaseOnDisconnect(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t, "")
	receive(t, conn, JSON)
	send(t, conn, JSON, Message{Type: MsgMount, ID: "a", Selector: "x-counter"})
	receive(t, conn, JSON)

	conn.Close(websocket.StatusNormalClosure, "")

	assert.Eventually(t, func() bool { return len(h.server.Sessions()) == 0 },
		5*time.Second, 10*time.Millisecond)
}

func TestPage(t *testing.T) {
	h := newHarness(t, Options{Title: "demo <1>"})

	resp, err := http.Get(h.http.URL + "/?mount=x-counter&mount=x-bogus&x-counter.label=hi")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	html := string(body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, html, "<title>demo &lt;1&gt;</title>")
	assert.Contains(t, html, `<x-counter data-kiln-id="m0" label="hi"></x-counter>`)
	assert.NotContains(t, html, "x-bogus")
	assert.Contains(t, html, `id="kiln-config"`)
	assert.Contains(t, html, `"subprotocol":"kiln.json"`)

	csp := resp.Header.Get("Content-Security-Policy")
	require.Contains(t, csp, "'nonce-")
	nonce := csp[strings.Index(csp, "'nonce-")+len("'nonce-"):]
	nonce = nonce[:strings.Index(nonce, "'")]
	assert.Contains(t, html, `<script nonce="`+nonce+`">`)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(h.http.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewRejectsUnknownCodec(t *testing.T) {
	rt, err := component.NewRuntime(component.DefaultOptions())
	require.NoError(t, err)
	_, err = New(rt, registry.New(), Options{Codec: "xml"})
	assert.Error(t, err)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"localhost:3000", "*.example.com", "app.example.com"},
		OriginPatterns([]string{"http://localhost:3000", "*.example.com", "https://app.example.com/", "http://"}))
}

func TestMountsFromQuery(t *testing.T) {
	known := []string{"x-a", "x-b"}
	assert.Equal(t,
		[]Mount{{ID: "m0", Selector: "x-a", Attrs: map[string]string{}}, {ID: "m1", Selector: "x-b", Attrs: map[string]string{}}},
		mountsFromQuery(map[string][]string{}, known))
	assert.Equal(t,
		[]Mount{{ID: "m0", Selector: "x-b", Attrs: map[string]string{"size": "2"}}},
		mountsFromQuery(map[string][]string{"mount": {"x-b"}, "x-b.size": {"2"}, "x-a.size": {"1"}}, known))
}
