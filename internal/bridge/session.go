package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/kiln/internal/component"
	"github.com/conneroisu/kiln/internal/document"
	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/registry"
	"github.com/conneroisu/kiln/internal/template"
)

// Session is one connected page. Its document and instances are touched
// only on the runtime loop; the connection pumps run on their own
// goroutines.
type Session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	codec  Codec
	doc    *document.Document
	logger logging.Logger

	ids    map[string]*component.Instance
	owners map[*component.Instance]string
	dirty  map[string]bool

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(server *Server, id string, conn *websocket.Conn, codec Codec) *Session {
	s := &Session{
		id:     id,
		server: server,
		conn:   conn,
		codec:  codec,
		doc:    document.New(server.rt, server.registry),
		logger: server.logger.With("session", id),
		ids:    make(map[string]*component.Instance),
		owners: make(map[*component.Instance]string),
		dirty:  make(map[string]bool),
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	s.doc.OnRender(s.rendered)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Document returns the session's document.
func (s *Session) Document() *document.Document { return s.doc }

func (s *Session) run(ctx context.Context) {
	go s.writePump(ctx)
	s.push(Push{Type: PushReady, Session: s.id})
	s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) {
	defer s.close(websocket.StatusNormalClosure, "")

	for {
		frame, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				s.logger.Debug(ctx, "Bridge client disconnected")
			} else if !errors.Is(err, context.Canceled) {
				s.logger.Warn(ctx, err, "Bridge read failed")
			}
			return
		}
		if frame != s.codec.FrameType() {
			s.pushError("", kerrors.NewConfigError("unexpected frame type for codec "+s.codec.Name()))
			continue
		}

		var msg Message
		if err := s.codec.Unmarshal(data, &msg); err != nil {
			s.pushError("", kerrors.NewConfigError("malformed message").WithCause(err))
			continue
		}

		var handleErr error
		if err := s.server.rt.Loop.Do(ctx, func() { handleErr = s.handle(msg) }); err != nil {
			return
		}
		if handleErr != nil {
			s.logger.Warn(ctx, handleErr, "Bridge message rejected", "type", msg.Type, "id", msg.ID)
			s.pushError(msg.ID, handleErr)
		}
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.server.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, s.server.opts.WriteTimeout)
			err := s.conn.Write(wctx, s.codec.FrameType(), data)
			cancel()
			if err != nil {
				s.logger.Warn(ctx, err, "Bridge write failed")
				s.close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, s.server.opts.WriteTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.close(websocket.StatusGoingAway, "ping failed")
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handle applies one page message. It runs on the loop.
func (s *Session) handle(msg Message) error {
	if msg.ID == "" {
		return kerrors.NewConfigError("message has no id").WithContext("type", string(msg.Type))
	}

	if msg.Type == MsgMount {
		if _, exists := s.ids[msg.ID]; exists {
			return kerrors.NewConfigError("id is already mounted").WithContext("id", msg.ID)
		}
		inst, err := s.doc.Create(msg.Selector, msg.Attrs)
		if err != nil {
			return err
		}
		id := msg.ID
		s.ids[id] = inst
		s.owners[inst] = id
		inst.OnEmit(func(name string, detail any) {
			s.push(Push{Type: PushEmit, ID: id, Name: name, Detail: detail})
		})
		s.pushPatch(id)
		return nil
	}

	inst, ok := s.ids[msg.ID]
	if !ok {
		return kerrors.NewConfigError("unknown id").WithContext("id", msg.ID)
	}

	switch msg.Type {
	case MsgUnmount:
		s.doc.Remove(inst)
		delete(s.ids, msg.ID)
		delete(s.owners, inst)
		delete(s.dirty, msg.ID)
	case MsgAttr:
		inst.SetAttribute(msg.Name, msg.Value)
	case MsgVisible:
		inst.SetVisible(msg.Visible)
	case MsgEvent:
		target := inst.Shadow().Resolve(msg.Target)
		if target == nil {
			return kerrors.NewConfigError("event target not found").
				WithComponent(inst.Selector()).
				WithContext("target", msg.Target)
		}
		target.DispatchEvent(dom.NewEvent(msg.Event, msg.Detail))
	default:
		return kerrors.NewConfigError("unknown message type").WithContext("type", string(msg.Type))
	}
	return nil
}

// rendered marks the page-level instance that contains inst for a patch.
// Patches are coalesced until the loop's next task turn.
func (s *Session) rendered(inst *component.Instance, _ component.RenderResult) {
	id, ok := s.ownerOf(inst)
	if !ok {
		return
	}
	if len(s.dirty) == 0 {
		s.server.rt.Loop.Post(s.flush)
	}
	s.dirty[id] = true
}

func (s *Session) flush() {
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.dirty = make(map[string]bool)
	for _, id := range ids {
		s.pushPatch(id)
	}
}

func (s *Session) ownerOf(inst *component.Instance) (string, bool) {
	top := inst.Host()
	for {
		next := top.Parent()
		if next == nil {
			next = top.Host()
		}
		if next == nil || next == s.doc.Body() {
			break
		}
		top = next
	}
	owner, ok := s.doc.Lookup(top)
	if !ok {
		return "", false
	}
	id, ok := s.owners[owner]
	return id, ok
}

func (s *Session) pushPatch(id string) {
	inst, ok := s.ids[id]
	if !ok || inst.Shadow() == nil {
		return
	}
	s.push(Push{
		Type:     PushPatch,
		ID:       id,
		HTML:     inst.Shadow().ComposedHTML(s.styleFor),
		Bindings: s.bindings(inst),
	})
}

func (s *Session) styleFor(host *dom.Node) string {
	if inst, ok := s.doc.Lookup(host); ok {
		return inst.Style()
	}
	return ""
}

// bindings returns the de-duplicated bindings of inst and every instance
// nested in it.
func (s *Session) bindings(inst *component.Instance) []template.Binding {
	var out []template.Binding
	seen := make(map[template.Binding]bool)
	for _, other := range s.doc.Instances() {
		if other != inst {
			if id, ok := s.ownerOf(other); !ok || s.ids[id] != inst {
				continue
			}
		}
		if other.Template() == nil {
			continue
		}
		for _, b := range other.Template().Bindings() {
			if !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	return out
}

func (s *Session) pushError(id string, err error) {
	s.push(Push{Type: PushError, ID: id, Error: err.Error()})
}

func (s *Session) push(p Push) {
	data, err := s.codec.Marshal(p)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode push", "type", p.Type)
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Warn(context.Background(), nil, "Bridge send buffer full, dropping push", "type", p.Type)
	}
}

// Reload re-renders the session's instances of def's selector.
func (s *Session) Reload(def *registry.Definition) {
	s.doc.Reload(def)
}

func (s *Session) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.server.remove(s)

		ctx, cancel := context.WithTimeout(context.Background(), s.server.opts.WriteTimeout)
		defer cancel()
		_ = s.server.rt.Loop.Do(ctx, s.release)

		if err := s.conn.Close(code, reason); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug(context.Background(), "Bridge close", "error", err.Error())
		}
	})
}

func (s *Session) release() {
	for id, inst := range s.ids {
		s.doc.Remove(inst)
		delete(s.ids, id)
		delete(s.owners, inst)
	}
	s.dirty = make(map[string]bool)
}
