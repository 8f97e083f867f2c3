package dom

// Event is dispatched through the tree by DispatchEvent.
type Event struct {
	Type   string
	Detail any
	// Bubbles controls whether the event continues past the target.
	Bubbles bool

	Target        *Node
	CurrentTarget *Node

	stopped bool
}

// NewEvent returns a bubbling event.
func NewEvent(typ string, detail any) *Event {
	return &Event{Type: typ, Detail: detail, Bubbles: true}
}

// StopPropagation prevents the event from reaching further nodes.
func (e *Event) StopPropagation() { e.stopped = true }

// Stopped reports whether StopPropagation was called.
func (e *Event) Stopped() bool { return e.stopped }

// Listener handles an event.
type Listener func(*Event)

type listener struct {
	fn      Listener
	removed bool
}

// AddEventListener registers fn for typ and returns a function removing
// it.
func (n *Node) AddEventListener(typ string, fn Listener) func() {
	if n.listeners == nil {
		n.listeners = make(map[string][]*listener)
	}
	l := &listener{fn: fn}
	n.listeners[typ] = append(n.listeners[typ], l)
	return func() {
		l.removed = true
		list := n.listeners[typ]
		for i, x := range list {
			if x == l {
				n.listeners[typ] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of listeners registered for typ.
func (n *Node) ListenerCount(typ string) int {
	return len(n.listeners[typ])
}

// DispatchEvent fires e at n. Bubbling events travel up through parents; on
// reaching a shadow root they continue at its host, so listeners on a
// component host see events from inside its shadow tree.
func (n *Node) DispatchEvent(e *Event) {
	e.Target = n
	for cur := n; cur != nil; cur = next(cur) {
		e.CurrentTarget = cur
		cur.fire(e)
		if e.stopped || !e.Bubbles {
			break
		}
	}
	e.CurrentTarget = nil
}

func next(n *Node) *Node {
	if n.parent != nil {
		return n.parent
	}
	return n.host
}

func (n *Node) fire(e *Event) {
	list := n.listeners[e.Type]
	if len(list) == 0 {
		return
	}
	snapshot := make([]*listener, len(list))
	copy(snapshot, list)
	for _, l := range snapshot {
		if l.removed {
			continue
		}
		l.fn(e)
	}
}
