package scheduler

// State is the render state of one component.
type State int

const (
	Idle State = iota
	Scheduled
	Rendering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Rendering:
		return "rendering"
	default:
		return "unknown"
	}
}

// RenderScheduler coalesces render requests for one component into at most
// one render per frame. A request arms a frame callback which in turn arms
// an idle callback that performs the render.
type RenderScheduler struct {
	loop    *Loop
	render  func()
	visible func() bool

	state   State
	pending bool
	frame   Handle
	idle    Handle
	renders int
}

// NewRenderScheduler returns a scheduler calling render on loop. visible
// gates each render; nil means always visible.
func NewRenderScheduler(loop *Loop, render func(), visible func() bool) *RenderScheduler {
	if visible == nil {
		visible = func() bool { return true }
	}
	return &RenderScheduler{loop: loop, render: render, visible: visible}
}

// Request records that the component needs rendering. Requests while a
// render is scheduled or running are absorbed.
func (s *RenderScheduler) Request() {
	if s.state == Rendering {
		return
	}
	s.pending = true
	if s.state == Idle {
		s.arm()
	}
}

// Resume re-arms a render that was skipped while the component was hidden.
func (s *RenderScheduler) Resume() {
	if s.pending && s.state == Idle {
		s.arm()
	}
}

// Cancel drops any scheduled render and the pending intent.
func (s *RenderScheduler) Cancel() {
	s.loop.Cancel(s.frame)
	s.loop.Cancel(s.idle)
	s.frame, s.idle = 0, 0
	s.pending = false
	if s.state == Scheduled {
		s.state = Idle
	}
}

// Now runs render immediately in place of any scheduled render. Requests
// made while it runs are absorbed as they are for a scheduled render.
func (s *RenderScheduler) Now() {
	if s.state == Rendering {
		return
	}
	s.Cancel()
	s.state = Rendering
	defer func() { s.state = Idle }()
	s.render()
}

// State returns the current state.
func (s *RenderScheduler) State() State { return s.state }

// Pending reports whether a render has been requested but not yet run.
func (s *RenderScheduler) Pending() bool { return s.pending }

// Renders returns how many scheduled renders have run.
func (s *RenderScheduler) Renders() int { return s.renders }

func (s *RenderScheduler) arm() {
	s.loop.Cancel(s.idle)
	s.state = Scheduled
	s.frame = s.loop.RequestAnimationFrame(func() {
		s.frame = 0
		s.idle = s.loop.RequestIdleCallback(s.run)
	})
}

func (s *RenderScheduler) run() {
	s.idle = 0
	if !s.visible() {
		s.state = Idle
		return
	}

	s.state = Rendering
	s.pending = false
	defer func() { s.state = Idle }()
	s.renders++
	s.render()
}
