package patch

import (
	"fmt"
	"strings"

	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/markup"
)

// PatchFunc reconciles the children of root with a fixed instruction
// sequence and then calls done, if non-nil. Replaying the same function
// twice against the same root leaves the tree unchanged the second time.
type PatchFunc func(root *dom.Node, done func()) error

// Build parses markup and returns its PatchFunc without caching it.
func Build(src string) (PatchFunc, error) {
	instructions, err := markup.BuildInstructions(src)
	if err != nil {
		return nil, err
	}
	return New(instructions), nil
}

// New returns a PatchFunc replaying instructions.
func New(instructions []markup.Instruction) PatchFunc {
	return func(root *dom.Node, done func()) error {
		if err := replay(root, instructions); err != nil {
			return err
		}
		if done != nil {
			done()
		}
		return nil
	}
}

type frame struct {
	parent *dom.Node
	pos    int
}

// replay walks the instructions keeping a cursor per open element. Existing
// nodes are reused when their key and tag match, moved when found later in
// the sibling list, and anything left after a parent's cursor on close is
// removed.
func replay(root *dom.Node, instructions []markup.Instruction) error {
	if root == nil {
		return kerrors.NewReplayError("cannot patch a detached root", nil)
	}
	if root.Type == dom.TextNode {
		return kerrors.NewReplayError("cannot patch into a text node", nil)
	}

	stack := []frame{{parent: root}}
	for i, in := range instructions {
		top := &stack[len(stack)-1]

		switch in.Op {
		case markup.OpOpen:
			el := claim(top.parent, top.pos, in.Tag, in.Key)
			if el == nil {
				el = dom.NewElement(in.Tag)
				el.Key = in.Key
				top.parent.InsertAt(el, top.pos)
			}
			syncAttrs(el, in.Attrs)
			top.pos++
			stack = append(stack, frame{parent: el})

		case markup.OpText:
			cur := top.parent.ChildAt(top.pos)
			if cur != nil && cur.Type == dom.TextNode {
				cur.SetText(in.Text)
			} else {
				top.parent.InsertAt(dom.NewText(in.Text), top.pos)
			}
			top.pos++

		case markup.OpClose:
			if len(stack) == 1 {
				return kerrors.NewReplayError(fmt.Sprintf("unbalanced close of <%s> at instruction %d", in.Tag, i), nil)
			}
			if !strings.EqualFold(top.parent.Tag, in.Tag) {
				return kerrors.NewReplayError(fmt.Sprintf("close of <%s> does not match open <%s>", in.Tag, top.parent.Tag), nil)
			}
			top.parent.TruncateChildren(top.pos)
			stack = stack[:len(stack)-1]

		default:
			return kerrors.NewReplayError(fmt.Sprintf("unknown instruction %s", in.Op), nil)
		}
	}

	if len(stack) != 1 {
		return kerrors.NewReplayError(fmt.Sprintf("%d elements left open", len(stack)-1), nil)
	}
	root.TruncateChildren(stack[0].pos)
	return nil
}

// claim finds an element with key and tag at or after pos and moves it to
// pos.
func claim(parent *dom.Node, pos int, tag, key string) *dom.Node {
	tag = strings.ToLower(tag)
	for i := pos; i < parent.Len(); i++ {
		c := parent.ChildAt(i)
		if c.Type != dom.ElementNode || c.Key != key || c.Tag != tag {
			continue
		}
		if i != pos {
			parent.InsertAt(c, pos)
		}
		return c
	}
	return nil
}

func syncAttrs(el *dom.Node, attrs []markup.Attr) {
	want := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		want[a.Key] = true
		el.SetAttribute(a.Key, a.Value)
	}
	for _, a := range el.Attributes() {
		if !want[a.Key] {
			el.RemoveAttribute(a.Key)
		}
	}
}
