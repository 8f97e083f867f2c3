// Package dom is a small in-memory document model: elements, text nodes,
// fragments and shadow roots, with attributes, identity keys and event
// dispatch. It is the live tree the patch package reconciles against.
//
// Nodes are not safe for concurrent use. Each tree is owned by a single
// goroutine, normally the scheduler loop.
package dom

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// NodeType identifies the kind of a Node.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
	FragmentNode
	ShadowRootNode
)

// Attr is an attribute on an element.
type Attr struct {
	Key   string
	Value string
}

// Node is a node in the tree.
type Node struct {
	Type NodeType
	Tag  string
	Text string
	// Key is the identity the reconciler matches nodes by.
	Key string

	attrs     []Attr
	parent    *Node
	children  []*Node
	shadow    *Node
	host      *Node
	listeners map[string][]*listener
	stats     Stats
}

// Stats counts mutations applied to a tree. Counters live on the tree's
// root, the topmost ancestor reached through parents and shadow hosts.
type Stats struct {
	Inserts     int
	Removals    int
	AttrChanges int
	TextChanges int
}

// Root returns the topmost ancestor of n, crossing shadow boundaries.
func (n *Node) Root() *Node { return n.treeRoot() }

// Stats returns the mutation counters of the tree n belongs to.
func (n *Node) Stats() Stats { return n.treeRoot().stats }

// ResetStats zeroes the counters of the tree n belongs to.
func (n *Node) ResetStats() { n.treeRoot().stats = Stats{} }

func (n *Node) treeRoot() *Node {
	cur := n
	for {
		switch {
		case cur.parent != nil:
			cur = cur.parent
		case cur.host != nil:
			cur = cur.host
		default:
			return cur
		}
	}
}

// NewElement returns a detached element.
func NewElement(tag string) *Node {
	return &Node{Type: ElementNode, Tag: strings.ToLower(tag)}
}

// NewText returns a detached text node.
func NewText(text string) *Node {
	return &Node{Type: TextNode, Text: text}
}

// NewFragment returns an empty fragment.
func NewFragment() *Node {
	return &Node{Type: FragmentNode}
}

// AttachShadow gives n a shadow root, returning the existing one if n
// already has it.
func (n *Node) AttachShadow() *Node {
	if n.shadow == nil {
		n.shadow = &Node{Type: ShadowRootNode, host: n}
	}
	return n.shadow
}

// ShadowRoot returns n's shadow root or nil.
func (n *Node) ShadowRoot() *Node { return n.shadow }

// Host returns the element a shadow root is attached to.
func (n *Node) Host() *Node { return n.host }

// Parent returns n's parent or nil.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of n's child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ChildAt returns the child at i or nil.
func (n *Node) ChildAt(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Len returns the number of children.
func (n *Node) Len() int { return len(n.children) }

// IndexOf returns the position of child in n, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// AppendChild appends child, detaching it from its current parent first.
func (n *Node) AppendChild(child *Node) {
	n.InsertAt(child, len(n.children))
}

// InsertAt inserts child at position i, detaching it first. i is clamped to
// the valid range after detaching.
func (n *Node) InsertAt(child *Node, i int) {
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	if i < 0 {
		i = 0
	}
	if i > len(n.children) {
		i = len(n.children)
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
	child.parent = n
	n.treeRoot().stats.Inserts++
}

// RemoveChild detaches child from n. It reports whether child was found.
func (n *Node) RemoveChild(child *Node) bool {
	i := n.IndexOf(child)
	if i < 0 {
		return false
	}
	n.children = append(n.children[:i], n.children[i+1:]...)
	child.parent = nil
	n.treeRoot().stats.Removals++
	return true
}

// TruncateChildren removes every child from position i on.
func (n *Node) TruncateChildren(i int) {
	if i < 0 {
		i = 0
	}
	root := n.treeRoot()
	for _, c := range n.children[min(i, len(n.children)):] {
		c.parent = nil
		root.stats.Removals++
	}
	if i < len(n.children) {
		n.children = n.children[:i]
	}
}

// Attributes returns a copy of the attribute list in insertion order.
func (n *Node) Attributes() []Attr {
	out := make([]Attr, len(n.attrs))
	copy(out, n.attrs)
	return out
}

// GetAttribute returns the value of name.
func (n *Node) GetAttribute(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Key == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttribute sets name, keeping the position of an existing attribute.
func (n *Node) SetAttribute(name, value string) {
	for i, a := range n.attrs {
		if a.Key == name {
			if a.Value != value {
				n.attrs[i].Value = value
				n.treeRoot().stats.AttrChanges++
			}
			return
		}
	}
	n.attrs = append(n.attrs, Attr{Key: name, Value: value})
	n.treeRoot().stats.AttrChanges++
}

// RemoveAttribute removes name if present.
func (n *Node) RemoveAttribute(name string) {
	for i, a := range n.attrs {
		if a.Key == name {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			n.treeRoot().stats.AttrChanges++
			return
		}
	}
}

// SetText replaces the data of a text node.
func (n *Node) SetText(text string) {
	if n.Text == text {
		return
	}
	n.Text = text
	n.treeRoot().stats.TextChanges++
}

// TextContent concatenates the text of every descendant text node.
func (n *Node) TextContent() string {
	if n.Type == TextNode {
		return n.Text
	}
	var sb strings.Builder
	n.Walk(func(d *Node) bool {
		if d.Type == TextNode {
			sb.WriteString(d.Text)
		}
		return true
	})
	return sb.String()
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children. Shadow trees are not entered.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// FindByKey returns the first descendant (or n) with the given key.
func (n *Node) FindByKey(key string) *Node {
	var found *Node
	n.Walk(func(d *Node) bool {
		if found != nil {
			return false
		}
		if d.Key == key {
			found = d
			return false
		}
		return true
	})
	return found
}

// FindByTag returns every element descendant with tag, in document order.
func (n *Node) FindByTag(tag string) []*Node {
	tag = strings.ToLower(tag)
	var out []*Node
	n.Walk(func(d *Node) bool {
		if d.Type == ElementNode && d.Tag == tag {
			out = append(out, d)
		}
		return true
	})
	return out
}

// InnerHTML serializes n's children.
func (n *Node) InnerHTML() string {
	var buf bytes.Buffer
	for c := n.toHTML().FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML serializes n and its children. For fragments and shadow roots
// it is the same as InnerHTML.
func (n *Node) OuterHTML() string {
	if n.Type == FragmentNode || n.Type == ShadowRootNode {
		return n.InnerHTML()
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, n.toHTML())
	return buf.String()
}

func (n *Node) toHTML() *html.Node {
	var out *html.Node
	switch n.Type {
	case TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Text}
	case ElementNode:
		out = &html.Node{Type: html.ElementNode, Data: n.Tag}
		for _, a := range n.attrs {
			out.Attr = append(out.Attr, html.Attribute{Key: a.Key, Val: a.Value})
		}
	default:
		out = &html.Node{Type: html.DocumentNode}
	}
	for _, c := range n.children {
		out.AppendChild(c.toHTML())
	}
	return out
}

// StyleAttr marks style elements that ComposedHTML injects, so clients can
// skip them when addressing nodes by index.
const StyleAttr = "data-kiln-style"

// ComposedHTML serializes n's children like InnerHTML, but every shadow
// host below n carries its shadow tree as a declarative
// <template shadowrootmode="open">. When style is non-nil its result for
// each host is placed at the top of that host's shadow tree, including n's
// own host when n is a shadow root.
func (n *Node) ComposedHTML(style func(host *Node) string) string {
	root := &html.Node{Type: html.DocumentNode}
	if n.Type == ShadowRootNode && n.host != nil {
		if el := styleElement(n.host, style); el != nil {
			root.AppendChild(el)
		}
	}
	for _, c := range n.children {
		root.AppendChild(c.composed(style))
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func (n *Node) composed(style func(*Node) string) *html.Node {
	if n.Type != ElementNode {
		return n.toHTML()
	}
	out := &html.Node{Type: html.ElementNode, Data: n.Tag}
	for _, a := range n.attrs {
		out.Attr = append(out.Attr, html.Attribute{Key: a.Key, Val: a.Value})
	}
	if n.shadow != nil {
		tmpl := &html.Node{
			Type: html.ElementNode,
			Data: "template",
			Attr: []html.Attribute{{Key: "shadowrootmode", Val: "open"}},
		}
		if el := styleElement(n, style); el != nil {
			tmpl.AppendChild(el)
		}
		for _, c := range n.shadow.children {
			tmpl.AppendChild(c.composed(style))
		}
		out.AppendChild(tmpl)
	}
	for _, c := range n.children {
		out.AppendChild(c.composed(style))
	}
	return out
}

func styleElement(host *Node, style func(*Node) string) *html.Node {
	if style == nil {
		return nil
	}
	css := style(host)
	if css == "" {
		return nil
	}
	el := &html.Node{
		Type: html.ElementNode,
		Data: "style",
		Attr: []html.Attribute{{Key: StyleAttr}},
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	return el
}

// Resolve follows a slash separated path of child indexes from n. The
// segment "s" steps into the shadow root of the current node.
func (n *Node) Resolve(path string) *Node {
	cur := n
	if path == "" {
		return cur
	}
	for _, seg := range strings.Split(path, "/") {
		if cur == nil {
			return nil
		}
		if seg == "s" {
			cur = cur.shadow
			continue
		}
		i, err := strconv.Atoi(seg)
		if err != nil {
			return nil
		}
		cur = cur.ChildAt(i)
	}
	return cur
}
