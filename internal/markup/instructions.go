// Package markup turns rendered markup into a flat, replayable instruction
// list.
package markup

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Op is the kind of an Instruction.
type Op int

const (
	// OpOpen opens an element.
	OpOpen Op = iota
	// OpClose closes the most recently opened element.
	OpClose
	// OpText emits a text node.
	OpText
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpClose:
		return "close"
	case OpText:
		return "text"
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// MarshalText encodes the op by name.
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Attr is a single attribute key/value pair.
type Attr struct {
	Key   string `json:"key" yaml:"key" msgpack:"key"`
	Value string `json:"value" yaml:"value" msgpack:"value"`
}

// Instruction is one step of a replay. Open carries Tag, Key and Attrs,
// Text carries Text, Close carries Tag.
type Instruction struct {
	Op    Op     `json:"op" yaml:"op" msgpack:"op"`
	Tag   string `json:"tag,omitempty" yaml:"tag,omitempty" msgpack:"tag,omitempty"`
	Key   string `json:"key,omitempty" yaml:"key,omitempty" msgpack:"key,omitempty"`
	Attrs []Attr `json:"attrs,omitempty" yaml:"attrs,omitempty" msgpack:"attrs,omitempty"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty" msgpack:"text,omitempty"`
}

// RootKey is the parent key used for top-level elements.
const RootKey = "root"

var newlines = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Normalize collapses newlines and carriage returns to spaces.
func Normalize(markup string) string {
	return newlines.Replace(markup)
}

// Parse parses markup as a fragment in a <body> context and returns the
// top-level nodes.
func Parse(markup string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(Normalize(markup)), ctx)
	if err != nil {
		return nil, kerrors.NewReplayError("cannot parse markup", err)
	}
	return nodes, nil
}

// BuildInstructions returns the instructions for markup in document order.
func BuildInstructions(markup string) ([]Instruction, error) {
	nodes, err := Parse(markup)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	b.siblings(nodes, RootKey)
	return b.out, nil
}

// Key returns the identity key of an element: its id attribute when set,
// otherwise a key derived from the parent key and the sibling index.
func Key(n *html.Node, parentKey string, index int) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" && a.Val != "" {
			return a.Val
		}
	}
	return "fx-" + parentKey + "-child-" + strconv.Itoa(index)
}

type builder struct {
	out []Instruction
}

// siblings emits nodes in order. The sibling index counts every node,
// including text and comments, so keys only depend on markup structure.
func (b *builder) siblings(nodes []*html.Node, parentKey string) {
	for i, n := range nodes {
		switch n.Type {
		case html.ElementNode:
			b.element(n, Key(n, parentKey, i))
		case html.TextNode:
			if n.Data != "" {
				b.out = append(b.out, Instruction{Op: OpText, Text: n.Data})
			}
		default:
			b.siblings(children(n), parentKey)
		}
	}
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func (b *builder) element(n *html.Node, key string) {
	attrs := make([]Attr, 0, len(n.Attr))
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		attrs = append(attrs, Attr{Key: name, Value: a.Val})
	}

	b.out = append(b.out, Instruction{Op: OpOpen, Tag: n.Data, Key: key, Attrs: attrs})

	b.siblings(children(n), key)

	b.out = append(b.out, Instruction{Op: OpClose, Tag: n.Data})
}
